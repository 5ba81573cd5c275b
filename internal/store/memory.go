// Package store holds the persistence backends of the records, maintenance audit and
// SMS history, plus the backup archive and the natural key lockers.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
)

var (
	_ records.Store    = (*MemoryStore)(nil)
	_ records.AuditLog = (*MemoryStore)(nil)
	_ sms.HistoryStore = (*MemoryStore)(nil)
)

// MemoryStore keeps everything in process memory. It enforces the same natural key
// uniqueness as the database.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]records.Record
	keys    map[string]int64
	runs    []records.MaintenanceRun
	batches []sms.Batch
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]records.Record),
		keys:    make(map[string]int64),
	}
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

func (m *MemoryStore) Insert(ctx context.Context, r *records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := r.Key().String()
	if _, dup := m.keys[k]; dup {
		return records.ErrDuplicate
	}
	m.nextID++
	r.ID = m.nextID
	m.records[r.ID] = *r
	m.keys[k] = r.ID
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, r *records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.records[r.ID]
	if !ok {
		return records.ErrNotFound
	}
	k := r.Key().String()
	if id, dup := m.keys[k]; dup && id != r.ID {
		return records.ErrDuplicate
	}
	delete(m.keys, old.Key().String())
	m.keys[k] = r.ID
	m.records[r.ID] = *r
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id int64) (records.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return records.Record{}, records.ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) FindByKey(ctx context.Context, k records.Key) (records.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keys[k.String()]
	if !ok {
		return records.Record{}, records.ErrNotFound
	}
	return m.records[id], nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.remove(id) {
		return records.ErrNotFound
	}
	return nil
}

func (m *MemoryStore) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if m.remove(id) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteVillage(ctx context.Context, village string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.records {
		if r.VillageName == village && m.remove(id) {
			n++
		}
	}
	return n, nil
}

// remove must be called with the write lock held.
func (m *MemoryStore) remove(id int64) bool {
	r, ok := m.records[id]
	if !ok {
		return false
	}
	delete(m.keys, r.Key().String())
	delete(m.records, id)
	return true
}

func (m *MemoryStore) List(ctx context.Context, p records.Page) ([]records.Record, error) {
	all := m.selectRecords(func(records.Record) bool { return true })
	off := p.Offset()
	if off >= len(all) {
		return []records.Record{}, nil
	}
	all = all[off:]
	if p.Size > 0 && len(all) > p.Size {
		all = all[:p.Size]
	}
	return all, nil
}

func (m *MemoryStore) Find(ctx context.Context, f records.Filter) ([]records.Record, error) {
	return m.selectRecords(func(r records.Record) bool { return matches(r, f) }), nil
}

func (m *MemoryStore) ByMandal(ctx context.Context, mandal string) ([]records.Record, error) {
	return m.selectRecords(func(r records.Record) bool { return r.MandalName == mandal }), nil
}

func (m *MemoryStore) ByVillage(ctx context.Context, village string) ([]records.Record, error) {
	return m.selectRecords(func(r records.Record) bool { return r.VillageName == village }), nil
}

func (m *MemoryStore) WithFlag(ctx context.Context, flag records.Flag) ([]records.Record, error) {
	return m.selectRecords(func(r records.Record) bool {
		if flag == records.FlagThisWeek {
			return r.BirthdayThisWeek
		}
		return r.BirthdayThisMonth
	}), nil
}

func (m *MemoryStore) WithBirthDate(ctx context.Context) ([]records.Record, error) {
	return m.selectRecords(func(r records.Record) bool { return r.DateOfBirth != nil }), nil
}

func (m *MemoryStore) Stats(ctx context.Context) (records.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mandals := map[string]struct{}{}
	villages := map[string]struct{}{}
	var st records.Stats
	for _, r := range m.records {
		st.TotalRecords++
		mandals[r.MandalName] = struct{}{}
		villages[r.VillageName] = struct{}{}
		if r.BirthdayThisWeek {
			st.BirthdaysThisWeek++
		}
		if r.BirthdayThisMonth {
			st.BirthdaysThisMonth++
		}
	}
	st.TotalMandals = int64(len(mandals))
	st.TotalVillages = int64(len(villages))
	return st, nil
}

func (m *MemoryStore) SetBirthData(ctx context.Context, updates []records.BirthUpdate) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, u := range updates {
		r, ok := m.records[u.ID]
		if !ok {
			continue
		}
		r.DateOfBirth = u.DateOfBirth
		r.BirthdayThisWeek = u.Flags.ThisWeek
		r.BirthdayThisMonth = u.Flags.ThisMonth
		m.records[u.ID] = r
		n++
	}
	return n, nil
}

// selectRecords returns copies of the matching records, newest first.
func (m *MemoryStore) selectRecords(keep func(records.Record) bool) []records.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]records.Record, 0, len(m.records))
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func matches(r records.Record, f records.Filter) bool {
	for _, c := range []struct{ value, want string }{
		{r.Name, f.Name},
		{r.MandalName, f.Mandal},
		{r.VillageName, f.Village},
		{r.PhoneNumber, f.Phone},
		{r.Gender, f.Gender},
		{r.Qualification, f.Qualification},
		{r.Occupation, f.Occupation},
		{r.Caste, f.Caste},
	} {
		if c.want != "" && !strings.Contains(strings.ToLower(c.value), strings.ToLower(c.want)) {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Maintenance audit
// -----------------------------------------------------------------------------

func (m *MemoryStore) RecordRun(ctx context.Context, run records.MaintenanceRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryStore) Runs(ctx context.Context, name string) ([]records.MaintenanceRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []records.MaintenanceRun{}
	for _, r := range m.runs {
		if name == "" || r.Name == name {
			out = append(out, r)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// SMS history
// -----------------------------------------------------------------------------

func (m *MemoryStore) Append(ctx context.Context, b sms.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]sms.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []sms.Batch{}
	for i := len(m.batches) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.batches[i])
	}
	return out, nil
}

func (m *MemoryStore) Totals(ctx context.Context, since time.Time) (sms.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st sms.Stats
	for _, b := range m.batches {
		st.TotalMessagesSent += int64(b.Sent)
		st.TotalRecipients += int64(b.Recipients)
		if !b.CreatedAt.Before(since) {
			st.SentToday += int64(b.Sent)
		}
	}
	return st, nil
}

package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
)

// Service implements the family record use cases. Every date decision goes through
// the engine with the Reference handed in by the caller.
type Service struct {
	store  Store
	audit  AuditLog
	locker Locker
	valid  *Validator
}

// NewService wires a Service. The locker serializes duplicate checks per natural key.
func NewService(store Store, audit AuditLog, locker Locker) *Service {
	return &Service{
		store:  store,
		audit:  audit,
		locker: locker,
		valid:  NewValidator(),
	}
}

func (s *Service) logger() *slog.Logger {
	return slog.With(config.LogKeyComponent, config.CompRecords)
}

// prepare trims and validates the input and parses its date of birth.
func (s *Service) prepare(in Input) (Input, *engine.CivilDate, error) {
	in = in.trimmed()
	err := s.valid.Check(in)

	var verr *ValidationError
	if err != nil && !errors.As(err, &verr) {
		return in, nil, err
	}

	var dob *engine.CivilDate
	if in.DateOfBirth != "" {
		if d, ok := engine.ParseInput(in.DateOfBirth); ok {
			dob = &d
		} else {
			if verr == nil {
				verr = &ValidationError{}
			}
			verr.addInvalid("dateOfBirth", "dateOfBirth must be a valid date (YYYY-MM-DD or DD-MM-YYYY)")
		}
	}
	if verr != nil {
		return in, nil, verr
	}
	return in, dob, nil
}

func (s *Service) lock(ctx context.Context, k Key) (func(), error) {
	unlock, err := s.locker.Lock(ctx, k.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrLockAcquire, err)
	}
	return unlock, nil
}

// Create inserts a record. When the natural key already exists the existing record
// is returned together with ErrDuplicate.
func (s *Service) Create(ctx context.Context, ref engine.Reference, in Input) (Record, error) {
	in, dob, err := s.prepare(in)
	if err != nil {
		return Record{}, err
	}

	unlock, err := s.lock(ctx, in.Key())
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	existing, err := s.store.FindByKey(ctx, in.Key())
	switch {
	case err == nil:
		s.logger().Info(config.MsgDuplicateSkipped, config.LogKeyID, existing.ID)
		return existing, ErrDuplicate
	case !errors.Is(err, ErrNotFound):
		return Record{}, err
	}

	rec := Record{DateOfBirth: dob, CreatedAt: ref.Instant, UpdatedAt: ref.Instant}
	in.apply(&rec)
	rec.ApplyFlags(ref.Today)

	if err := s.store.Insert(ctx, &rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			if existing, ferr := s.store.FindByKey(ctx, in.Key()); ferr == nil {
				return existing, ErrDuplicate
			}
		}
		return Record{}, err
	}

	s.logger().Info(config.MsgRecordCreated, config.LogKeyID, rec.ID, config.LogKeyVillage, rec.VillageName)
	return rec, nil
}

// Update edits a record. Fields absent from changes keep their stored values and
// the flags are recomputed from the merged date of birth.
func (s *Service) Update(ctx context.Context, ref engine.Reference, id int64, changes Changes) (Record, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	in, err := changes.Merge(InputFromRecord(current))
	if err != nil {
		return Record{}, err
	}
	in, dob, err := s.prepare(in)
	if err != nil {
		return Record{}, err
	}

	unlock, err := s.lock(ctx, in.Key())
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	in.apply(&rec)
	rec.DateOfBirth = dob
	rec.ApplyFlags(ref.Today)
	rec.UpdatedAt = ref.Instant

	if err := s.store.Update(ctx, &rec); err != nil {
		return Record{}, err
	}
	s.logger().Info(config.MsgRecordUpdated, config.LogKeyID, rec.ID)
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger().Info(config.MsgRecordDeleted, config.LogKeyID, id)
	return nil
}

// List returns records newest first. A zero page size returns everything.
func (s *Service) List(ctx context.Context, p Page) ([]Record, error) {
	if p.Size > config.MaxPageSize {
		p.Size = config.MaxPageSize
	}
	return s.store.List(ctx, p)
}

func (s *Service) ByMandal(ctx context.Context, mandal string) ([]Record, error) {
	return s.store.ByMandal(ctx, strings.TrimSpace(mandal))
}

func (s *Service) ByVillage(ctx context.Context, village string) ([]Record, error) {
	return s.store.ByVillage(ctx, strings.TrimSpace(village))
}

// Search applies the text filters in the store and the age bounds here, as of ref.Today.
func (s *Service) Search(ctx context.Context, ref engine.Reference, f Filter) ([]Record, error) {
	if (f.MinAge != nil && *f.MinAge < 0) || (f.MaxAge != nil && *f.MaxAge < 0) {
		return nil, fmt.Errorf("%w: negative age bound", ErrInvalidInput)
	}
	recs, err := s.store.Find(ctx, f)
	if err != nil || !f.HasAge() {
		return recs, err
	}

	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.DateOfBirth == nil {
			continue
		}
		if engine.AgeBetween(*r.DateOfBirth, ref.Today, f.MinAge, f.MaxAge) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

// DeleteVillage removes every record of a village and reports how many went.
func (s *Service) DeleteVillage(ctx context.Context, village string) (int64, error) {
	village = strings.TrimSpace(village)
	if village == "" {
		return 0, fmt.Errorf("%w: village name is required", ErrInvalidInput)
	}
	n, err := s.store.DeleteVillage(ctx, village)
	if err != nil {
		return 0, err
	}
	s.logger().Info(config.MsgBulkDeleted, config.LogKeyVillage, village, config.LogKeyCount, n)
	return n, nil
}

// DeleteMany removes the given ids; unknown ids are ignored.
func (s *Service) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no ids given", ErrInvalidInput)
	}
	n, err := s.store.DeleteMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger().Info(config.MsgBulkDeleted, config.LogKeyCount, n, config.LogKeyTotal, len(ids))
	return n, nil
}

package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/store"
)

var testRef = engine.ReferenceAt(
	time.Date(2024, time.March, 10, 3, 30, 0, 0, time.UTC),
	time.FixedZone("IST", 5*3600+1800),
)

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *MockArchive) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	list, _ := args.Get(0).([]store.ObjectInfo)
	return list, args.Error(1)
}

func newRecords(t *testing.T) *records.Service {
	t.Helper()
	mem := store.NewMemoryStore()
	return records.NewService(mem, mem, store.NewLocalLocker())
}

func create(t *testing.T, svc *records.Service, name, phone, dob string) records.Record {
	t.Helper()
	r, err := svc.Create(context.Background(), testRef, records.Input{
		MandalName: "Kodair", VillageName: "Rangapur", Name: name, PhoneNumber: phone, DateOfBirth: dob,
	})
	require.NoError(t, err)
	return r
}

func TestExport(t *testing.T) {
	recs := newRecords(t)
	create(t, recs, "Ravi", "1", "12-03-1990")
	create(t, recs, "Devi", "2", "")

	doc, err := NewService(recs, nil).Export(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.TotalRecords)
	require.Len(t, doc.Data, 2)
	assert.Equal(t, "Ravi", doc.Data[0].Name, "oldest first")
	assert.Equal(t, testRef.Instant.UTC(), doc.ExportDate)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dateOfBirth":"1990-03-12"`)
	assert.Contains(t, string(raw), `"exportDate":"2024-03-10T03:30:00Z"`)

	empty, err := NewService(newRecords(t), nil).Export(context.Background(), testRef)
	require.NoError(t, err)
	assert.NotNil(t, empty.Data)
}

func TestRestore(t *testing.T) {
	recs := newRecords(t)
	create(t, recs, "Ravi", "1", "")
	svc := NewService(recs, nil)

	backupJSON := `{
		"exportDate": "2025-01-01T00:00:00.000Z",
		"totalRecords": 5,
		"data": [
			{"id": 10, "mandalName": "Kodair", "villageName": "Rangapur", "name": "Ravi", "phoneNumber": "1"},
			{"id": 11, "mandalName": "Kodair", "villageName": "Rangapur", "name": "Lakshmi", "phoneNumber": "2",
			 "dateOfBirth": "1990-03-11T18:30:00.000Z", "numFamilyPersons": 4, "remarks": null, "birthdayThisWeek": false},
			{"id": 12, "mandalName": "Kodair", "villageName": "", "name": "Nobody", "phoneNumber": "3"},
			"garbage",
			{"id": 13, "mandalName": "Kodair", "villageName": "Rangapur", "name": "Somaiah", "phoneNumber": "4", "dateOfBirth": "someday"}
		]
	}`

	report, err := svc.Restore(context.Background(), testRef, strings.NewReader(backupJSON))
	require.NoError(t, err)
	assert.Equal(t, RestoreReport{
		Message:           "Backup restore completed successfully.",
		TotalInBackup:     5,
		RestoredRecords:   2,
		SkippedDuplicates: 1,
		Errors:            2,
	}, report)

	found, err := recs.Search(context.Background(), testRef, records.Filter{Name: "Lakshmi"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NotNil(t, found[0].DateOfBirth)
	// The date part is taken literally, not shifted through a zone.
	assert.Equal(t, "1990-03-11", found[0].DateOfBirth.String())
	assert.Equal(t, 4, found[0].NumFamilyPersons)
	assert.True(t, found[0].BirthdayThisWeek)

	somaiah, err := recs.Search(context.Background(), testRef, records.Filter{Name: "Somaiah"})
	require.NoError(t, err)
	require.Len(t, somaiah, 1)
	assert.Nil(t, somaiah[0].DateOfBirth)
}

func TestRestore_InvalidFormat(t *testing.T) {
	svc := NewService(newRecords(t), nil)
	for _, body := range []string{`not json`, `{}`, `{"data": {"a": 1}}`} {
		_, err := svc.Restore(context.Background(), testRef, strings.NewReader(body))
		assert.ErrorIs(t, err, ErrInvalidFormat, body)
	}
}

func TestSnapshot(t *testing.T) {
	recs := newRecords(t)
	create(t, recs, "Ravi", "1", "12-03-1990")

	archive := new(MockArchive)
	archive.On("Put", mock.Anything, "backups/20240310T033000Z.json", mock.MatchedBy(func(data []byte) bool {
		var doc Document
		return json.Unmarshal(data, &doc) == nil && doc.TotalRecords == 1
	}), "application/json").Return(nil)

	svc := NewService(recs, archive)
	assert.True(t, svc.HasArchive())

	snap, err := svc.Snapshot(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, "backups/20240310T033000Z.json", snap.Key)
	assert.Equal(t, 1, snap.TotalRecords)
	assert.Positive(t, snap.Size)
	archive.AssertExpectations(t)
}

func TestSnapshots(t *testing.T) {
	archive := new(MockArchive)
	archive.On("List", mock.Anything, "backups/").Return(nil, nil).Once()

	svc := NewService(newRecords(t), archive)
	list, err := svc.Snapshots(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	archive.On("List", mock.Anything, "backups/").Return([]store.ObjectInfo{{Key: "backups/b.json"}, {Key: "backups/a.json"}}, nil)
	list, err = svc.Snapshots(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestNoArchive(t *testing.T) {
	svc := NewService(newRecords(t), nil)
	assert.False(t, svc.HasArchive())

	_, err := svc.Snapshot(context.Background(), testRef)
	assert.ErrorIs(t, err, ErrNoArchive)
	_, err = svc.Snapshots(context.Background())
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "smart-village-backup-1710041400000.json", FileName(testRef))
	assert.True(t, bytes.HasSuffix([]byte(FileName(testRef)), []byte(".json")))
}

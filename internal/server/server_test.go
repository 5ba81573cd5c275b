package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/backup"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/locale"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/sms"
	"github.com/tartampluch/smart-village/internal/store"
)

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// Sunday 10 March 2024, 09:00 in the village zone.
var testNow = time.Date(2024, time.March, 10, 3, 30, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestServer(t *testing.T, opts Options) (*Server, *store.MemoryStore) {
	t.Helper()

	catalog, err := locale.NewCatalog()
	require.NoError(t, err)

	clock := fixedClock{t: testNow}
	mem := store.NewMemoryStore()
	recs := records.NewService(mem, mem, store.NewLocalLocker())
	smsSvc := sms.NewService(&sms.ConsoleNotifier{}, mem, catalog, clock, sms.Options{CountryCode: "+91"})

	srv := New(Deps{
		Records:     recs,
		SMS:         smsSvc,
		Backup:      backup.NewService(recs, nil),
		Catalog:     catalog,
		Clock:       engine.NewCivilClock(clock, time.FixedZone("IST", 5*3600+1800)),
		CountryCode: "+91",
	}, opts)
	return srv, mem
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set(config.HeaderContentType, config.MimeJSON)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// errorCode extracts the numeric code of an error envelope.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	body := decode[struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}](t, w)
	assert.NotEmpty(t, body.Error)
	return body.Code
}

func person(name, phone, dob string) records.Input {
	return records.Input{
		MandalName:  "Kodair",
		VillageName: "Rangapur",
		Name:        name,
		PhoneNumber: phone,
		DateOfBirth: dob,
	}
}

func upload(t *testing.T, h http.Handler, target, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(config.UploadFormField, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set(config.HeaderContentType, mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

func TestRoot(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	w := do(t, srv.Handler(), http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.HTTPMsgRunning, decode[map[string]string](t, w)["message"])
}

func TestRecordLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "12-03-1990"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[records.Record](t, w)
	assert.True(t, created.BirthdayThisWeek)
	require.NotNil(t, created.DateOfBirth)
	assert.Equal(t, "1990-03-12", created.DateOfBirth.String())

	w = do(t, h, http.MethodGet, fmt.Sprintf("/records/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ravi", decode[records.Record](t, w).Name)

	upd := person("Ravi", "9876543210", "1990-05-01")
	upd.Occupation = "Farmer"
	w = do(t, h, http.MethodPut, fmt.Sprintf("/records/%d", created.ID), upd)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[records.Record](t, w)
	assert.Equal(t, "Farmer", updated.Occupation)
	assert.False(t, updated.BirthdayThisWeek)

	w = do(t, h, http.MethodDelete, fmt.Sprintf("/records/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, fmt.Sprintf("/records/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errNotFound.Code, errorCode(t, w))
}

func TestUpdateRecord_PartialBody(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	in := person("Ravi", "9876543210", "12-03-1980")
	in.Aadhar = "1234 5678 9012"
	in.Caste = "BC-A"
	w := do(t, h, http.MethodPost, "/records", in)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[records.Record](t, w)
	target := fmt.Sprintf("/records/%d", created.ID)

	w = do(t, h, http.MethodPut, target, map[string]any{
		"mandalName":       "Kodair",
		"villageName":      "Rangapur",
		"name":             "Ravi Kumar",
		"numFamilyPersons": 4,
		"gender":           "Male",
		"phoneNumber":      "9876543210",
		"address":          "H.No 2-14",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[records.Record](t, w)
	assert.Equal(t, "Ravi Kumar", updated.Name)
	require.NotNil(t, updated.DateOfBirth)
	assert.Equal(t, "1980-03-12", updated.DateOfBirth.String())
	assert.Equal(t, "1234 5678 9012", updated.Aadhar)
	assert.Equal(t, "BC-A", updated.Caste)
	assert.True(t, updated.BirthdayThisWeek)

	w = do(t, h, http.MethodPut, target, map[string]any{"dateOfBirth": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cleared := decode[records.Record](t, w)
	assert.Nil(t, cleared.DateOfBirth)
	assert.False(t, cleared.BirthdayThisWeek)
	assert.Equal(t, "1234 5678 9012", cleared.Aadhar)

	w = do(t, h, http.MethodPut, target, []string{"name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRecord_DuplicateAndValidation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	first := do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", ""))
	require.Equal(t, http.StatusCreated, first.Code)

	dup := do(t, h, http.MethodPost, "/records", person(" Ravi ", "9876543210", ""))
	assert.Equal(t, http.StatusOK, dup.Code)
	assert.Equal(t, config.HTTPMsgDuplicate, decode[map[string]any](t, dup)["message"])

	bad := do(t, h, http.MethodPost, "/records", person("", "9876543210", ""))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, errValidation.Code, errorCode(t, bad))

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errMalformedBody.Code, errorCode(t, w))
}

func TestQueryValidation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	tests := []struct {
		target string
		code   int
	}{
		{"/birthdays/upcoming?days=400", errInvalidDays.Code},
		{"/birthdays/upcoming?days=-1", errInvalidDays.Code},
		{"/birthdays/upcoming?days=soon", errInvalidDays.Code},
		{"/records?page=0&pageSize=10", errInvalidPage.Code},
		{"/records?pageSize=501", errInvalidPage.Code},
		{"/search?minAge=-3", errInvalidAge.Code},
		{"/records/abc", errInvalidID.Code},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestListsAndSearch(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/records", nil)
	assert.Equal(t, "[]\n", w.Body.String())

	for _, in := range []records.Input{
		person("Ravi", "9876543210", "10-03-1990"),
		person("Sita", "9123456780", "20-03-2010"),
		person("Gopal", "9000000001", ""),
	} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", in).Code)
	}

	w = do(t, h, http.MethodGet, "/records?page=1&pageSize=2", nil)
	assert.Len(t, decode[[]records.Record](t, w), 2)

	w = do(t, h, http.MethodGet, "/search?minAge=18", nil)
	found := decode[[]records.Record](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, "Ravi", found[0].Name)

	w = do(t, h, http.MethodGet, "/birthdays/today", nil)
	today := decode[[]map[string]any](t, w)
	require.Len(t, today, 1)
	assert.Equal(t, "Ravi", today[0]["name"])
	assert.EqualValues(t, 34, today[0]["currentAge"])

	w = do(t, h, http.MethodGet, "/birthdays/upcoming?days=15", nil)
	assert.Len(t, decode[[]map[string]any](t, w), 2)

	w = do(t, h, http.MethodGet, "/records/village/Rangapur", nil)
	assert.Len(t, decode[[]records.Record](t, w), 3)

	w = do(t, h, http.MethodDelete, "/delete-village/Rangapur", nil)
	assert.EqualValues(t, 3, decode[map[string]int64](t, w)["deletedCount"])
}

// -----------------------------------------------------------------------------
// Calendar
// -----------------------------------------------------------------------------

func TestCalendar_ServingAndCaching(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "10-03-1990")).Code)

	w := do(t, h, http.MethodGet, "/birthdays/calendar.ics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, config.MimeTextCalendar, w.Header().Get(config.HeaderContentType))
	assert.Equal(t, config.MimeNoSniff, w.Header().Get(config.HeaderXContentType))
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, w.Body.String(), "Ravi")

	etag := w.Header().Get(config.HeaderETag)
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/birthdays/calendar.ics", nil)
	req.Header.Set(config.HeaderIfNoneMatch, etag)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusNotModified, w2.Code)
	assert.Empty(t, w2.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/birthdays/calendar.ics", nil)
	req.Header.Set(config.HeaderIfModifiedSince, w.Header().Get(config.HeaderLastModified))
	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, req)
	assert.Equal(t, http.StatusNotModified, w3.Code)

	// New data changes the feed.
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Sita", "9123456780", "20-03-2010")).Code)
	w4 := do(t, h, http.MethodGet, "/birthdays/calendar.ics", nil)
	assert.NotEqual(t, etag, w4.Header().Get(config.HeaderETag))
}

func TestCalendarCache_KeepsItemWhenUnchanged(t *testing.T) {
	var c calendarCache
	first := c.Update([]byte("A"), testNow)
	same := c.Update([]byte("A"), testNow.Add(time.Hour))
	assert.Same(t, first, same)

	next := c.Update([]byte("B"), testNow.Add(time.Hour))
	assert.NotEqual(t, first.etag, next.etag)
	assert.NotEqual(t, first.lastModified, next.lastModified)
}

// TestCalendar_RaceCondition mixes feed renderings with writes. Run with -race.
func TestCalendar_RaceCondition(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				in := person(fmt.Sprintf("P%d-%d", id, j), fmt.Sprintf("90000%02d%03d", id, j), "01-01-1990")
				w := do(t, h, http.MethodPost, "/records", in)
				if w.Code != http.StatusCreated {
					t.Errorf("create: unexpected status %d", w.Code)
				}
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				w := do(t, h, http.MethodGet, "/birthdays/calendar.ics", nil)
				if w.Code != http.StatusOK {
					t.Errorf("calendar: unexpected status %d", w.Code)
				}
			}
		}()
	}
	wg.Wait()
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

func TestImport_Errors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	w := do(t, h, http.MethodPost, "/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errNoFile.Code, errorCode(t, w))

	w = upload(t, h, "/import", "people.csv", []byte("a,b"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errBadFileType.Code, errorCode(t, w))

	w = upload(t, h, "/import", "people.xlsx", []byte("not a workbook"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errWorkbook.Code, errorCode(t, w))

	w = do(t, h, http.MethodPost, "/import/url", map[string]string{"url": "http://example.invalid/x.xlsx"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestImportURL(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "12-03-1990")).Code)
	sheet := do(t, h, http.MethodGet, "/export", nil).Body.Bytes()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(sheet)
	}))
	defer remote.Close()

	fetcher := engine.NewHTTPFetcher()
	srv.deps.Fetcher = fetcher

	w := do(t, h, http.MethodPost, "/import/url", map[string]string{"url": remote.URL + "/people.xlsx"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[importResponse](t, w)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 1, rep.Skipped)

	fetcher.MaxSize = int64(len(sheet) - 1)
	w = do(t, h, http.MethodPost, "/import/url", map[string]string{"url": remote.URL + "/people.xlsx"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, errTooLarge.Code, errorCode(t, w))

	w = do(t, h, http.MethodPost, "/import/url", map[string]string{"url": "ftp://example.com/people.xlsx"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, mem := newTestServer(t, Options{})
	h := srv.Handler()

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "12-03-1990")).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Sita", "9123456780", "")).Code)

	export := do(t, h, http.MethodGet, "/export", nil)
	require.Equal(t, http.StatusOK, export.Code)
	assert.Equal(t, config.MimeXLSX, export.Header().Get(config.HeaderContentType))
	assert.Contains(t, export.Header().Get(config.HeaderContentDisposition), config.ExportFileName)

	// Re-importing the same rows only finds duplicates.
	w := upload(t, h, "/import", "export.xlsx", export.Body.Bytes())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode[importResponse](t, w)
	assert.Equal(t, config.HTTPMsgImportDone, rep.Message)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 2, rep.Skipped)

	w = upload(t, h, "/import?strategy=error", "export.xlsx", export.Body.Bytes())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errDuplicateAbort.Code, errorCode(t, w))

	stats, err := mem.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalRecords)

	tpl := do(t, h, http.MethodGet, "/download-template", nil)
	assert.Equal(t, http.StatusOK, tpl.Code)
	assert.Contains(t, tpl.Header().Get(config.HeaderContentDisposition), config.TemplateFileName)

	vcf := do(t, h, http.MethodGet, "/export/contacts.vcf", nil)
	assert.Equal(t, http.StatusOK, vcf.Code)
	assert.Equal(t, 2, strings.Count(vcf.Body.String(), "BEGIN:VCARD"))
	assert.Contains(t, vcf.Body.String(), "+919876543210")
}

func TestBackupEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "12-03-1990")).Code)

	w := do(t, h, http.MethodGet, "/backup/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(config.HeaderContentDisposition), config.BackupFilePrefix)
	doc := decode[backup.Document](t, w)
	assert.Equal(t, 1, doc.TotalRecords)

	restore := upload(t, h, "/backup/restore", "backup.json", w.Body.Bytes())
	require.Equal(t, http.StatusOK, restore.Code, restore.Body.String())
	rep := decode[backup.RestoreReport](t, restore)
	assert.Equal(t, 1, rep.SkippedDuplicates)
	assert.Equal(t, 0, rep.RestoredRecords)

	bad := upload(t, h, "/backup/restore", "backup.json", []byte(`{"records":[]}`))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, errBackupFormat.Code, errorCode(t, bad))

	snap := do(t, h, http.MethodPost, "/backup/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, snap.Code)
	assert.Equal(t, errNotConfigured.Code, errorCode(t, snap))
}

// -----------------------------------------------------------------------------
// SMS
// -----------------------------------------------------------------------------

func TestSMSEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "10-03-1990")).Code)

	w := do(t, h, http.MethodPost, "/send-sms-bulk", sms.BulkRequest{
		Numbers: []string{"9876543210", "12", ""},
		Message: "Meeting at 5",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[sms.BulkResult](t, w)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"12"}, res.InvalidNumbers)
	assert.True(t, res.TestMode)

	w = do(t, h, http.MethodPost, "/send-sms-bulk", sms.BulkRequest{Numbers: []string{"9876543210"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errSMSMessage.Code, errorCode(t, w))

	// No ids: everyone celebrating today.
	w = do(t, h, http.MethodPost, "/send-sms-birthday", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[sms.BulkResult](t, w).Sent)

	w = do(t, h, http.MethodPost, "/send-sms-birthday", map[string]any{"ids": []int64{999}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/sms-history", nil)
	assert.Len(t, decode[[]sms.Batch](t, w), 2)

	w = do(t, h, http.MethodGet, "/sms-history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/sms-stats", nil)
	st := decode[sms.Stats](t, w)
	assert.EqualValues(t, 2, st.TotalMessagesSent)
	assert.EqualValues(t, 2, st.SentToday)

	w = do(t, h, http.MethodGet, "/sms-templates?lang=te", nil)
	te := decode[[]sms.Template](t, w)
	w = do(t, h, http.MethodGet, "/sms-templates?lang=xx", nil)
	en := decode[[]sms.Template](t, w)
	require.NotEmpty(t, en)
	assert.Len(t, te, len(en))
}

// -----------------------------------------------------------------------------
// Maintenance, metrics and errors
// -----------------------------------------------------------------------------

func TestAdminEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/records", person("Ravi", "9876543210", "10-03-1990")).Code)

	w := do(t, h, http.MethodPost, "/admin/recompute-flags", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/admin/fix-birth-dates", records.BackfillRequest{OffsetDays: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errConfirm.Code, errorCode(t, w))

	w = do(t, h, http.MethodPost, "/admin/fix-birth-dates", records.BackfillRequest{OffsetDays: 1, Confirm: config.BackfillConfirmToken})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	h := srv.Handler()
	do(t, h, http.MethodGet, "/stats", nil)
	do(t, h, http.MethodGet, "/records/42", nil)

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, config.MetricNamespace+"_"+config.MetricRequests)
	assert.Contains(t, body, `route="/records/{id}"`)
	assert.Contains(t, body, `status="404"`)
}

func TestToAPIError_HidesInternalCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	writeError(w, req, fmt.Errorf("dial tcp: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Equal(t, errInternal.Code, errorCode(t, w))

	assert.Equal(t, errTimeout.Code, toAPIError(context.DeadlineExceeded).Code)
}

// -----------------------------------------------------------------------------
// Integration Tests (Real TCP Lifecycle)
// -----------------------------------------------------------------------------

func TestServer_Lifecycle(t *testing.T) {
	const port = 18099
	srv, _ := newTestServer(t, Options{Host: "127.0.0.1", Port: port, RecomputeInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond, "server failed to listen in time")

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server shutdown timed out")
	}
}

func TestServer_InvalidPort(t *testing.T) {
	srv, _ := newTestServer(t, Options{Port: 70000})
	err := srv.Start(context.Background())
	assert.EqualError(t, err, config.ErrPortRange)
}

func TestRecomputeWorker_StopsWithContext(t *testing.T) {
	srv, mem := newTestServer(t, Options{RecomputeInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		srv.recomputeWorker(ctx)
		close(done)
	}()

	// The first pass runs immediately and records a maintenance run.
	require.Eventually(t, func() bool {
		runs, err := mem.Runs(context.Background(), config.MaintenanceRecompute)
		return err == nil && len(runs) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

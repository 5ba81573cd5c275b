package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/records"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": config.HTTPMsgRunning})
}

// decodeJSON reads a JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errMalformedBody.WithErr(err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// pathText returns an unescaped path parameter.
func pathText(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		v = unescaped
	}
	return strings.TrimSpace(v)
}

// queryInt parses an optional non-negative integer. ok is false when the value is
// present but not a non-negative integer.
func queryInt(r *http.Request, name string) (v *int, ok bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, false
	}
	return &n, true
}

// orEmpty makes empty lists encode as [] rather than null.
func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	page, okP := queryInt(r, config.QueryPage)
	size, okS := queryInt(r, config.QueryPageSize)
	if !okP || !okS || (page != nil && *page == 0) || (size != nil && (*size == 0 || *size > config.MaxPageSize)) {
		errInvalidPage.Write(w, r)
		return
	}

	p := records.Page{}
	if size != nil {
		p.Size = *size
		p.Number = 1
		if page != nil {
			p.Number = *page
		}
	}

	recs, err := s.deps.Records.List(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.deps.Records.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateRecord answers 201 with the new record, or 200 with the existing
// record when the natural key is already taken.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var in records.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.deps.Records.Create(r.Context(), referenceFrom(r.Context()), in)
	if errors.Is(err, records.ErrDuplicate) {
		writeJSON(w, http.StatusOK, map[string]any{"message": config.HTTPMsgDuplicate, "record": rec})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var changes json.RawMessage
	if err := decodeJSON(r, &changes); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.deps.Records.Update(r.Context(), referenceFrom(r.Context()), id, records.Changes(changes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Records.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": config.HTTPMsgDeleted})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.deps.Records.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
}

func (s *Server) handleDeleteVillage(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Records.DeleteVillage(r.Context(), pathText(r, "village"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
}

func (s *Server) handleByMandal(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.ByMandal(r.Context(), pathText(r, "mandal"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (s *Server) handleByVillage(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.ByVillage(r.Context(), pathText(r, "village"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

// handleSearch filters by text fields and by age, computed for the request's day.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	minAge, okMin := queryInt(r, config.QueryMinAge)
	maxAge, okMax := queryInt(r, config.QueryMaxAge)
	if !okMin || !okMax {
		errInvalidAge.Write(w, r)
		return
	}

	q := r.URL.Query()
	f := records.Filter{
		Name:          q.Get("name"),
		Mandal:        q.Get("mandalName"),
		Village:       q.Get("villageName"),
		Phone:         q.Get("phoneNumber"),
		Gender:        q.Get("gender"),
		Qualification: q.Get("qualification"),
		Occupation:    q.Get("occupation"),
		Caste:         q.Get("caste"),
		MinAge:        minAge,
		MaxAge:        maxAge,
	}
	recs, err := s.deps.Records.Search(r.Context(), referenceFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Records.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// -----------------------------------------------------------------------------
// Birthdays
// -----------------------------------------------------------------------------

func (s *Server) handleBirthdaysWeek(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.BirthdaysThisWeek(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (s *Server) handleBirthdaysMonth(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.BirthdaysThisMonth(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

func (s *Server) handleBirthdaysToday(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.BirthdaysToday(r.Context(), referenceFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

// handleUpcoming lists birthdays within ?days (default 30, at most 366).
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days := config.DefaultUpcomingDays
	v, ok := queryInt(r, config.QueryDays)
	if !ok || (v != nil && *v > config.MaxUpcomingDays) {
		errInvalidDays.Write(w, r)
		return
	}
	if v != nil {
		days = *v
	}

	recs, err := s.deps.Records.Upcoming(r.Context(), referenceFrom(r.Context()), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

// -----------------------------------------------------------------------------
// Maintenance
// -----------------------------------------------------------------------------

func (s *Server) handleRecomputeFlags(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Records.RecomputeFlags(r.Context(), referenceFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFixBirthDates(w http.ResponseWriter, r *http.Request) {
	var req records.BackfillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.deps.Records.BackfillBirthDates(r.Context(), referenceFrom(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/sms"
)

// language picks ?lang when a catalog exists for it.
func (s *Server) language(r *http.Request) string {
	lang := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(config.QueryLang)))
	if lang == "" || s.deps.Catalog == nil || !s.deps.Catalog.Supports(lang) {
		return config.DefaultLanguage
	}
	return lang
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req sms.BulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.SMS.SendBulk(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.ObserveSMS(res.Sent, res.Failed)
	writeJSON(w, http.StatusOK, res)
}

// handleSendBirthday greets the given record ids, or everyone celebrating today
// when no ids are given.
func (s *Server) handleSendBirthday(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs     []int64 `json:"ids"`
		Message string  `json:"message"`
		Lang    string  `json:"lang"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var recipients []sms.Recipient
	if len(req.IDs) == 0 {
		today, err := s.deps.Records.BirthdaysToday(r.Context(), referenceFrom(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, b := range today {
			recipients = append(recipients, sms.Recipient{Name: b.Name, Phone: b.PhoneNumber})
		}
	} else {
		for _, id := range req.IDs {
			rec, err := s.deps.Records.Get(r.Context(), id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			recipients = append(recipients, sms.Recipient{Name: rec.Name, Phone: rec.PhoneNumber})
		}
	}

	lang := strings.ToLower(strings.TrimSpace(req.Lang))
	if lang == "" {
		lang = s.language(r)
	}
	res, err := s.deps.SMS.SendBirthdayGreetings(r.Context(), recipients, req.Message, lang)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.ObserveSMS(res.Sent, res.Failed)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSMSTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(s.deps.SMS.Templates(s.language(r))))
}

func (s *Server) handleSMSHistory(w http.ResponseWriter, r *http.Request) {
	limit := config.HistoryLimit
	if raw := r.URL.Query().Get(config.QueryLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errInvalidPage.Write(w, r)
			return
		}
		limit = n
	}
	batches, err := s.deps.SMS.History(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleSMSStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.SMS.Stats(r.Context(), referenceFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tartampluch/smart-village/internal/backup"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/contacts"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/workbook"
)

// importResponse is the import report plus a human readable message.
type importResponse struct {
	Message string `json:"message"`
	records.ImportReport
}

// uploadedFile returns the multipart "file" part. The caller closes it.
func uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxUploadSize)
	if err := r.ParseMultipartForm(config.MaxUploadSize); err != nil {
		return nil, "", errNoFile.WithErr(err)
	}
	file, header, err := r.FormFile(config.UploadFormField)
	if err != nil {
		return nil, "", errNoFile
	}
	return file, header.Filename, nil
}

// sendAttachment writes data as a download.
func sendAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set(config.HeaderContentType, contentType)
	w.Header().Set(config.HeaderContentDisposition, fmt.Sprintf(config.FormatAttachment, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}

// -----------------------------------------------------------------------------
// Workbook import / export
// -----------------------------------------------------------------------------

// handleImport reads an uploaded xlsx workbook (?strategy=skip|update|error).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, name, err := uploadedFile(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = file.Close() }()

	if ext := strings.ToLower(filepath.Ext(name)); ext != config.ExtXLSX {
		errBadFileType.With(ext).Write(w, r)
		return
	}
	s.importWorkbook(w, r, file, r.URL.Query().Get(config.QueryStrategy))
}

// handleImportURL downloads a workbook from {url} and imports it.
func (s *Server) handleImportURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Strategy string `json:"strategy"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Fetcher == nil {
		errNotConfigured.Write(w, r)
		return
	}

	body, err := s.deps.Fetcher.Fetch(r.Context(), strings.TrimSpace(req.URL))
	switch {
	case errors.Is(err, engine.ErrTooLarge):
		errTooLarge.WithErr(err).Write(w, r)
		return
	case err != nil:
		errFetch.WithErr(err).Write(w, r)
		return
	}
	defer func() { _ = body.Close() }()

	s.importWorkbook(w, r, body, req.Strategy)
}

func (s *Server) importWorkbook(w http.ResponseWriter, r *http.Request, src io.Reader, strategy string) {
	rows, err := workbook.ReadRows(src)
	if err != nil {
		errWorkbook.WithErr(err).Write(w, r)
		return
	}

	report, err := s.deps.Records.Import(r.Context(), referenceFrom(r.Context()), rows, records.ImportOptions{Strategy: strategy})
	s.metrics.ObserveImport(report.Inserted, report.Updated, report.Skipped, report.Failed+report.Invalid)
	if errors.Is(err, records.ErrDuplicateAborted) {
		toAPIError(err).WithData(report).Write(w, r)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Message: config.HTTPMsgImportDone, ImportReport: report})
}

// handleExport downloads every record as a workbook, oldest first.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.List(r.Context(), records.Page{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	slices.Reverse(recs)

	var buf bytes.Buffer
	if err := workbook.WriteRecords(&buf, recs); err != nil {
		writeError(w, r, err)
		return
	}
	sendAttachment(w, config.MimeXLSX, config.ExportFileName, buf.Bytes())
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := workbook.WriteTemplate(&buf); err != nil {
		writeError(w, r, err)
		return
	}
	sendAttachment(w, config.MimeXLSX, config.TemplateFileName, buf.Bytes())
}

func (s *Server) handleExportContacts(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Records.List(r.Context(), records.Page{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	slices.Reverse(recs)

	var buf bytes.Buffer
	if err := contacts.Encode(&buf, recs, s.deps.CountryCode); err != nil {
		writeError(w, r, err)
		return
	}
	sendAttachment(w, config.MimeVCard, config.ContactsFileName, buf.Bytes())
}

// -----------------------------------------------------------------------------
// Backup
// -----------------------------------------------------------------------------

func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	ref := referenceFrom(r.Context())
	doc, err := s.deps.Backup.Export(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set(config.HeaderContentDisposition, fmt.Sprintf(config.FormatAttachment, backup.FileName(ref)))
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	file, _, err := uploadedFile(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = file.Close() }()

	report, err := s.deps.Backup.Restore(r.Context(), referenceFrom(r.Context()), file)
	s.metrics.ObserveImport(report.RestoredRecords, 0, report.SkippedDuplicates, report.Errors)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Backup.Snapshot(r.Context(), referenceFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": config.HTTPMsgSnapshotDone, "snapshot": snap})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Backup.Snapshots(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Package backup exports and restores the whole record table as a JSON document,
// optionally keeping snapshots in object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
	"github.com/tartampluch/smart-village/internal/records"
	"github.com/tartampluch/smart-village/internal/store"
)

var (
	// ErrInvalidFormat is returned when the document has no data array.
	ErrInvalidFormat = errors.New(config.ErrBackupFormat)
	// ErrNoArchive is returned by snapshot operations when no archive is configured.
	ErrNoArchive = errors.New(config.ErrBackupArchive)
)

// Archive stores snapshot documents.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]store.ObjectInfo, error)
}

// Document is the backup file layout.
type Document struct {
	ExportDate   time.Time        `json:"exportDate"`
	TotalRecords int              `json:"totalRecords"`
	Data         []records.Record `json:"data"`
}

// RestoreReport summarizes a restore.
type RestoreReport struct {
	Message           string `json:"message"`
	TotalInBackup     int    `json:"totalInBackup"`
	RestoredRecords   int    `json:"restoredRecords"`
	SkippedDuplicates int    `json:"skippedDuplicates"`
	Errors            int    `json:"errors"`
}

// Snapshot describes an uploaded document.
type Snapshot struct {
	Key          string `json:"key"`
	Size         int    `json:"size"`
	TotalRecords int    `json:"totalRecords"`
}

// Service runs backups against the record service.
type Service struct {
	records *records.Service
	archive Archive
}

// NewService wires a Service. archive may be nil, which disables snapshots.
func NewService(r *records.Service, archive Archive) *Service {
	return &Service{records: r, archive: archive}
}

func (s *Service) logger() *slog.Logger {
	return slog.With(config.LogKeyComponent, config.CompBackup)
}

// HasArchive reports whether snapshots are available.
func (s *Service) HasArchive() bool { return s.archive != nil }

// FileName is the attachment name of an export taken at ref.
func FileName(ref engine.Reference) string {
	return config.BackupFilePrefix + strconv.FormatInt(ref.Instant.UnixMilli(), 10) + config.BackupFileExt
}

// Export loads every record, oldest first.
func (s *Service) Export(ctx context.Context, ref engine.Reference) (Document, error) {
	recs, err := s.records.List(ctx, records.Page{})
	if err != nil {
		return Document{}, err
	}
	slices.Reverse(recs)
	if recs == nil {
		recs = []records.Record{}
	}
	return Document{
		ExportDate:   ref.Instant.UTC(),
		TotalRecords: len(recs),
		Data:         recs,
	}, nil
}

// restoreEntry reads one backup record. Ids, flags and timestamps are ignored;
// the date of birth is kept as text so a bad value does not lose the row.
type restoreEntry struct {
	records.Input
	DateOfBirth *string `json:"dateOfBirth"`
}

// Restore inserts the records of a backup document, skipping natural key
// duplicates. Unreadable entries are counted, not fatal.
func (s *Service) Restore(ctx context.Context, ref engine.Reference, r io.Reader) (RestoreReport, error) {
	var doc struct {
		Data *[]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return RestoreReport{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if doc.Data == nil {
		return RestoreReport{}, ErrInvalidFormat
	}

	log := s.logger()
	report := RestoreReport{TotalInBackup: len(*doc.Data)}

	rows := make([]records.ImportRow, 0, len(*doc.Data))
	for i, raw := range *doc.Data {
		var e restoreEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			report.Errors++
			log.Warn(config.MsgRestoreRowBad, config.LogKeyRow, i+1, config.LogKeyError, err)
			continue
		}
		row := records.ImportRow{Row: i + 1, Input: e.Input}
		if e.DateOfBirth != nil && *e.DateOfBirth != "" {
			if d, ok := engine.ParseInput(*e.DateOfBirth); ok {
				row.DateOfBirth = &d
			} else {
				// Left as text so the import reports it.
				row.DateOfBirth = *e.DateOfBirth
			}
		}
		rows = append(rows, row)
	}

	imported, err := s.records.Import(ctx, ref, rows, records.ImportOptions{Strategy: config.StrategySkip})
	report.RestoredRecords = imported.Inserted
	report.SkippedDuplicates = imported.Skipped
	report.Errors += imported.Invalid + imported.Failed
	if err != nil {
		return report, err
	}
	report.Message = config.HTTPMsgRestoreDone

	log.Info(config.MsgRestoreDone,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, report.TotalInBackup),
			slog.Int(config.LogKeyInserted, report.RestoredRecords),
			slog.Int(config.LogKeySkipped, report.SkippedDuplicates),
			slog.Int(config.LogKeyFailed, report.Errors),
		),
	)
	return report, nil
}

// Snapshot uploads an export to the archive.
func (s *Service) Snapshot(ctx context.Context, ref engine.Reference) (Snapshot, error) {
	if s.archive == nil {
		return Snapshot{}, ErrNoArchive
	}
	doc, err := s.Export(ctx, ref)
	if err != nil {
		return Snapshot{}, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", config.ErrBackupUpload, err)
	}

	key := fmt.Sprintf(config.FormatBackupObjectKey, ref.Instant.UTC().Format(config.FormatSnapshotStamp))
	if err := s.archive.Put(ctx, key, buf.Bytes(), config.MimeJSON); err != nil {
		return Snapshot{}, err
	}

	s.logger().Info(config.MsgSnapshotUploaded,
		config.LogKeyObject, key,
		config.LogKeySizeBytes, buf.Len(),
		config.LogKeyCount, doc.TotalRecords,
	)
	return Snapshot{Key: key, Size: buf.Len(), TotalRecords: doc.TotalRecords}, nil
}

// Snapshots lists the archived documents, newest first.
func (s *Service) Snapshots(ctx context.Context) ([]store.ObjectInfo, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	list, err := s.archive.List(ctx, config.BackupObjectPrefix)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []store.ObjectInfo{}
	}
	return list, nil
}

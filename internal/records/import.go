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

// ImportRow is one data row of a workbook or backup.
type ImportRow struct {
	// Row is the 1-based sheet row (the header is row 1).
	Row   int
	Input Input
	// DateOfBirth is the raw cell (string, serial number or date). When nil,
	// Input.DateOfBirth is used.
	DateOfBirth any
}

// ImportOptions selects how duplicates are handled.
type ImportOptions struct {
	Strategy string `json:"strategy"`
}

// RowIssue points at a row with missing or invalid fields.
type RowIssue struct {
	Row     int      `json:"row"`
	Name    string   `json:"name,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ImportReport counts what happened to each row. Bad rows never abort the batch.
type ImportReport struct {
	Total       int        `json:"total"`
	Inserted    int        `json:"inserted"`
	Updated     int        `json:"updated"`
	Skipped     int        `json:"skipped"`
	Invalid     int        `json:"invalid"`
	Failed      int        `json:"failed"`
	Aborted     bool       `json:"aborted"`
	InvalidRows []RowIssue `json:"invalidRows"`
	FailedRows  []RowIssue `json:"failedRows"`
	// DateIssues lists imported rows whose date of birth was unreadable and dropped.
	DateIssues []RowIssue `json:"dateIssues"`
}

// Import stores rows one by one, deduplicating on the natural key. Rows with missing
// required fields are reported and skipped. An unreadable date of birth is reported
// but the row is still imported without one. The "error" strategy stops at the first
// duplicate and returns ErrDuplicateAborted with the partial report.
func (s *Service) Import(ctx context.Context, ref engine.Reference, rows []ImportRow, opts ImportOptions) (ImportReport, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = config.StrategySkip
	}
	switch strategy {
	case config.StrategySkip, config.StrategyUpdate, config.StrategyError:
	default:
		return ImportReport{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	log := slog.With(config.LogKeyComponent, config.CompImport, config.LogKeyStrategy, strategy)
	log.Info(config.MsgImportStarted, config.LogKeyTotal, len(rows))

	report := ImportReport{
		Total:       len(rows),
		InvalidRows: []RowIssue{},
		FailedRows:  []RowIssue{},
		DateIssues:  []RowIssue{},
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		in := row.Input.trimmed()
		if err := s.valid.Check(in); err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return report, err
			}
			report.Invalid++
			report.InvalidRows = append(report.InvalidRows, RowIssue{
				Row: row.Row, Name: in.Name, Missing: verr.Missing, Invalid: verr.Invalid,
			})
			log.Warn(config.MsgImportRowInvalid, config.LogKeyRow, row.Row, config.LogKeyError, verr.Error())
			continue
		}

		var dob *engine.CivilDate
		raw := row.DateOfBirth
		if raw == nil && in.DateOfBirth != "" {
			raw = in.DateOfBirth
		}
		d, ok := engine.Normalize(raw)
		if !ok && row.DateOfBirth == nil && in.DateOfBirth != "" {
			// Typed input may also be ISO.
			d, ok = engine.ParseInput(in.DateOfBirth)
		}
		if ok {
			dob = &d
		} else if !isBlank(raw) {
			report.DateIssues = append(report.DateIssues, RowIssue{Row: row.Row, Name: in.Name, Invalid: []string{"dateOfBirth"}})
			log.Debug(config.MsgInvalidDOB, config.LogKeyRow, row.Row, config.LogKeyValue, fmt.Sprint(raw))
		}

		outcome, err := s.importOne(ctx, ref, in, dob, strategy)
		switch {
		case errors.Is(err, ErrDuplicateAborted):
			report.Aborted = true
			report.FailedRows = append(report.FailedRows, RowIssue{Row: row.Row, Name: in.Name, Error: err.Error()})
			log.Warn(config.ErrDuplicateAborted, config.LogKeyRow, row.Row)
			return report, fmt.Errorf("%w: row %d", ErrDuplicateAborted, row.Row)
		case err != nil:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			report.FailedRows = append(report.FailedRows, RowIssue{Row: row.Row, Name: in.Name, Error: err.Error()})
			log.Error(config.MsgImportRowFailed, config.LogKeyRow, row.Row, config.LogKeyError, err)
			continue
		}

		switch outcome {
		case outcomeInserted:
			report.Inserted++
		case outcomeUpdated:
			report.Updated++
		case outcomeSkipped:
			report.Skipped++
		}

		if done := report.Inserted + report.Updated; done > 0 && done%config.ImportProgressEvery == 0 && outcome != outcomeSkipped {
			log.Info(config.MsgImportProgress, config.LogKeyCount, done)
		}
	}

	log.Info(config.MsgImportDone,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, report.Total),
			slog.Int(config.LogKeyInserted, report.Inserted),
			slog.Int(config.LogKeyUpdated, report.Updated),
			slog.Int(config.LogKeySkipped, report.Skipped),
			slog.Int(config.LogKeyInvalid, report.Invalid),
			slog.Int(config.LogKeyFailed, report.Failed),
		),
	)
	return report, nil
}

type importOutcome int

const (
	outcomeInserted importOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

func (s *Service) importOne(ctx context.Context, ref engine.Reference, in Input, dob *engine.CivilDate, strategy string) (importOutcome, error) {
	unlock, err := s.lock(ctx, in.Key())
	if err != nil {
		return 0, err
	}
	defer unlock()

	existing, err := s.store.FindByKey(ctx, in.Key())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	if err == nil {
		switch strategy {
		case config.StrategyUpdate:
			in.apply(&existing)
			existing.DateOfBirth = dob
			existing.ApplyFlags(ref.Today)
			existing.UpdatedAt = ref.Instant
			if err := s.store.Update(ctx, &existing); err != nil {
				return 0, err
			}
			return outcomeUpdated, nil
		case config.StrategyError:
			return 0, ErrDuplicateAborted
		default:
			return outcomeSkipped, nil
		}
	}

	rec := Record{DateOfBirth: dob, CreatedAt: ref.Instant, UpdatedAt: ref.Instant}
	in.apply(&rec)
	rec.ApplyFlags(ref.Today)
	if err := s.store.Insert(ctx, &rec); err != nil {
		if errors.Is(err, ErrDuplicate) && strategy == config.StrategySkip {
			return outcomeSkipped, nil
		}
		return 0, err
	}
	return outcomeInserted, nil
}

func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *engine.CivilDate:
		return v == nil
	default:
		return false
	}
}

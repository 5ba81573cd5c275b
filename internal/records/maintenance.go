package records

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
)

// RecomputeReport describes a flag recomputation.
type RecomputeReport struct {
	Scanned int   `json:"scanned"`
	Updated int64 `json:"updated"`
}

// RecomputeFlags rewrites the stored week/month flags for ref.Today. Only records
// whose flags changed are written.
func (s *Service) RecomputeFlags(ctx context.Context, ref engine.Reference) (RecomputeReport, error) {
	recs, err := s.store.List(ctx, Page{})
	if err != nil {
		return RecomputeReport{}, err
	}

	var updates []BirthUpdate
	for _, r := range recs {
		flags := engine.ComputeFlags(r.DateOfBirth, ref.Today)
		if flags.ThisWeek == r.BirthdayThisWeek && flags.ThisMonth == r.BirthdayThisMonth {
			continue
		}
		updates = append(updates, BirthUpdate{ID: r.ID, DateOfBirth: r.DateOfBirth, Flags: flags})
	}

	report := RecomputeReport{Scanned: len(recs)}
	if len(updates) > 0 {
		if report.Updated, err = s.store.SetBirthData(ctx, updates); err != nil {
			return report, err
		}
	}

	if err := s.audit.RecordRun(ctx, MaintenanceRun{
		Name:    config.MaintenanceRecompute,
		Touched: report.Updated,
		RanAt:   ref.Instant,
	}); err != nil {
		return report, err
	}

	s.logger().Info(config.MsgFlagsRecomputed,
		config.LogKeyToday, ref.Today.String(),
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, report.Scanned),
			slog.Int64(config.LogKeyUpdated, report.Updated),
		),
	)
	return report, nil
}

// BackfillRequest asks for the one-time birth date correction.
type BackfillRequest struct {
	OffsetDays int    `json:"offsetDays"`
	Confirm    string `json:"confirm"`
}

// BackfillReport is the audit outcome of a correction run.
type BackfillReport struct {
	OffsetDays   int              `json:"offsetDays"`
	Touched      int64            `json:"touched"`
	PreviousRuns []MaintenanceRun `json:"previousRuns"`
	Warning      string           `json:"warning,omitempty"`
}

// BackfillBirthDates shifts every stored date of birth by OffsetDays and recomputes
// the flags. It repairs dates that lost a day in a time zone round trip.
//
// The operation is not idempotent: a second run shifts again. It therefore needs the
// confirmation token, and reports earlier runs instead of refusing them so the
// operator can decide.
func (s *Service) BackfillBirthDates(ctx context.Context, ref engine.Reference, req BackfillRequest) (BackfillReport, error) {
	if req.Confirm != config.BackfillConfirmToken {
		return BackfillReport{}, ErrConfirmRequired
	}
	if req.OffsetDays == 0 {
		return BackfillReport{}, fmt.Errorf("%w: %s", ErrInvalidInput, config.ErrOffsetZero)
	}

	previous, err := s.audit.Runs(ctx, config.MaintenanceBackfill)
	if err != nil {
		return BackfillReport{}, err
	}
	report := BackfillReport{OffsetDays: req.OffsetDays, PreviousRuns: previous}
	if len(previous) > 0 {
		report.Warning = config.MsgBackfillRepeat
		s.logger().Warn(config.MsgBackfillRepeat, config.LogKeyPrevious, len(previous))
	}

	recs, err := s.store.WithBirthDate(ctx)
	if err != nil {
		return report, err
	}

	updates := make([]BirthUpdate, 0, len(recs))
	for _, r := range recs {
		if r.DateOfBirth == nil {
			continue
		}
		shifted := engine.ShiftDays(*r.DateOfBirth, req.OffsetDays)
		updates = append(updates, BirthUpdate{
			ID:          r.ID,
			DateOfBirth: &shifted,
			Flags:       engine.ComputeFlags(&shifted, ref.Today),
		})
	}

	if len(updates) > 0 {
		if report.Touched, err = s.store.SetBirthData(ctx, updates); err != nil {
			return report, err
		}
	}

	if err := s.audit.RecordRun(ctx, MaintenanceRun{
		Name:       config.MaintenanceBackfill,
		OffsetDays: req.OffsetDays,
		Touched:    report.Touched,
		RanAt:      ref.Instant,
	}); err != nil {
		return report, err
	}

	s.logger().Warn(config.MsgBackfillDone,
		config.LogKeyOffset, req.OffsetDays,
		config.LogKeyCount, report.Touched,
	)
	return report, nil
}

// MaintenanceHistory lists past runs of a maintenance operation.
func (s *Service) MaintenanceHistory(ctx context.Context, name string) ([]MaintenanceRun, error) {
	return s.audit.Runs(ctx, name)
}

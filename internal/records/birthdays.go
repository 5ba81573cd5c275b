package records

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
)

// BirthdaysThisWeek reads the stored flag. It reflects the day the flag was last
// computed, not necessarily today.
func (s *Service) BirthdaysThisWeek(ctx context.Context) ([]Record, error) {
	return s.store.WithFlag(ctx, FlagThisWeek)
}

// BirthdaysThisMonth reads the stored flag, with the same staleness as the week flag.
func (s *Service) BirthdaysThisMonth(ctx context.Context) ([]Record, error) {
	return s.store.WithFlag(ctx, FlagThisMonth)
}

// BirthdaysToday is computed from dates of birth.
func (s *Service) BirthdaysToday(ctx context.Context, ref engine.Reference) ([]UpcomingBirthday, error) {
	return s.Upcoming(ctx, ref, 0)
}

// Upcoming lists records whose next birthday is at most days away, soonest first.
func (s *Service) Upcoming(ctx context.Context, ref engine.Reference, days int) ([]UpcomingBirthday, error) {
	if days < 0 || days > config.MaxUpcomingDays {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, config.HTTPMsgInvalidDays)
	}

	recs, err := s.store.WithBirthDate(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]UpcomingBirthday, 0)
	for _, r := range recs {
		if r.DateOfBirth == nil || !r.DateOfBirth.IsValid() {
			continue
		}
		occ := engine.NextBirthday(*r.DateOfBirth, ref.Today)
		if occ.DaysUntil > days {
			continue
		}
		out = append(out, UpcomingBirthday{
			Record:     r,
			Occurrence: occ,
			CurrentAge: engine.AgeAsOf(*r.DateOfBirth, ref.Today),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysUntil != out[j].DaysUntil {
			return out[i].DaysUntil < out[j].DaysUntil
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CalendarEntries projects every record with a date of birth for the ICS feed.
func (s *Service) CalendarEntries(ctx context.Context) ([]engine.CalendarEntry, error) {
	recs, err := s.store.WithBirthDate(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]engine.CalendarEntry, 0, len(recs))
	for _, r := range recs {
		if r.DateOfBirth == nil {
			continue
		}
		entries = append(entries, engine.CalendarEntry{
			Key:         strconv.FormatInt(r.ID, 10),
			Name:        r.Name,
			Village:     r.VillageName,
			DateOfBirth: *r.DateOfBirth,
		})
	}
	return entries, nil
}

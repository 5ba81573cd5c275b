package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/smart-village/internal/config"
)

// SummaryFunc renders an event title. age is 0 for the year of birth.
type SummaryFunc func(name string, age int) string

// CalendarBuilder turns residents into an iCalendar birthday feed.
type CalendarBuilder struct {
	// Summary injects localized event titles. Nil falls back to English.
	Summary SummaryFunc
}

type calendarStats struct{ entries, skipped, today int }

// Build encodes one all-day event per resident for the previous, current and next
// year of ref. It returns the feed and how many residents celebrate on ref.Today.
func (b *CalendarBuilder) Build(ctx context.Context, entries []CalendarEntry, ref Reference) ([]byte, int, error) {
	cal := ical.NewCalendar()

	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	// RFC 7986 refresh hint.
	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(ref.Instant.UTC())

	var stats calendarStats
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		stats.entries++
		if !e.DateOfBirth.IsValid() {
			stats.skipped++
			continue
		}
		if IsBirthdayToday(e.DateOfBirth, ref.Today) {
			stats.today++
		}
		for _, ev := range b.createEvents(e, ref.Today) {
			ev.Props.Set(dtStampProp)
			cal.Children = append(cal.Children, ev.Component)
		}
	}

	if len(cal.Children) == 0 {
		b.logSuccess(stats)
		return []byte(config.StubVCalendar), 0, nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	b.logSuccess(stats)
	return buf.Bytes(), stats.today, nil
}

// createEvents skips years before birth; the anniversary uses the Feb 28 leap fallback.
func (b *CalendarBuilder) createEvents(e CalendarEntry, today CivilDate) []*ical.Event {
	uidBase := entryUID(e)

	var events []*ical.Event
	for _, y := range []int{today.Year - 1, today.Year, today.Year + 1} {
		if y < e.DateOfBirth.Year {
			continue
		}
		age := y - e.DateOfBirth.Year

		event := ical.NewEvent()
		event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, uidBase, y, config.ICalDomain))
		event.Props.SetText(config.PropSummary, b.summary(e.Name, age))
		if e.Village != "" {
			event.Props.SetText(config.PropLocation, e.Village)
		}

		dtStartProp := ical.NewProp(config.PropDTStart)
		dtStartProp.SetDate(Anniversary(e.DateOfBirth, y).Time())
		event.Props.Set(dtStartProp)

		events = append(events, event)
	}
	return events
}

func (b *CalendarBuilder) summary(name string, age int) string {
	if b.Summary != nil {
		return b.Summary(name, age)
	}
	if age == 0 {
		return fmt.Sprintf(config.FallbackSummaryBirth, name)
	}
	return fmt.Sprintf(config.FallbackSummaryAge, name, age)
}

// entryUID is stable across refreshes as long as key, name and birth date do not change.
func entryUID(e CalendarEntry) string {
	input := fmt.Sprintf(config.FormatHashInput, e.Key, e.Name, e.DateOfBirth.String()) + config.UIDSalt
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:config.UIDHashLength])
}

func (b *CalendarBuilder) logSuccess(stats calendarStats) {
	slog.Info(config.MsgCalendarBuilt,
		config.LogKeyComponent, config.CompCalendar,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, stats.entries),
			slog.Int(config.LogKeySkipped, stats.skipped),
			slog.Int(config.LogKeyToday, stats.today),
		),
	)
}

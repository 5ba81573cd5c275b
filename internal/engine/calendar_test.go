package engine_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/smart-village/internal/config"
	"github.com/tartampluch/smart-village/internal/engine"
)

// -----------------------------------------------------------------------------
// Mocks
// -----------------------------------------------------------------------------

// MockClock controls time for deterministic testing.
type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

var ist = time.FixedZone("IST", 5*3600+1800)

func refOn(y int, m time.Month, d int) engine.Reference {
	return engine.ReferenceAt(time.Date(y, m, d, 10, 0, 0, 0, ist), ist)
}

// -----------------------------------------------------------------------------
// Reference clock
// -----------------------------------------------------------------------------

// TestCivilClock_AnchorsToIST checks that the civil day follows IST, not UTC.
func TestCivilClock_AnchorsToIST(t *testing.T) {
	// 2024-12-31 20:00 UTC is already 2025-01-01 01:30 in India.
	clock := engine.NewCivilClock(MockClock{CurrentTime: time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)}, ist)

	ref := clock.Reference()
	assert.Equal(t, civil(2025, time.January, 1), ref.Today)
	assert.Equal(t, ist, ref.Instant.Location())

	// 18:29 UTC is still the same day in IST.
	clock.Clock = MockClock{CurrentTime: time.Date(2024, 12, 31, 18, 29, 0, 0, time.UTC)}
	assert.Equal(t, civil(2024, time.December, 31), clock.Reference().Today)
}

func TestLoadCivilLocation(t *testing.T) {
	loc, err := engine.LoadCivilLocation("")
	require.NoError(t, err)
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, config.ISTOffsetSeconds, offset)

	loc, err = engine.LoadCivilLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = engine.LoadCivilLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// Calendar feed
// -----------------------------------------------------------------------------

func TestBuild_GeneratesYearRange(t *testing.T) {
	b := &engine.CalendarBuilder{}
	entries := []engine.CalendarEntry{
		{Key: "1", Name: "Range Test", Village: "Kondapur", DateOfBirth: civil(1990, time.December, 31)},
	}

	ics, today, err := b.Build(context.Background(), entries, refOn(2025, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, today)

	s := string(ics)
	assert.Contains(t, s, "BEGIN:VCALENDAR")
	assert.Contains(t, s, "DTSTART;VALUE=DATE:20241231")
	assert.Contains(t, s, "DTSTART;VALUE=DATE:20251231")
	assert.Contains(t, s, "DTSTART;VALUE=DATE:20261231")
	assert.Contains(t, s, "LOCATION:Kondapur")
	assert.Contains(t, s, "SUMMARY:Birthday: Range Test (35)")
	assert.Equal(t, 3, strings.Count(s, "BEGIN:VEVENT"))
}

func TestBuild_BabyBornThisYear(t *testing.T) {
	b := &engine.CalendarBuilder{
		Summary: func(name string, age int) string {
			if age == 0 {
				return fmt.Sprintf("Birthday: %s (Birth)", name)
			}
			return fmt.Sprintf("Birthday: %s (%d)", name, age)
		},
	}
	entries := []engine.CalendarEntry{{Key: "2", Name: "Baby", DateOfBirth: civil(2025, time.May, 1)}}

	ics, _, err := b.Build(context.Background(), entries, refOn(2025, time.January, 1))
	require.NoError(t, err)

	s := string(ics)
	assert.NotContains(t, s, "DTSTART;VALUE=DATE:20240501", "no event before birth")
	assert.Contains(t, s, "SUMMARY:Birthday: Baby (Birth)")
	assert.Contains(t, s, "SUMMARY:Birthday: Baby (1)")
	assert.Equal(t, 2, strings.Count(s, "BEGIN:VEVENT"))
}

func TestBuild_LeapDayFallsOnFeb28(t *testing.T) {
	entries := []engine.CalendarEntry{{Key: "3", Name: "Leap Baby", DateOfBirth: civil(2000, time.February, 29)}}

	ics, today, err := (&engine.CalendarBuilder{}).Build(context.Background(), entries, refOn(2025, time.February, 28))
	require.NoError(t, err)
	assert.Equal(t, 1, today)

	s := string(ics)
	assert.Contains(t, s, "DTSTART;VALUE=DATE:20240229")
	assert.Contains(t, s, "DTSTART;VALUE=DATE:20250228")
	assert.Contains(t, s, "DTSTART;VALUE=DATE:20260228")
}

func TestBuild_EmptyAndInvalid(t *testing.T) {
	entries := []engine.CalendarEntry{{Key: "4", Name: "No Date"}}

	ics, today, err := (&engine.CalendarBuilder{}).Build(context.Background(), entries, refOn(2025, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, today)
	assert.Equal(t, config.StubVCalendar, string(ics))
}

func TestBuild_StableUIDs(t *testing.T) {
	entries := []engine.CalendarEntry{{Key: "5", Name: "Stable", DateOfBirth: civil(1985, time.July, 7)}}
	b := &engine.CalendarBuilder{}

	first, _, err := b.Build(context.Background(), entries, refOn(2025, time.June, 1))
	require.NoError(t, err)
	second, _, err := b.Build(context.Background(), entries, refOn(2025, time.June, 2))
	require.NoError(t, err)

	uids := func(ics []byte) []string {
		var out []string
		for _, line := range strings.Split(string(ics), "\r\n") {
			if strings.HasPrefix(line, "UID:") {
				out = append(out, line)
			}
		}
		return out
	}
	assert.Len(t, uids(first), 3)
	assert.Equal(t, uids(first), uids(second))
}

func TestBuild_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := []engine.CalendarEntry{{Key: "6", Name: "X", DateOfBirth: civil(1990, time.January, 1)}}
	_, _, err := (&engine.CalendarBuilder{}).Build(ctx, entries, refOn(2025, time.June, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

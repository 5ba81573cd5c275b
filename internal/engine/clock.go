package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
)

// Clock abstracts time.Now() to allow deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current instant.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Reference is "now" pinned to the village calendar. One Reference is taken per
// request or job and every date computation of that evaluation uses its Today.
type Reference struct {
	Instant time.Time
	Today   CivilDate
}

// ReferenceAt anchors an instant to loc.
func ReferenceAt(t time.Time, loc *time.Location) Reference {
	local := t.In(loc)
	return Reference{Instant: local, Today: FromTime(local)}
}

// CivilClock produces References in a fixed civil calendar, whatever the host zone is.
type CivilClock struct {
	Clock    Clock
	Location *time.Location
}

// NewCivilClock returns a CivilClock. A nil clock means the real one.
func NewCivilClock(c Clock, loc *time.Location) *CivilClock {
	if c == nil {
		c = RealClock{}
	}
	return &CivilClock{Clock: c, Location: loc}
}

// Reference takes the current instant once and converts it to the civil calendar.
func (c *CivilClock) Reference() Reference {
	return ReferenceAt(c.Clock.Now(), c.Location)
}

// LoadCivilLocation resolves the configured zone. The default zone falls back to a
// fixed UTC+5:30 offset when the host has no tz database.
func LoadCivilLocation(name string) (*time.Location, error) {
	if name == "" {
		name = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == config.DefaultTimezone {
		slog.Warn(config.ErrTimezone,
			config.LogKeyComponent, config.CompEngine,
			config.LogKeyValue, name,
			config.LogKeyError, err)
		return time.FixedZone(config.ISTZoneName, config.ISTOffsetSeconds), nil
	}
	return nil, fmt.Errorf("%s: %w", config.ErrTimezone, err)
}

package engine

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tartampluch/smart-village/internal/config"
)

// CivilDate is a calendar date with no time of day and no time zone.
// Birth dates are civil facts: they are never routed through an instant.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewCivilDate builds a CivilDate and reports whether it is a real calendar date.
func NewCivilDate(year int, month time.Month, day int) (CivilDate, bool) {
	d := CivilDate{Year: year, Month: month, Day: day}
	return d, d.IsValid()
}

// FromTime takes the year, month and day fields of t as they are in t's own location.
// No zone conversion is performed.
func FromTime(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// IsValid reports whether d names a day that exists (no Feb 30, no April 31).
func (d CivilDate) IsValid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return d.Day <= daysInMonth(d.Year, d.Month)
}

// IsZero reports whether d is the zero value.
func (d CivilDate) IsZero() bool {
	return d == CivilDate{}
}

// Time returns midnight UTC of d. Only storage adapters and calendar encoders use it.
func (d CivilDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after o.
func (d CivilDate) Compare(o CivilDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d CivilDate) Before(o CivilDate) bool { return d.Compare(o) < 0 }
func (d CivilDate) After(o CivilDate) bool  { return d.Compare(o) > 0 }
func (d CivilDate) Equal(o CivilDate) bool  { return d == o }

// AddDays returns the date n days after d (n may be negative).
func (d CivilDate) AddDays(n int) CivilDate {
	return fromDayNumber(d.dayNumber() + n)
}

// DaysBetween counts whole civil days from 'from' to 'to'. It is negative when to is earlier.
func DaysBetween(from, to CivilDate) int {
	return to.dayNumber() - from.dayNumber()
}

// String renders d in ISO form (YYYY-MM-DD).
func (d CivilDate) String() string {
	return fmt.Sprintf(config.FormatISO, d.Year, int(d.Month), d.Day)
}

// DMY renders d as DD-MM-YYYY, the workbook convention.
func (d CivilDate) DMY() string {
	return fmt.Sprintf(config.FormatDMY, d.Day, int(d.Month), d.Year)
}

// -----------------------------------------------------------------------------
// Parsing
// -----------------------------------------------------------------------------

var errInvalidDate = errors.New("invalid calendar date")

// ParseDMY parses a day-first, dash separated date. Fields are taken literally:
// one or two digits for day and month, four for the year.
func ParseDMY(s string) (CivilDate, bool) {
	parts := strings.Split(strings.TrimSpace(s), config.DateSeparator)
	if len(parts) != 3 {
		return CivilDate{}, false
	}
	day, okD := digits(parts[0], 1, 2)
	month, okM := digits(parts[1], 1, 2)
	year, okY := digits(parts[2], 4, 4)
	if !okD || !okM || !okY {
		return CivilDate{}, false
	}
	return NewCivilDate(year, time.Month(month), day)
}

// ParseISO parses YYYY-MM-DD. A trailing time part ("T..." or " ...") is ignored
// and the date part is kept as written, so legacy timestamps keep their stored day.
func ParseISO(s string) (CivilDate, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(config.DateFormatISO) {
		return CivilDate{}, false
	}
	if len(s) > len(config.DateFormatISO) {
		if sep := s[len(config.DateFormatISO)]; sep != 'T' && sep != ' ' {
			return CivilDate{}, false
		}
		s = s[:len(config.DateFormatISO)]
	}
	t, err := time.Parse(config.DateFormatISO, s)
	if err != nil {
		return CivilDate{}, false
	}
	return FromTime(t), true
}

// ParseInput accepts the two textual forms used by API clients: ISO first, then DD-MM-YYYY.
func ParseInput(s string) (CivilDate, bool) {
	if d, ok := ParseISO(s); ok {
		return d, true
	}
	return ParseDMY(s)
}

func digits(s string, minLen, maxLen int) (int, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// -----------------------------------------------------------------------------
// Encoding (JSON & SQL)
// -----------------------------------------------------------------------------

// MarshalJSON encodes d as an ISO date string.
func (d CivilDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts ISO dates, ISO timestamps (date part taken literally) and DD-MM-YYYY.
func (d *CivilDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", errInvalidDate, string(data))
	}
	parsed, ok := ParseInput(s)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidDate, s)
	}
	*d = parsed
	return nil
}

// Value stores d as an ISO date literal, which a DATE column accepts without zone handling.
func (d CivilDate) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan reads a DATE column. Drivers hand dates back as time.Time at midnight UTC,
// or as text for some drivers.
func (d *CivilDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = FromTime(v)
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	default:
		return fmt.Errorf("%w: cannot scan %T", errInvalidDate, src)
	}
}

func (d *CivilDate) scanText(s string) error {
	parsed, ok := ParseISO(s)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidDate, s)
	}
	*d = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Calendar arithmetic
// -----------------------------------------------------------------------------

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysInMonth(year int, month time.Month) int {
	switch month {
	case time.February:
		if isLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// dayNumber counts days since 1970-01-01 in the proleptic Gregorian calendar.
func (d CivilDate) dayNumber() int {
	y := d.Year
	m := int(d.Month)
	if m <= 2 {
		y--
	}
	era := floorDiv(y, 400)
	yoe := y - era*400
	mp := (m + 9) % 12
	doy := (153*mp+2)/5 + d.Day - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

func fromDayNumber(z int) CivilDate {
	z += 719468
	era := floorDiv(z, 146097)
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day := doy - (153*mp+2)/5 + 1
	month := mp + 3
	if mp >= 10 {
		month = mp - 9
	}
	if month <= 2 {
		y++
	}
	return CivilDate{Year: y, Month: time.Month(month), Day: day}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

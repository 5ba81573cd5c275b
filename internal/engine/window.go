package engine

import (
	"time"

	"github.com/tartampluch/smart-village/internal/config"
)

// Occurrence is a birthday's next civil anniversary relative to a reference day.
type Occurrence struct {
	Date      CivilDate `json:"birthdayDateThisCycle"`
	DaysUntil int       `json:"daysUntilBirthday"`
	Age       int       `json:"upcomingAge"`
}

// WindowFlags are the two booleans stored on each record.
// They describe the reference day they were computed on and go stale afterwards.
type WindowFlags struct {
	ThisWeek  bool
	ThisMonth bool
}

// Anniversary returns dob's anniversary in the given year.
// Feb 29 falls back to Feb 28 in non-leap years.
func Anniversary(dob CivilDate, year int) CivilDate {
	if dob.Month == time.February && dob.Day == 29 && !isLeapYear(year) {
		return CivilDate{Year: year, Month: time.February, Day: 28}
	}
	return CivilDate{Year: year, Month: dob.Month, Day: dob.Day}
}

// NextBirthday picks this year's anniversary, or next year's when it has already passed.
// A birthday falling on today is today's (DaysUntil 0).
func NextBirthday(dob, today CivilDate) Occurrence {
	cycle := Anniversary(dob, today.Year)
	if cycle.Before(today) {
		cycle = Anniversary(dob, today.Year+1)
	}
	return Occurrence{
		Date:      cycle,
		DaysUntil: DaysBetween(today, cycle),
		Age:       UpcomingAge(dob, cycle),
	}
}

// IsWithinWindow reports whether the next birthday is at most windowDays away.
func IsWithinWindow(dob, today CivilDate, windowDays int) bool {
	if windowDays < 0 {
		return false
	}
	days := NextBirthday(dob, today).DaysUntil
	return days >= 0 && days <= windowDays
}

// IsBirthdayToday is the zero-day window.
func IsBirthdayToday(dob, today CivilDate) bool {
	return IsWithinWindow(dob, today, 0)
}

// IsBirthdayThisMonth compares month numbers only; day and year are ignored.
func IsBirthdayThisMonth(dob, today CivilDate) bool {
	return dob.Month == today.Month
}

// ComputeFlags derives the stored flags. A missing date of birth yields no flags.
func ComputeFlags(dob *CivilDate, today CivilDate) WindowFlags {
	if dob == nil || !dob.IsValid() {
		return WindowFlags{}
	}
	return WindowFlags{
		ThisWeek:  IsWithinWindow(*dob, today, config.WeekWindowDays),
		ThisMonth: IsBirthdayThisMonth(*dob, today),
	}
}

// ShiftDays moves a stored date by a fixed offset. It is the primitive of the one-time
// birth date correction and is not idempotent: applying it twice shifts twice.
func ShiftDays(dob CivilDate, offsetDays int) CivilDate {
	return dob.AddDays(offsetDays)
}

package engine

// CalendarEntry is a resident as seen by the birthday calendar feed.
// It decouples the feed from the record model.
type CalendarEntry struct {
	// Key identifies the resident across refreshes (the record id).
	Key string

	// Name is the display name.
	Name string

	// Village ends up in the event LOCATION.
	Village string

	// DateOfBirth is the normalized birth date.
	DateOfBirth CivilDate
}

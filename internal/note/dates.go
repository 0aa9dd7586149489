package note

import "time"

// DateLayout is the persisted due-date format.
const DateLayout = "2006-01-02"

// Today returns now's calendar date in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// Tomorrow returns the calendar date after now in loc.
func Tomorrow(now time.Time, loc *time.Location) string {
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc).Format(DateLayout)
}

// ValidDate reports whether s is a real YYYY-MM-DD date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

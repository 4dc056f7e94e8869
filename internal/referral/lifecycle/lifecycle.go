// Package lifecycle derives a referral's status from its installation date and verification flag.
package lifecycle

import "time"

type Status string

const (
	StatusPending        Status = "pending"
	StatusWaitForInstall Status = "wait_for_install"
	StatusComplete       Status = "complete"
)

// ParseStatus rejects anything outside the closed status set.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusWaitForInstall, StatusComplete:
		return Status(raw), true
	default:
		return "", false
	}
}

// Evaluate computes a referral's status for the calendar day today.
// Dates are compared by calendar day in today's location.
func Evaluate(installationDate *time.Time, verified bool, today time.Time) Status {
	if installationDate == nil {
		return StatusPending
	}
	if verified {
		return StatusComplete
	}
	if !Day(*installationDate, today.Location()).After(Day(today, today.Location())) {
		return StatusComplete
	}
	return StatusWaitForInstall
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween counts whole calendar days from start to end in loc.
func DaysBetween(start, end time.Time, loc *time.Location) int {
	from := Day(start, loc)
	to := Day(end, loc)
	// Dates at midnight may straddle a DST change; round to the nearest day.
	return int(to.Sub(from).Round(24*time.Hour) / (24 * time.Hour))
}

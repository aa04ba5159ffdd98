package planner

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoOccurrence is returned when the allowed-weekday set admits no
// candidate. This is a configuration defect, not a transient failure.
var ErrNoOccurrence = errors.New("no valid next occurrence")

// NextOccurrence computes the next run of a recurring plan. timeOfDay
// is "HH:MM"; allowedDays holds weekday numbers 0 (Sunday) through 6.
// Candidates are scanned at offsets of one to seven days from now, so
// the result is always strictly in the future and never on the same
// calendar day the plan just ran, even when today's weekday is allowed.
func NextOccurrence(timeOfDay string, allowedDays []int, now time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", timeOfDay, err)
	}
	allowed := make(map[time.Weekday]bool, len(allowedDays))
	for _, d := range allowedDays {
		allowed[time.Weekday(d)] = true
	}

	for i := 1; i <= 7; i++ {
		day := now.AddDate(0, 0, i)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if allowed[candidate.Weekday()] {
			return candidate, nil
		}
	}
	return time.Time{}, ErrNoOccurrence
}

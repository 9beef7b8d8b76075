// Package calendar holds the calendar backends the reconciler writes to:
// Google Calendar, a local ICS file and an Apps Script relay.
package calendar

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by backends for operations they cannot do.
var ErrUnsupported = errors.New("operation not supported by this calendar backend")

func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc != nil {
		day = day.In(loc)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

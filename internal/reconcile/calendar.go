// Package reconcile applies normalized events to a calendar without
// duplicating entries, asking before anything is overwritten.
package reconcile

import (
	"context"
	"time"

	"sheetcal/internal/model"
)

// Calendar is the backend the reconciler drives. Implementations must be
// safe to call sequentially from one goroutine; the reconciler never
// issues concurrent calls.
type Calendar interface {
	// ListEventsForDay returns entries starting on the civil day of day,
	// in day's location.
	ListEventsForDay(ctx context.Context, day time.Time) ([]model.ExistingEvent, error)
	CreateEvent(ctx context.Context, p model.EventPayload) (string, error)
	UpdateEvent(ctx context.Context, id string, p model.EventPayload) error
	DeleteEvent(ctx context.Context, id string) error
}

// KeyFinder is implemented by calendars that can look entries up by the
// private key stored at creation.
type KeyFinder interface {
	FindByKey(ctx context.Context, key string) (model.ExistingEvent, bool, error)
}

// Private metadata keys written on every created entry.
const (
	PrivateKeyRowID  = "sheetRowId"
	PrivateKeyPerson = "person"
)

// DefaultTimeZone is sent to backends that want a zone name.
const DefaultTimeZone = "Asia/Ho_Chi_Minh"

// Payload builds what is written to the calendar for e.
func Payload(e model.NormalizedEvent, timeZone string) model.EventPayload {
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}
	p := model.EventPayload{
		Key:         e.ID,
		Summary:     e.Title(),
		Description: e.Raw.Describe(),
		Location:    e.Location,
		Start:       e.StartTime,
		End:         e.EndTime,
		TimeZone:    timeZone,
		Private: map[string]string{
			PrivateKeyRowID:  e.ID,
			PrivateKeyPerson: e.Person,
		},
	}
	if e.Email != "" {
		p.Attendees = []string{e.Email}
	}
	return p
}

// DayBounds returns [start of day, start of next day) for t in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Status tracks an event through the sync lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// Field is one original column value of a source row.
type Field struct {
	Name  string
	Value string
}

// Fields keeps the full row context in column order. Names are unique.
type Fields []Field

// Get returns the value stored under name.
func (f Fields) Get(name string) (string, bool) {
	for _, kv := range f {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Map returns the fields as an unordered map.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f))
	for _, kv := range f {
		out[kv.Name] = kv.Value
	}
	return out
}

// Describe renders "name: value" lines, the format used for calendar
// event descriptions.
func (f Fields) Describe() string {
	lines := make([]string, 0, len(f))
	for _, kv := range f {
		lines = append(lines, kv.Name+": "+kv.Value)
	}
	return strings.Join(lines, "\n")
}

// MarshalJSON encodes the fields as a JSON object preserving column order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizedEvent is the unit handed to the calendar layer.
type NormalizedEvent struct {
	// ID is deterministic for a given sheet, tab, row and disambiguating key.
	ID string `json:"id"`

	GroupName   string `json:"group_name,omitempty"`
	SourceRowID string `json:"source_row_id,omitempty"`

	// Date is the display form as found in the sheet.
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Person   string `json:"person"`
	Task     string `json:"task"`
	Location string `json:"location"`
	Email    string `json:"email,omitempty"`

	Raw Fields `json:"raw"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Title is the calendar summary used for the event.
func (e NormalizedEvent) Title() string {
	return "[" + e.Task + "] - " + e.Person
}

// ExistingEvent is an entry already present in the remote calendar.
type ExistingEvent struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
	// Key is the private idempotency key, when the backend stores one.
	Key string
}

// Overlaps reports half-open interval overlap with [start, end).
func (e ExistingEvent) Overlaps(start, end time.Time) bool {
	return start.Before(e.End) && end.After(e.Start)
}

// EventPayload is what adapters write to the calendar.
type EventPayload struct {
	Key         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
	// Private holds backend private metadata (e.g. sheetRowId, person).
	Private map[string]string
}

// SyncResult aggregates the outcome of one reconcile run.
type SyncResult struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Kept     int      `json:"kept"`
	Deleted  int      `json:"deleted"`
	Declined int      `json:"declined"`
	Logs     []string `json:"logs"`
}

// Log appends a human-readable line.
func (r *SyncResult) Log(line string) {
	r.Logs = append(r.Logs, line)
}

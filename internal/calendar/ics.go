package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"sheetcal/internal/fsutil"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/reconcile"
)

const (
	icsProductID = "-//sheetcal//schedule sync//EN"

	propKey    = ical.ComponentProperty("X-SHEETCAL-KEY")
	propPerson = ical.ComponentProperty("X-SHEETCAL-PERSON")

	// occurrenceSep joins a series UID and an occurrence start in the ids
	// handed out for expanded recurring entries.
	occurrenceSep = "#"
	occLayout     = "20060102T150405Z"
)

// ICSFile keeps a calendar in a local .ics file. Entries written by other
// tools are read, including recurring ones, and preserved on save.
type ICSFile struct {
	path string
	loc  *time.Location

	mu      sync.Mutex
	loaded  bool
	entries []*icsEntry
	// others holds non-event components such as VTIMEZONE.
	others []ical.Component
}

// icsEntry is one VEVENT together with the fields the backend needs.
type icsEntry struct {
	ve *ical.VEvent

	UID     string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
	Key     string

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time
}

func (e *icsEntry) id() string {
	if e.Recurrence != nil {
		return e.UID + occurrenceSep + e.Recurrence.UTC().Format(occLayout)
	}
	return e.UID
}

// NewICSFile returns a backend over path. The file is created on the first
// write if it does not exist.
func NewICSFile(path string, loc *time.Location) *ICSFile {
	if loc == nil {
		loc = time.Local
	}
	return &ICSFile{path: path, loc: loc}
}

var (
	_ reconcile.Calendar  = (*ICSFile)(nil)
	_ reconcile.KeyFinder = (*ICSFile)(nil)
)

func (f *ICSFile) ListEventsForDay(_ context.Context, day time.Time) ([]model.ExistingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return nil, err
	}

	start, end := dayBounds(day, f.loc)
	occ := expandEntries(f.entries, start, end, f.loc)

	out := make([]model.ExistingEvent, 0, len(occ))
	for _, o := range occ {
		// Only entries starting on the day; multi-day spans are listed once.
		if o.Start.Before(start) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *ICSFile) FindByKey(_ context.Context, key string) (model.ExistingEvent, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return model.ExistingEvent{}, false, err
	}
	for _, e := range f.entries {
		if e.Key == key && e.RawRRule == "" {
			return model.ExistingEvent{ID: e.id(), Summary: e.Summary, Start: e.Start, End: e.End, Key: e.Key}, true, nil
		}
	}
	return model.ExistingEvent{}, false, nil
}

func (f *ICSFile) CreateEvent(_ context.Context, p model.EventPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", err
	}

	uid := uuid.NewString() + "@sheetcal"
	ve := ical.NewEvent(uid)
	fillVEvent(ve, p)

	entry, err := parseVEvent(ve)
	if err != nil {
		return "", err
	}
	f.entries = append(f.entries, entry)
	if err := f.save(); err != nil {
		f.entries = f.entries[:len(f.entries)-1]
		return "", err
	}
	return uid, nil
}

func (f *ICSFile) UpdateEvent(_ context.Context, id string, p model.EventPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}

	for i, e := range f.entries {
		if e.id() != id {
			continue
		}
		if e.RawRRule != "" {
			return fmt.Errorf("update recurring series %s: %w", id, ErrUnsupported)
		}
		fillVEvent(e.ve, p)
		updated, err := parseVEvent(e.ve)
		if err != nil {
			return err
		}
		f.entries[i] = updated
		return f.save()
	}
	return fmt.Errorf("ics event %s not found", id)
}

// DeleteEvent removes an entry. For an occurrence of a recurring series the
// occurrence is excluded from the series instead.
func (f *ICSFile) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}

	kept := f.entries[:0:0]
	removed := false
	for _, e := range f.entries {
		if e.id() == id {
			removed = true
			continue
		}
		kept = append(kept, e)
	}

	if uid, at, ok := splitOccurrenceID(id); ok {
		for _, e := range kept {
			if e.UID == uid && e.RawRRule != "" {
				e.ve.AddProperty(ical.ComponentPropertyExdate, at.UTC().Format(occLayout))
				e.ExDates = append(e.ExDates, at)
				removed = true
			}
		}
	}
	if !removed {
		return fmt.Errorf("ics event %s not found", id)
	}
	f.entries = kept
	return f.save()
}

func (f *ICSFile) load() error {
	if f.loaded {
		return nil
	}
	body, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	if err := f.parse(body); err != nil {
		return err
	}
	f.loaded = true
	return nil
}

func (f *ICSFile) parse(body []byte) error {
	f.entries, f.others = nil, nil
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "path", f.path)
		return err
	}
	for _, comp := range cal.Components {
		ve, ok := comp.(*ical.VEvent)
		if !ok {
			f.others = append(f.others, comp)
			continue
		}
		entry, perr := parseVEvent(ve)
		if perr != nil {
			// Keep parsing the rest of the file.
			appLog.Error("ics vevent parse failed", perr, "path", f.path)
			continue
		}
		f.entries = append(f.entries, entry)
	}
	appLog.Debug("ics file loaded", "path", f.path, "event_count", len(f.entries))
	return nil
}

func (f *ICSFile) save() error {
	cal := ical.NewCalendarFor(icsProductID)
	cal.SetMethod(ical.MethodPublish)
	cal.Components = append(cal.Components, f.others...)
	for _, e := range f.entries {
		cal.AddVEvent(e.ve)
	}
	return fsutil.WriteFileAtomic(f.path, []byte(cal.Serialize()), 0o644)
}

func fillVEvent(ve *ical.VEvent, p model.EventPayload) {
	now := time.Now().UTC()
	ve.SetDtStampTime(now)
	ve.SetModifiedAt(now)
	ve.SetStartAt(p.Start)
	ve.SetEndAt(p.End)
	ve.SetSummary(p.Summary)
	ve.SetDescription(p.Description)
	ve.SetLocation(p.Location)
	if p.Key != "" {
		ve.SetProperty(propKey, p.Key)
	}
	if person := p.Private[reconcile.PrivateKeyPerson]; person != "" {
		ve.SetProperty(propPerson, person)
	}
	ve.RemoveProperty(ical.ComponentPropertyAttendee)
	for _, a := range p.Attendees {
		ve.AddAttendee("mailto:" + a)
	}
}

func parseVEvent(ve *ical.VEvent) (*icsEntry, error) {
	out := &icsEntry{ve: ve}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return nil, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(propKey); p != nil {
		out.Key = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, fmt.Errorf("DTSTART of %s: %w", out.UID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		end = start
	}
	out.Start, out.End = start, end

	if dt := ve.GetProperty(ical.ComponentPropertyDtStart); dt != nil {
		if vs := dt.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(dt.Value, "T") {
			out.AllDay = true
		}
	}
	if out.AllDay && !out.End.After(out.Start) {
		out.End = out.Start.AddDate(0, 0, 1)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, start.Location()); err == nil {
			out.Recurrence = &t
		}
	}
	return out, nil
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms used by EXDATE
// and RECURRENCE-ID.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse(occLayout, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func splitOccurrenceID(id string) (string, time.Time, bool) {
	uid, at, ok := strings.Cut(id, occurrenceSep)
	if !ok {
		return "", time.Time{}, false
	}
	t, err := time.Parse(occLayout, at)
	if err != nil {
		return "", time.Time{}, false
	}
	return uid, t, true
}

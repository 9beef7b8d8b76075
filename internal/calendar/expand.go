package calendar

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// maxOccurrences caps the expansion of a single series within one window.
const maxOccurrences = 500

// expandEntries returns every entry instance overlapping [start, end),
// recurring series expanded. Overridden instances are represented by their
// override entry only.
func expandEntries(entries []*icsEntry, start, end time.Time, loc *time.Location) []model.ExistingEvent {
	overridden := make(map[string]bool)
	for _, e := range entries {
		if e.Recurrence != nil {
			overridden[e.id()] = true
		}
	}

	var out []model.ExistingEvent
	for _, e := range entries {
		if e.RawRRule == "" || e.Recurrence != nil {
			s, en := e.Start, e.End
			if e.AllDay {
				s, en = floatingDay(s, en, loc)
			}
			if overlaps(s, en, start, end) {
				out = append(out, instance(e, e.id(), s, en, loc))
			}
			continue
		}
		out = append(out, expandSeries(e, start, end, overridden, loc)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func expandSeries(e *icsEntry, start, end time.Time, overridden map[string]bool, loc *time.Location) []model.ExistingEvent {
	r, err := rrule.StrToRRule(e.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", e.UID, "rrule", e.RawRRule)
		return nil
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	dur := e.End.Sub(e.Start)
	// Widen the window by the duration so instances that started the day
	// before and are still running are found.
	times := set.Between(start.Add(-dur).In(e.Start.Location()), end.In(e.Start.Location()), true)
	if len(times) > maxOccurrences {
		appLog.Error("ics: truncated occurrences", errors.New("max occurrences reached"), "uid", e.UID, "cap", maxOccurrences)
		times = times[:maxOccurrences]
	}

	var out []model.ExistingEvent
	for _, s := range times {
		occEnd := s.Add(dur)
		if e.AllDay {
			s, occEnd = floatingDay(s, s, loc)
		}
		if !overlaps(s, occEnd, start, end) {
			continue
		}
		id := e.UID + occurrenceSep + s.UTC().Format(occLayout)
		if overridden[id] {
			continue
		}
		out = append(out, instance(e, id, s, occEnd, loc))
	}
	return out
}

// floatingDay anchors an all-day entry to midnight in loc. DATE values
// carry no zone of their own.
func floatingDay(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	return s, s.AddDate(0, 0, days)
}

func instance(e *icsEntry, id string, start, end time.Time, loc *time.Location) model.ExistingEvent {
	return model.ExistingEvent{
		ID:      id,
		Summary: e.Summary,
		Start:   start.In(loc),
		End:     end.In(loc),
		Key:     e.Key,
	}
}

// overlaps treats [aStart, aEnd) as half-open; zero-length entries count
// when they start inside the window.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aStart.Before(bEnd) {
		return false
	}
	return aEnd.After(bStart) || !aStart.Before(bStart)
}

// Package timeparse turns the date and time encodings found in schedule
// sheets into absolute instants in a fixed civil offset.
//
// Supported date shapes: D/M/Y, Y/M/D (first group > 1000) with '/', '-' or
// '.' separators, two-digit years, and Excel serial day numbers.
// Supported time shapes: slot numbers ("2", "slot 2", "S2"), literal ranges
// ("13h30-15h", "9:30 - 11:45", "1:00 PM - 2:30 PM"), and single times
// ("13", "13h30", "13:30") which yield a one-hour span.
//
// Parse never fails: malformed input is replaced by a safe default and the
// problem is reported as a warning.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	appLog "sheetcal/internal/log"
)

// CivilZone is the fixed UTC+7 offset used for every parsed instant.
var CivilZone = time.FixedZone("UTC+07:00", 7*60*60)

const (
	defaultDuration = time.Hour
	farDateYears    = 2

	excelSerialMin = 40000
	excelSerialMax = 60000
)

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	errEmpty       = errors.New("empty value")
	errUnknownSlot = errors.New("unknown slot")
)

// Clock is a time of day.
type Clock struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// Range is a start/end pair of clock times on one civil day. End may be
// earlier than Start for ranges crossing midnight.
type Range struct {
	Start Clock
	End   Clock
	// Slot is the canonical slot number the range was selected by, or 0.
	Slot int
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Date is a civil calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String renders the date as DD/MM/YYYY.
func (d Date) String() string {
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, int(d.Month), d.Year)
}

// At returns the instant of clock c on d in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// DefaultSlots is the canonical five-slot teaching day.
func DefaultSlots() map[int]Range {
	return map[int]Range{
		1: {Start: Clock{7, 0}, End: Clock{9, 15}, Slot: 1},
		2: {Start: Clock{9, 30}, End: Clock{11, 45}, Slot: 2},
		3: {Start: Clock{12, 30}, End: Clock{14, 45}, Slot: 3},
		4: {Start: Clock{15, 0}, End: Clock{17, 15}, Slot: 4},
		5: {Start: Clock{17, 30}, End: Clock{19, 45}, Slot: 5},
	}
}

// Span is the outcome of Parse.
type Span struct {
	Start time.Time
	End   time.Time
	// Fallback is true when any part of the input was replaced by a default.
	Fallback bool
	Warnings []string
}

// Parser holds the civil zone, slot table and clock used for parsing.
// A Parser is immutable after New and safe for concurrent use.
type Parser struct {
	loc   *time.Location
	now   func() time.Time
	slots map[int]Range
}

type Option func(*Parser)

// WithLocation overrides the civil zone.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithClock overrides the source of "now", used for fallbacks and the
// far-date check.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSlots replaces the slot table.
func WithSlots(slots map[int]Range) Option {
	return func(p *Parser) {
		if len(slots) == 0 {
			return
		}
		p.slots = make(map[int]Range, len(slots))
		for n, r := range slots {
			r.Slot = n
			p.slots[n] = r
		}
	}
}

// New returns a Parser using CivilZone and DefaultSlots unless overridden.
func New(opts ...Option) *Parser {
	p := &Parser{
		loc:   CivilZone,
		now:   time.Now,
		slots: DefaultSlots(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location returns the civil zone of p.
func (p *Parser) Location() *time.Location { return p.loc }

// Slots returns the slot numbers p knows, ascending.
func (p *Parser) Slots() []int {
	out := make([]int, 0, len(p.slots))
	for n := range p.slots {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

var defaultParser = New()

// ParseCivilDateTime parses with the default Parser.
func ParseCivilDateTime(dateStr, timeStr string) Span {
	return defaultParser.Parse(dateStr, timeStr)
}

// Parse resolves dateStr and timeStr into a span. It never fails; see the
// package documentation for the fallback rules.
func (p *Parser) Parse(dateStr, timeStr string) Span {
	var span Span
	now := p.now().In(p.loc)

	warn := func(msg string, kv ...any) {
		appLog.Warn(msg, kv...)
		span.Warnings = append(span.Warnings, msg+formatKV(kv))
	}

	date, err := p.ParseDate(dateStr)
	if err != nil {
		warn("date unparseable, using today", "date", dateStr, "reason", err.Error())
		date = Date{Year: now.Year(), Month: now.Month(), Day: now.Day()}
		span.Fallback = true
	} else if p.farFrom(date, now) {
		warn("date is far from today, day and month may be transposed", "date", dateStr)
	}

	rng, err := p.ParseTimeRange(timeStr)
	if err != nil {
		warn("time unparseable, using a one-hour span", "time", timeStr, "reason", err.Error())
		start := date.At(Clock{now.Hour(), now.Minute()}, p.loc)
		span.Start = start
		span.End = start.Add(defaultDuration)
		span.Fallback = true
		return span
	}

	span.Start = date.At(rng.Start, p.loc)
	span.End = date.At(rng.End, p.loc)
	switch {
	case span.End.Equal(span.Start):
		warn("time range is empty, using a one-hour span", "time", timeStr)
		span.End = span.Start.Add(defaultDuration)
	case span.End.Before(span.Start):
		// 22h-1h runs past midnight.
		span.End = span.End.AddDate(0, 0, 1)
	}
	return span
}

func (p *Parser) farFrom(d Date, now time.Time) bool {
	t := d.At(Clock{}, p.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)
	return t.After(today.AddDate(farDateYears, 0, 0)) || t.Before(today.AddDate(-farDateYears, 0, 0))
}

var (
	// A trailing time of day ("2026-01-27T00:00:00", "27/01/2026 08:00") is ignored.
	datePattern = regexp.MustCompile(`^(\d{1,4})\s*[/.\-]\s*(\d{1,2})\s*[/.\-]\s*(\d{1,4})(?:[ T].*)?$`)
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	slotPattern = regexp.MustCompile(`^(?:slot|s)\s*[_\-#]?\s*(\d+)$`)
	clockPart   = regexp.MustCompile(`^(\d{1,2})(?:\s*[:h.]\s*(\d{2})?)?\s*(am|pm)?$`)
)

// ParseDate parses a single date cell.
func (p *Parser) ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, errEmpty
	}

	if digitsOnly.MatchString(s) {
		n, err := strconv.Atoi(s)
		if err == nil && n > excelSerialMin && n < excelSerialMax {
			t := excelEpoch.AddDate(0, 0, n)
			return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
		}
		return Date{}, fmt.Errorf("bare number %q is not a date", s)
	}

	match := datePattern.FindStringSubmatch(s)
	if match == nil {
		return Date{}, fmt.Errorf("unrecognized date %q", s)
	}
	nums := make([]int, 3)
	for i := range nums {
		nums[i], _ = strconv.Atoi(match[i+1])
	}

	var y, m, d int
	if nums[0] > 1000 {
		y, m, d = nums[0], nums[1], nums[2]
	} else {
		d, m, y = nums[0], nums[1], nums[2]
	}
	if y < 100 {
		y += 2000
	}
	if m < 1 || m > 12 {
		d, m = m, d
	}
	if m < 1 || m > 12 {
		return Date{}, fmt.Errorf("month out of range in %q", s)
	}
	if d < 1 || d > daysIn(y, time.Month(m)) {
		return Date{}, fmt.Errorf("day out of range in %q", s)
	}
	return Date{Year: y, Month: time.Month(m), Day: d}, nil
}

// ParseTimeRange parses a time cell into a clock range.
func (p *Parser) ParseTimeRange(s string) (Range, error) {
	s = normalizeDashes(strings.ToLower(strings.TrimSpace(s)))
	if s == "" {
		return Range{}, errEmpty
	}

	if digitsOnly.MatchString(s) {
		n, _ := strconv.Atoi(s)
		if r, ok := p.slots[n]; ok {
			return r, nil
		}
		// A bare hour beyond the slot table ("13").
		if c, err := parseClock(s); err == nil && n > p.maxSlot() {
			return Range{Start: c, End: addMinutes(c, int(defaultDuration/time.Minute))}, nil
		}
		return Range{}, fmt.Errorf("%w %d", errUnknownSlot, n)
	}
	if m := slotPattern.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if r, ok := p.slots[n]; ok {
			return r, nil
		}
		return Range{}, fmt.Errorf("%w %d", errUnknownSlot, n)
	}

	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		start, err := parseClock(parts[0])
		if err != nil {
			return Range{}, err
		}
		return Range{Start: start, End: addMinutes(start, int(defaultDuration/time.Minute))}, nil
	case 2:
		start, err := parseClock(parts[0])
		if err != nil {
			return Range{}, err
		}
		end, err := parseClock(parts[1])
		if err != nil {
			return Range{}, err
		}
		return Range{Start: start, End: end}, nil
	default:
		return Range{}, fmt.Errorf("too many range separators in %q", s)
	}
}

func (p *Parser) maxSlot() int {
	max := 0
	for n := range p.slots {
		if n > max {
			max = n
		}
	}
	return max
}

func parseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	m := clockPart.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("unrecognized time %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	min := 0
	if m[2] != "" {
		min, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || min > 59 {
		return Clock{}, fmt.Errorf("time out of range %q", s)
	}
	return Clock{Hour: h, Minute: min}, nil
}

func addMinutes(c Clock, n int) Clock {
	total := (c.minutes() + n) % (24 * 60)
	return Clock{Hour: total / 60, Minute: total % 60}
}

func normalizeDashes(s string) string {
	return strings.NewReplacer("–", "-", "—", "-", "−", "-").Replace(s)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func formatKV(kv []any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}

package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	now := time.Date(2026, time.January, 20, 10, 15, 0, 0, CivilZone)
	return func() time.Time { return now }
}

func civil(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, CivilZone)
}

func TestParseEquivalentDateFormats(t *testing.T) {
	p := New(WithClock(fixedClock()))
	want := civil(2026, time.January, 27, 7, 0)

	for _, in := range []string{
		"27/1/2026",
		"27/01/2026",
		"27-01-2026",
		"27.01.2026",
		"27/01/26",
		"2026-01-27",
		"2026/1/27",
		"27 / 01 / 2026",
		"2026-01-27T00:00:00",
		"46049",
	} {
		t.Run(in, func(t *testing.T) {
			span := p.Parse(in, "1")
			assert.False(t, span.Fallback)
			assert.Empty(t, span.Warnings)
			assert.True(t, span.Start.Equal(want), "start %s", span.Start)
			assert.True(t, span.End.Equal(civil(2026, time.January, 27, 9, 15)), "end %s", span.End)
		})
	}
}

func TestParseDateSwapsOutOfRangeMonth(t *testing.T) {
	p := New()
	d, err := p.ParseDate("1/27/2026")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2026, Month: time.January, Day: 27}, d)
	assert.Equal(t, "27/01/2026", d.String())
}

func TestParseDateRejects(t *testing.T) {
	p := New()
	for _, in := range []string{"", "abc", "31/02/2026", "13/13/2026", "12", "Thứ 2"} {
		_, err := p.ParseDate(in)
		assert.Error(t, err, in)
	}
}

func TestSlotAndLiteralRangeAgree(t *testing.T) {
	p := New(WithClock(fixedClock()))

	slot := p.Parse("27/01/2026", "2")
	literal := p.Parse("27/01/2026", "9:30 - 11:45")

	require.False(t, slot.Fallback)
	require.False(t, literal.Fallback)
	assert.True(t, slot.Start.Equal(literal.Start))
	assert.True(t, slot.End.Equal(literal.End))
	assert.Equal(t, "2026-01-27T09:30:00+07:00", slot.Start.Format(time.RFC3339))
	assert.Equal(t, "2026-01-27T11:45:00+07:00", slot.End.Format(time.RFC3339))
}

func TestParseTimeRange(t *testing.T) {
	p := New()
	tests := []struct {
		in    string
		start Clock
		end   Clock
		slot  int
	}{
		{in: "1", start: Clock{7, 0}, end: Clock{9, 15}, slot: 1},
		{in: "5", start: Clock{17, 30}, end: Clock{19, 45}, slot: 5},
		{in: "slot 2", start: Clock{9, 30}, end: Clock{11, 45}, slot: 2},
		{in: "Slot2", start: Clock{9, 30}, end: Clock{11, 45}, slot: 2},
		{in: "S3", start: Clock{12, 30}, end: Clock{14, 45}, slot: 3},
		{in: "13h30-15h", start: Clock{13, 30}, end: Clock{15, 0}},
		{in: "13h30 – 15h00", start: Clock{13, 30}, end: Clock{15, 0}},
		{in: "9:30 — 11:45", start: Clock{9, 30}, end: Clock{11, 45}},
		{in: "1:00 PM - 2:30 PM", start: Clock{13, 0}, end: Clock{14, 30}},
		{in: "12:00 am - 1:00 am", start: Clock{0, 0}, end: Clock{1, 0}},
		{in: "13", start: Clock{13, 0}, end: Clock{14, 0}},
		{in: "13:30", start: Clock{13, 30}, end: Clock{14, 30}},
		{in: "8h", start: Clock{8, 0}, end: Clock{9, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := p.ParseTimeRange(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
			assert.Equal(t, tt.slot, r.Slot)
		})
	}
}

func TestParseTimeRangeErrors(t *testing.T) {
	p := New()
	for _, in := range []string{"", "0", "slot 9", "25:00", "9:75", "abc", "1-2-3"} {
		_, err := p.ParseTimeRange(in)
		assert.Error(t, err, in)
	}
}

func TestParseOvernightAndEmptyRanges(t *testing.T) {
	p := New(WithClock(fixedClock()))

	overnight := p.Parse("27/01/2026", "22h-1h")
	assert.True(t, overnight.Start.Equal(civil(2026, time.January, 27, 22, 0)))
	assert.True(t, overnight.End.Equal(civil(2026, time.January, 28, 1, 0)))
	assert.Empty(t, overnight.Warnings)

	empty := p.Parse("27/01/2026", "9:30-9:30")
	assert.True(t, empty.End.Equal(empty.Start.Add(time.Hour)))
	assert.Len(t, empty.Warnings, 1)
	assert.False(t, empty.Fallback)
}

func TestParseFallbacks(t *testing.T) {
	p := New(WithClock(fixedClock()))

	t.Run("bad date keeps time", func(t *testing.T) {
		span := p.Parse("not a date", "1")
		assert.True(t, span.Fallback)
		assert.True(t, span.Start.Equal(civil(2026, time.January, 20, 7, 0)))
		assert.True(t, span.End.Equal(civil(2026, time.January, 20, 9, 15)))
		assert.Len(t, span.Warnings, 1)
	})

	t.Run("bad time keeps date", func(t *testing.T) {
		span := p.Parse("27/01/2026", "whenever")
		assert.True(t, span.Fallback)
		assert.True(t, span.Start.Equal(civil(2026, time.January, 27, 10, 15)))
		assert.Equal(t, time.Hour, span.End.Sub(span.Start))
	})

	t.Run("both missing", func(t *testing.T) {
		span := p.Parse("", "")
		assert.True(t, span.Fallback)
		assert.True(t, span.Start.Equal(civil(2026, time.January, 20, 10, 15)))
		assert.True(t, span.End.After(span.Start))
		assert.Len(t, span.Warnings, 2)
	})
}

func TestParseFlagsFarDates(t *testing.T) {
	p := New(WithClock(fixedClock()))

	span := p.Parse("27/01/2030", "1")
	assert.False(t, span.Fallback)
	require.Len(t, span.Warnings, 1)
	assert.Contains(t, span.Warnings[0], "far from today")
	assert.Equal(t, 2030, span.Start.Year())

	near := p.Parse("27/01/2027", "1")
	assert.Empty(t, near.Warnings)
}

func TestWithSlotsAndLocation(t *testing.T) {
	loc := time.FixedZone("UTC+08:00", 8*60*60)
	p := New(
		WithLocation(loc),
		WithSlots(map[int]Range{1: {Start: Clock{8, 0}, End: Clock{10, 0}}, 7: {Start: Clock{20, 0}, End: Clock{21, 0}}}),
		WithClock(fixedClock()),
	)

	assert.Equal(t, []int{1, 7}, p.Slots())
	assert.Equal(t, loc, p.Location())

	span := p.Parse("27/01/2026", "7")
	assert.Equal(t, "2026-01-27T20:00:00+08:00", span.Start.Format(time.RFC3339))

	// "6" is below the largest slot number, so it is an unknown slot rather than an hour.
	_, err := p.ParseTimeRange("6")
	assert.ErrorIs(t, err, errUnknownSlot)
}

func TestParseCivilDateTimeScenario(t *testing.T) {
	span := ParseCivilDateTime("27/01/2026", "1")
	assert.Equal(t, "2026-01-27T07:00:00+07:00", span.Start.Format(time.RFC3339))
	assert.Equal(t, "2026-01-27T09:15:00+07:00", span.End.Format(time.RFC3339))
	assert.False(t, span.Fallback)
}

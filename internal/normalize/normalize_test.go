package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetcal/internal/layout"
	"sheetcal/internal/model"
	"sheetcal/internal/timeparse"
)

func testParser() *timeparse.Parser {
	now := time.Date(2026, time.January, 20, 10, 0, 0, 0, timeparse.CivilZone)
	return timeparse.New(timeparse.WithClock(func() time.Time { return now }))
}

func TestNormalizeRowsScenario(t *testing.T) {
	events := NormalizeRows(
		[]string{"Ngày", "Giờ", "Tên"},
		[][]string{{"27/01/2026", "1", "Nguyen Van A"}},
		model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2},
		0,
	)

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "27/01/2026", e.Date)
	assert.Equal(t, "2026-01-27T07:00:00+07:00", e.StartTime.Format(time.RFC3339))
	assert.Equal(t, "2026-01-27T09:15:00+07:00", e.EndTime.Format(time.RFC3339))
	assert.Equal(t, "Nguyen Van A", e.Person)
	assert.Equal(t, "Nhiệm vụ không tên", e.Task)
	assert.Equal(t, "Chưa xác định", e.Location)
	assert.Empty(t, e.Email)
	assert.Equal(t, "2", e.SourceRowID)
	assert.Equal(t, model.StatusPending, e.Status)
	assert.Len(t, e.ID, idLength)
	assert.Equal(t, model.Fields{
		{Name: "Ngày", Value: "27/01/2026"},
		{Name: "Giờ", Value: "1"},
		{Name: "Tên", Value: "Nguyen Van A"},
	}, e.Raw)
}

func TestFlatIsIdempotent(t *testing.T) {
	headers := []string{"Ngày", "Giờ", "Tên", "Phòng"}
	rows := [][]string{
		{"27/01/2026", "1", "A", "B1"},
		{"28/01/2026", "13h30-15h", "B", ""},
		{"", "2", "C", "B2"},
	}
	mapping := model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2, model.RoleLocation: 3}

	first := NormalizeRows(headers, rows, mapping, 0)
	second := NormalizeRows(headers, rows, mapping, 0)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestFlatDropsRowsWithoutDateOrTime(t *testing.T) {
	n := New(Options{Parser: testParser(), Tab: "Sheet1"})
	rows := model.SourceRowsFrom([][]string{
		{"27/01/2026", "1", "A"},
		{"", "1", "B"},
		{"27/01/2026", "", "C"},
		{"", "", ""},
		{"garbage", "1", "D"},
	}, 1)

	events, warnings := n.Flat([]string{"Ngày", "Giờ", "Tên"}, rows, model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2})
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].Person)
	assert.Equal(t, "Sheet1!2", events[0].SourceRowID)
	assert.Equal(t, "D", events[1].Person)
	// An unparseable date falls back to today and is reported.
	assert.Equal(t, "garbage", events[1].Date)
	assert.Equal(t, 20, events[1].StartTime.Day())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Sheet1 row 6")
}

func TestNormalizeRowsSkipsWhitespaceDateOrTime(t *testing.T) {
	mapping := model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2}
	events := NormalizeRows([]string{"Ngày", "Giờ", "Tên"}, [][]string{
		{"   ", "1", "A"},
		{"27/01/2026", " \t", "B"},
		{" 27/01/2026 ", " 1 ", "C"},
	}, mapping, 0)

	require.Len(t, events, 1)
	assert.Equal(t, "C", events[0].Person)
	assert.Equal(t, "27/01/2026", events[0].Date)
	assert.Equal(t, 7, events[0].StartTime.Hour())
}

func TestFlatRequiresDateAndTimeMapping(t *testing.T) {
	n := New(Options{})
	events, warnings := n.Flat([]string{"Ngày", "Tên"}, model.SourceRowsFrom([][]string{{"27/01/2026", "A"}}, 1), model.ColumnMapping{model.RoleDate: 0, model.RolePerson: 1})
	assert.Empty(t, events)
	assert.NotEmpty(t, warnings)

	assert.Empty(t, NormalizeRows(nil, nil, nil, 0))
}

func TestFlatIgnoresOutOfRangeMapping(t *testing.T) {
	n := New(Options{Parser: testParser()})
	events, warnings := n.Flat(
		[]string{"Ngày", "Giờ"},
		model.SourceRowsFrom([][]string{{"27/01/2026", "2"}}, 1),
		model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 7},
	)
	require.Len(t, events, 1)
	assert.Equal(t, "Unknown", events[0].Person)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "person")
}

func TestFlatRawNamesAreUnique(t *testing.T) {
	events := NormalizeRows(
		[]string{"Ngày", "Giờ", "Tên", "Tên", ""},
		[][]string{{"27/01/2026", "1", "A", "B", "note"}},
		model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2},
		0,
	)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"Ngày", "Giờ", "Tên", "Column_3", "Column_4"}, names(events[0].Raw))
	v, ok := events[0].Raw.Get("Column_3")
	assert.True(t, ok)
	assert.Equal(t, "B", v)
}

func TestFlatFallbacksAndTaskColumn(t *testing.T) {
	n := New(Options{
		Parser:             testParser(),
		TaskFallbackColumn: "ghi chú",
		Fallbacks:          Fallbacks{Person: "Nobody"},
	})
	headers := []string{"Ngày", "Giờ", "Tên", "Việc", "Ghi chú", "Email"}
	mapping := model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2, model.RoleTask: 3, model.RoleEmail: 5}
	rows := model.SourceRowsFrom([][]string{
		{"27/01/2026", "1", "", "", "Coi thi", "a@example.com"},
		{"27/01/2026", "2", "B", "Chấm bài", "Coi thi", ""},
		{"27/01/2026", "3", "C", "", "", ""},
	}, 1)

	events, _ := n.Flat(headers, rows, mapping)
	require.Len(t, events, 3)
	assert.Equal(t, "Nobody", events[0].Person)
	assert.Equal(t, "Coi thi", events[0].Task)
	assert.Equal(t, "a@example.com", events[0].Email)
	assert.Equal(t, "Chấm bài", events[1].Task)
	assert.Equal(t, "Nhiệm vụ không tên", events[2].Task)
	assert.Equal(t, "Chưa xác định", events[2].Location)
}

func TestEventIDDependsOnSource(t *testing.T) {
	a := New(Options{SheetID: "s1", Tab: "T"})
	b := New(Options{SheetID: "s2", Tab: "T"})
	assert.Equal(t, a.eventID(3, "A"), a.eventID(3, "A"))
	assert.NotEqual(t, a.eventID(3, "A"), b.eventID(3, "A"))
	assert.NotEqual(t, a.eventID(3, "A"), a.eventID(4, "A"))
	assert.NotEqual(t, a.eventID(3, "A"), a.eventID(3, "B"))
}

func TestNormalizeRowsWithGroupingScenario(t *testing.T) {
	events := NormalizeRowsWithGrouping(
		[]string{"REVIEW 1", "REVIEW 1", "REVIEW 2", "REVIEW 2"},
		[]string{"Date", "Reviewer", "Date", "Reviewer"},
		[][]string{{"27/01/2026", "X", "28/01/2026", "Y"}},
		nil,
		1,
	)

	require.Len(t, events, 2)
	assert.Equal(t, "27/01/2026", events[0].Date)
	assert.Equal(t, "X", events[0].Person)
	assert.Equal(t, "REVIEW 1", events[0].GroupName)
	assert.Equal(t, "28/01/2026", events[1].Date)
	assert.Equal(t, "Y", events[1].Person)
	assert.Equal(t, "REVIEW 2", events[1].GroupName)
	assert.Equal(t, events[0].SourceRowID, events[1].SourceRowID)
	assert.Equal(t, "3", events[0].SourceRowID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestGroupedRowCountAndLocalFields(t *testing.T) {
	n := New(Options{Parser: testParser(), Tab: "Đợt 1"})
	groups := []string{
		"Column_0", "Column_1",
		"REVIEW 1", "REVIEW 1", "REVIEW 1", "REVIEW 1", "REVIEW 1",
		"REVIEW 2", "REVIEW 2", "REVIEW 2", "REVIEW 2", "REVIEW 2", "REVIEW 2",
		"REVIEW 3", "REVIEW 3",
	}
	details := []string{
		"STT", "Tên đề tài",
		"Date", "Slot", "Room", "Reviewer", "Code",
		"Ngày trong tuần", "Ngày thi", "Ca", "Phòng", "Reviewer 1", "Reviewer 2",
		"Date", "Reviewer",
	}
	row := []string{
		"1", "Project A",
		"27/01/2026", "2", "B1-203", "X", "G01",
		"Thứ 4", "28/01/2026", "3", "", "Y", "Z",
		"TBD", "W",
	}

	events, _ := n.Grouped(groups, details, model.SourceRowsFrom([][]string{row, make([]string, len(row))}, 3), nil)
	require.Len(t, events, 2)

	r1, r2 := events[0], events[1]
	assert.Equal(t, "REVIEW 1", r1.GroupName)
	assert.Equal(t, "REVIEW 1: G01", r1.Task)
	assert.Equal(t, "X", r1.Person)
	assert.Equal(t, "B1-203", r1.Location)
	assert.Equal(t, "2026-01-27T09:30:00+07:00", r1.StartTime.Format(time.RFC3339))

	assert.Equal(t, "REVIEW 2", r2.GroupName)
	assert.Equal(t, "REVIEW 2", r2.Task)
	assert.Equal(t, "Y, Z", r2.Person)
	assert.Equal(t, "Chưa xác định", r2.Location)
	assert.Equal(t, "28/01/2026", r2.Date)
	assert.Equal(t, "2026-01-28T12:30:00+07:00", r2.StartTime.Format(time.RFC3339))

	assert.Equal(t, "Đợt 1!4", r1.SourceRowID)
	assert.Equal(t, r1.SourceRowID, r2.SourceRowID)

	// Shared and undated columns travel with every event; other dated
	// groups do not.
	assert.Equal(t, []string{"STT", "Tên đề tài", "Date", "Slot", "Room", "Reviewer", "Code", "Column_13", "Column_14"}, names(r1.Raw))
	v, _ := r1.Raw.Get("Column_13")
	assert.Equal(t, "TBD", v)
	_, ok := r1.Raw.Get("Ngày thi")
	assert.False(t, ok)
}

func TestGroupedUnassignedReviewer(t *testing.T) {
	n := New(Options{Parser: testParser()})
	events, _ := n.Grouped(
		[]string{"REVIEW 1", "REVIEW 1"},
		[]string{"Date", "Reviewer"},
		model.SourceRowsFrom([][]string{{"27/01/2026", ""}}, 2),
		nil,
	)
	require.Len(t, events, 1)
	assert.Equal(t, "Unassigned", events[0].Person)
}

func TestGroupRuns(t *testing.T) {
	groups, shared := groupRuns([]string{"Column_0", "A", "A", "B", "", "A", "A"})
	require.Len(t, groups, 3)
	assert.Equal(t, "A", groups[0].name)
	assert.Equal(t, []int{1, 2}, groups[0].columns)
	assert.Equal(t, "B", groups[1].name)
	assert.Equal(t, "A#2", groups[2].name)
	assert.Equal(t, []int{5, 6}, groups[2].columns)
	assert.Equal(t, []int{0, 4}, shared)
}

func TestPipelineFlat(t *testing.T) {
	p := NewPipeline(layout.TwoTier(), Options{Parser: testParser(), SheetID: "sheet", Tab: "Tab"})
	grid := model.NewGrid([][]string{
		{"Ngày", "Giờ", "Tên"},
		{"27/01/2026", "1", "Nguyen Van A"},
		{"28/01/2026", "2", "Tran Thi B"},
	})

	res := p.Run(grid, Overrides{})
	assert.Equal(t, model.ArchetypeFlat, res.Resolution.Archetype)
	assert.Equal(t, model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2}, res.Mapping)
	require.Len(t, res.Events, 2)

	filtered := p.Run(grid, Overrides{Person: "tran"})
	require.Len(t, filtered.Events, 1)
	assert.Equal(t, "Tran Thi B", filtered.Events[0].Person)

	all := p.Run(grid, Overrides{Person: "ALL"})
	assert.Len(t, all.Events, 2)
}

func TestPipelineFlatShortHeaderRow(t *testing.T) {
	p := NewPipeline(layout.TwoTier(), Options{Parser: testParser()})
	grid := model.NewGrid([][]string{
		{"Ngày", "Giờ", "Tên", "Nhóm"},
		{"27/01/2026", "1", "Nguyen Van A", "N1", "ghi chu"},
		{"28/01/2026", "2", "Nguyen Van B", "N2", "ghi chu"},
	})

	res := p.Run(grid, Overrides{})
	assert.Equal(t, model.ArchetypeFlat, res.Resolution.Archetype)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "Nguyen Van A", res.Events[0].Person)
	assert.Equal(t, "Nguyen Van B", res.Events[1].Person)
}

func TestPipelineOverrides(t *testing.T) {
	p := NewPipeline(layout.TwoTier(), Options{Parser: testParser()})
	grid := model.NewGrid([][]string{
		{"Lịch trực"},
		{"Col A", "Col B", "Col C"},
		{"27/01/2026", "1", "A"},
	})

	row := 1
	res := p.Run(grid, Overrides{
		HeaderRow: &row,
		Mapping:   model.ColumnMapping{model.RoleDate: 0, model.RoleTime: 1, model.RolePerson: 2},
	})
	assert.Equal(t, 1, res.Resolution.HeaderRowIndex)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "A", res.Events[0].Person)
	assert.Equal(t, "3", res.Events[0].SourceRowID)
}

func TestPipelineGrouped(t *testing.T) {
	p := NewPipeline(layout.TwoTier(), Options{Parser: testParser()})
	grid := model.NewGrid([][]string{
		{"REVIEW 1", "", "REVIEW 2", ""},
		{"Date", "Reviewer", "Date", "Reviewer"},
		{"27/01/2026", "X", "28/01/2026", "Y"},
	})

	res := p.Run(grid, Overrides{})
	require.True(t, res.Resolution.Grouped())
	require.Len(t, res.Events, 2)
	assert.Equal(t, "X", res.Events[0].Person)
	assert.Equal(t, "Y", res.Events[1].Person)

	res = p.Run(grid, Overrides{Person: "y"})
	require.Len(t, res.Events, 1)
	assert.Equal(t, "REVIEW 2", res.Events[0].GroupName)
}

func names(f model.Fields) []string {
	out := make([]string, len(f))
	for i, kv := range f {
		out[i] = kv.Name
	}
	return out
}

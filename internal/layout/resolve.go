package layout

import (
	"sheetcal/internal/model"
)

func (d *Detector) resolve(grid model.Grid, row int, twoTier bool) model.HeaderResolution {
	width := grid.Width()
	res := model.HeaderResolution{Archetype: model.ArchetypeFlat, HeaderRowIndex: row}

	detail := make([]string, width)
	copy(detail, grid.Row(row))
	var group []string
	dataStart := row + 1

	if twoTier {
		res.Archetype = model.ArchetypeTwoTier
		res.HeaderRowIndex = row + 1
		dataStart = row + 2

		group = fillForward(grid.Row(row))
		copy(detail, grid.Row(row+1))
		for c := 0; c < width; c++ {
			switch {
			case detail[c] == "" && group[c] != "":
				// A lone merged cell spanning both header rows names the
				// column itself and belongs to no group.
				detail[c] = group[c]
				group[c] = model.ColumnPlaceholder(c)
			case group[c] == "":
				group[c] = model.ColumnPlaceholder(c)
			}
		}
	}
	for c := 0; c < width; c++ {
		if detail[c] == "" {
			detail[c] = model.ColumnPlaceholder(c)
		}
	}

	var columns []int
	for c := 0; c < width; c++ {
		if d.isExcluded(detail[c]) || (group != nil && d.isExcluded(group[c])) {
			continue
		}
		columns = append(columns, c)
	}

	res.DetailHeaders = project(detail, columns)
	if group != nil {
		res.GroupHeaders = project(group, columns)
	}
	res.Columns = columns

	for dataStart < grid.Len() && isBlank(grid.Row(dataStart)) {
		dataStart++
	}
	res.DataStartRow = dataStart
	for i := dataStart; i < grid.Len(); i++ {
		res.Rows = append(res.Rows, model.SourceRow{Index: i, Cells: project(grid.Row(i), columns)})
	}
	return res
}

func (d *Detector) isExcluded(label string) bool {
	if len(d.excluded) == 0 || model.IsColumnPlaceholder(label) {
		return false
	}
	return d.excluded.Match(label)
}

func project(row []string, columns []int) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		if c < len(row) {
			out[i] = row[c]
		}
	}
	return out
}

func isBlank(row []string) bool {
	return filled(row) == 0
}

package model

import (
	"strconv"
	"strings"
)

// Grid is a rectangular view over raw spreadsheet values. Ragged input rows
// are padded with empty cells once, at construction, so that every later
// column access is in range.
type Grid struct {
	rows  [][]string
	width int
}

// NewGrid copies rows into a padded Grid. Cells are trimmed of surrounding
// whitespace; the input slice is not retained.
func NewGrid(rows [][]string) Grid {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	out := make([][]string, len(rows))
	for i, r := range rows {
		line := make([]string, width)
		for j, v := range r {
			line[j] = strings.TrimSpace(v)
		}
		out[i] = line
	}
	return Grid{rows: out, width: width}
}

// Len returns the number of rows.
func (g Grid) Len() int { return len(g.rows) }

// Width returns the number of columns of the widest input row.
func (g Grid) Width() int { return g.width }

// Row returns row i, or nil when i is out of range. Callers must not modify
// the returned slice.
func (g Grid) Row(i int) []string {
	if i < 0 || i >= len(g.rows) {
		return nil
	}
	return g.rows[i]
}

// Cell returns the value at (r, c), or "" when out of range.
func (g Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g.rows) || c < 0 || c >= g.width {
		return ""
	}
	return g.rows[r][c]
}

// SourceRow is a data row together with its zero-based index in the
// original grid, so that identifiers derived from it stay stable when
// surrounding rows are trimmed.
type SourceRow struct {
	Index int
	Cells []string
}

// Number returns the 1-based sheet row number.
func (r SourceRow) Number() int { return r.Index + 1 }

// Cell returns column c of the row, or "" when out of range.
func (r SourceRow) Cell(c int) string {
	if c < 0 || c >= len(r.Cells) {
		return ""
	}
	return r.Cells[c]
}

// IsEmpty reports whether every cell is blank.
func (r SourceRow) IsEmpty() bool {
	for _, v := range r.Cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// SourceRowsFrom wraps consecutive raw rows whose first element sits at
// grid index first.
func SourceRowsFrom(rows [][]string, first int) []SourceRow {
	out := make([]SourceRow, len(rows))
	for i, r := range rows {
		out[i] = SourceRow{Index: first + i, Cells: r}
	}
	return out
}

// ColumnPlaceholder is the synthesized name for column i when the sheet
// provides none.
func ColumnPlaceholder(i int) string {
	return "Column_" + strconv.Itoa(i)
}

// IsColumnPlaceholder reports whether name was produced by ColumnPlaceholder.
func IsColumnPlaceholder(name string) bool {
	rest, ok := strings.CutPrefix(name, "Column_")
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

package sheets

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// XLSX reads workbook files from disk.
type XLSX struct{}

func (XLSX) FetchGrid(_ context.Context, loc Locator) (model.Grid, error) {
	f, err := excelize.OpenFile(loc.Path)
	if err != nil {
		return model.Grid{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readWorkbook(f, loc.Tab)
}

// ReadXLSX reads one tab of a workbook held in r. An empty tab selects the
// first sheet.
func ReadXLSX(r io.Reader, tab string) (model.Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return model.Grid{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readWorkbook(f, tab)
}

func readWorkbook(f *excelize.File, tab string) (model.Grid, error) {
	sheet := tab
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return model.Grid{}, ErrEmptyGrid
		}
		sheet = list[0]
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return model.Grid{}, fmt.Errorf("xlsx sheet %q not found", sheet)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return model.Grid{}, fmt.Errorf("read xlsx sheet %q: %w", sheet, err)
	}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		appLog.Warn("xlsx merged cells unreadable", "sheet", sheet, "reason", err.Error())
	}
	rows = fillVerticalMerges(rows, merges)

	appLog.Debug("xlsx sheet read", "sheet", sheet, "rows", len(rows), "merges", len(merges))
	return toGrid(rows)
}

// fillVerticalMerges copies the value of every merged range spanning more
// than one row into each covered cell. Single-row merges (group headers)
// stay sparse; the layout detector fills those forward itself.
func fillVerticalMerges(rows [][]string, merges []excelize.MergeCell) [][]string {
	for _, m := range merges {
		sc, sr, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		ec, er, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil || er <= sr {
			continue
		}
		value := m.GetCellValue()
		for r := sr - 1; r < er; r++ {
			for len(rows) <= r {
				rows = append(rows, nil)
			}
			for c := sc - 1; c < ec; c++ {
				for len(rows[r]) <= c {
					rows[r] = append(rows[r], "")
				}
				rows[r][c] = value
			}
		}
	}
	return rows
}

package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// DefaultRange is read when a locator names a tab but no range.
const DefaultRange = "A1:BZ1000"

// GSheets reads values through the Sheets v4 API.
type GSheets struct {
	svc *gsheets.Service
}

func NewGSheets(ctx context.Context, opts ...option.ClientOption) (*GSheets, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google sheets client: %w", err)
	}
	return &GSheets{svc: svc}, nil
}

func (g *GSheets) FetchGrid(ctx context.Context, loc Locator) (model.Grid, error) {
	id := loc.SpreadsheetID
	if id == "" {
		id = ExtractSpreadsheetID(loc.URL)
	}
	if id == "" {
		return model.Grid{}, errors.New("spreadsheet id is empty")
	}

	rng := A1Range(loc.Tab, loc.Range)
	resp, err := g.svc.Spreadsheets.Values.Get(id, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return model.Grid{}, fmt.Errorf("read sheet %s range %s: %w", id, rng, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		line := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				line[j] = fmt.Sprint(v)
			}
		}
		rows[i] = line
	}
	appLog.Debug("sheet values read", "spreadsheet", id, "range", rng, "rows", len(rows))
	return toGrid(rows)
}

// A1Range joins a tab and a cell range. A range that already names a tab
// is returned as is.
func A1Range(tab, rng string) string {
	if strings.Contains(rng, "!") {
		return rng
	}
	if rng == "" {
		rng = DefaultRange
	}
	if tab == "" {
		return rng
	}
	if strings.ContainsAny(tab, " '!") {
		tab = "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	}
	return tab + "!" + rng
}

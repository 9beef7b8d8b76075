// Package sheets reads spreadsheet sources into a model.Grid.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"sheetcal/internal/model"
)

// ErrEmptyGrid is returned when a source holds no rows at all.
var ErrEmptyGrid = errors.New("spreadsheet has no rows")

// Kind identifies how a source is read.
type Kind string

const (
	KindXLSX    Kind = "xlsx"
	KindCSV     Kind = "csv"
	KindGSheets Kind = "gsheets"
	KindCSVURL  Kind = "csv_url"
)

// Locator points at one tab of one spreadsheet.
type Locator struct {
	Kind Kind
	// Path is a local file for xlsx and csv.
	Path string
	// URL is a CSV export link for csv_url, or a sheet link for gsheets.
	URL           string
	SpreadsheetID string
	Tab           string
	// Range is an A1 range; gsheets only.
	Range string
}

// Key identifies the locator for caching.
func (l Locator) Key() string {
	return strings.Join([]string{string(l.Kind), l.Path, l.URL, l.SpreadsheetID, l.Tab, l.Range}, "|")
}

// Reader fetches the raw grid behind a locator.
type Reader interface {
	FetchGrid(ctx context.Context, loc Locator) (model.Grid, error)
}

// Router dispatches to the reader registered for the locator kind.
type Router map[Kind]Reader

func (r Router) FetchGrid(ctx context.Context, loc Locator) (model.Grid, error) {
	rd, ok := r[loc.Kind]
	if !ok || rd == nil {
		return model.Grid{}, fmt.Errorf("no reader for source kind %q", loc.Kind)
	}
	return rd.FetchGrid(ctx, loc)
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ExtractSpreadsheetID returns the id from a Google Sheets link. A bare id
// is returned unchanged; anything else yields "".
func ExtractSpreadsheetID(s string) string {
	s = strings.TrimSpace(s)
	if m := spreadsheetIDPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if s != "" && !strings.ContainsAny(s, "/:?# ") {
		return s
	}
	return ""
}

func toGrid(rows [][]string) (model.Grid, error) {
	if len(rows) == 0 {
		return model.Grid{}, ErrEmptyGrid
	}
	return model.NewGrid(rows), nil
}

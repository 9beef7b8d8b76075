package sheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"sheetcal/internal/model"
)

// CSV reads a local comma separated file.
type CSV struct{}

func (CSV) FetchGrid(_ context.Context, loc Locator) (model.Grid, error) {
	f, err := os.Open(loc.Path)
	if err != nil {
		return model.Grid{}, err
	}
	defer f.Close()

	rows, err := parseCSV(f)
	if err != nil {
		return model.Grid{}, fmt.Errorf("read csv %s: %w", loc.Path, err)
	}
	return toGrid(rows)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(r io.Reader) ([][]string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimPrefix(body, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(body))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

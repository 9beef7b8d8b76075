package normalize

import (
	"strings"

	"sheetcal/internal/keyword"
	"sheetcal/internal/layout"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/schema"
)

// Overrides carry user corrections. Zero values mean "detect".
type Overrides struct {
	// HeaderRow, when set, replaces automatic header detection.
	HeaderRow *int `json:"header_row,omitempty" yaml:"header_row,omitempty"`
	// Mapping, when non-empty, replaces the inferred mapping.
	Mapping model.ColumnMapping `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	// Person restricts events to one person; see PersonFilter.
	Person string `json:"person,omitempty" yaml:"person,omitempty"`
}

// Result is everything one pipeline run derived from a grid.
type Result struct {
	Resolution model.HeaderResolution `json:"resolution"`
	Schema     model.InferredSchema   `json:"schema"`
	// Mapping is the mapping actually applied.
	Mapping  model.ColumnMapping     `json:"mapping"`
	Events   []model.NormalizedEvent `json:"events"`
	Warnings []string                `json:"warnings,omitempty"`
}

// Pipeline chains header detection, schema inference and normalization.
type Pipeline struct {
	detector   *layout.Detector
	normalizer *Normalizer
}

func NewPipeline(profile layout.Profile, opts Options) *Pipeline {
	return &Pipeline{
		detector:   layout.NewDetector(profile),
		normalizer: New(opts),
	}
}

// Run derives events from grid. It never fails; problems are reported in
// Result.Warnings.
func (p *Pipeline) Run(grid model.Grid, ov Overrides) Result {
	var res Result
	if ov.HeaderRow != nil {
		res.Resolution = p.detector.ResolveAt(grid, *ov.HeaderRow)
	} else {
		res.Resolution = p.detector.Detect(grid)
	}

	res.Schema = schema.InferSchema(res.Resolution.DetailHeaders, samples(res.Resolution.Rows))
	res.Mapping = res.Schema.Mapping
	if len(ov.Mapping) > 0 {
		res.Mapping = ov.Mapping.Clone()
	}

	var events []model.NormalizedEvent
	if res.Resolution.Grouped() {
		events, res.Warnings = p.normalizer.Grouped(res.Resolution.GroupHeaders, res.Resolution.DetailHeaders, res.Resolution.Rows, res.Mapping)
	} else {
		events, res.Warnings = p.normalizer.Flat(res.Resolution.DetailHeaders, res.Resolution.Rows, res.Mapping)
	}

	filter := NewPersonFilter(ov.Person)
	res.Events = make([]model.NormalizedEvent, 0, len(events))
	for _, e := range events {
		if filter.Match(e) {
			res.Events = append(res.Events, e)
		}
	}

	appLog.Info("pipeline run",
		"archetype", res.Resolution.Archetype,
		"header_row", res.Resolution.HeaderRowIndex,
		"confidence", res.Schema.Confidence,
		"events", len(res.Events),
		"warnings", len(res.Warnings),
	)
	return res
}

func samples(rows []model.SourceRow) [][]string {
	out := make([][]string, 0, schema.SampleSize)
	for _, r := range rows {
		if len(out) == schema.SampleSize {
			break
		}
		if r.IsEmpty() {
			continue
		}
		out = append(out, r.Cells)
	}
	return out
}

// PersonFilter keeps events whose person or email contains the filter text,
// ignoring case. An empty filter or "all" keeps everything.
type PersonFilter struct {
	needle string
}

func NewPersonFilter(s string) PersonFilter {
	f := keyword.Fold(s)
	if f == "all" {
		f = ""
	}
	return PersonFilter{needle: f}
}

func (f PersonFilter) Match(e model.NormalizedEvent) bool {
	if f.needle == "" {
		return true
	}
	return contains(e.Person, f.needle) || contains(e.Email, f.needle)
}

func contains(s, folded string) bool {
	return s != "" && strings.Contains(keyword.Fold(s), folded)
}

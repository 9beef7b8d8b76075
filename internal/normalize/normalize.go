// Package normalize turns resolved sheet rows into calendar events. Flat
// sheets yield at most one event per row; sheets with group headers yield
// one event per dated group.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/timeparse"
)

// idLength is the number of hex characters kept from the id digest.
const idLength = 32

// Fallbacks are substituted for blank or unmapped values.
type Fallbacks struct {
	Person      string `yaml:"person" json:"person"`
	Task        string `yaml:"task" json:"task"`
	Location    string `yaml:"location" json:"location"`
	GroupPerson string `yaml:"group_person" json:"group_person"`
}

func DefaultFallbacks() Fallbacks {
	return Fallbacks{
		Person:      "Unknown",
		Task:        "Nhiệm vụ không tên",
		Location:    "Chưa xác định",
		GroupPerson: "Unassigned",
	}
}

func (f Fallbacks) withDefaults() Fallbacks {
	def := DefaultFallbacks()
	if strings.TrimSpace(f.Person) == "" {
		f.Person = def.Person
	}
	if strings.TrimSpace(f.Task) == "" {
		f.Task = def.Task
	}
	if strings.TrimSpace(f.Location) == "" {
		f.Location = def.Location
	}
	if strings.TrimSpace(f.GroupPerson) == "" {
		f.GroupPerson = def.GroupPerson
	}
	return f
}

// Options configure a Normalizer.
type Options struct {
	// SheetID and Tab feed event ids; they should identify the source.
	SheetID string
	Tab     string

	Fallbacks Fallbacks

	// TaskFallbackColumn names a header whose value is used as the task
	// when the mapped task cell is blank.
	TaskFallbackColumn string

	// Parser defaults to timeparse.New().
	Parser *timeparse.Parser
}

// Normalizer converts rows to events. It is stateless and safe for
// concurrent use.
type Normalizer struct {
	opts   Options
	parser *timeparse.Parser
}

func New(opts Options) *Normalizer {
	opts.Fallbacks = opts.Fallbacks.withDefaults()
	p := opts.Parser
	if p == nil {
		p = timeparse.New()
	}
	return &Normalizer{opts: opts, parser: p}
}

// NormalizeRows runs flat normalization with default options. rows start
// right below headerRowIndex.
func NormalizeRows(headers []string, rows [][]string, mapping model.ColumnMapping, headerRowIndex int) []model.NormalizedEvent {
	events, _ := New(Options{}).Flat(headers, model.SourceRowsFrom(rows, headerRowIndex+1), mapping)
	return events
}

// NormalizeRowsWithGrouping runs grouped normalization with default options.
func NormalizeRowsWithGrouping(groupHeaders, detailHeaders []string, rows [][]string, mapping model.ColumnMapping, headerRowIndex int) []model.NormalizedEvent {
	events, _ := New(Options{}).Grouped(groupHeaders, detailHeaders, model.SourceRowsFrom(rows, headerRowIndex+1), mapping)
	return events
}

// Flat emits one event per row with non-blank date and time cells. The
// second return value lists warnings raised while parsing.
func (n *Normalizer) Flat(headers []string, rows []model.SourceRow, mapping model.ColumnMapping) ([]model.NormalizedEvent, []string) {
	var warnings []string
	mapping, warnings = validMapping(mapping, len(headers))
	if !mapping.Normalizable() {
		msg := "no date/time column mapped, nothing to normalize"
		appLog.Warn(msg, "tab", n.opts.Tab)
		return nil, append(warnings, msg)
	}

	dateCol, _ := mapping.Get(model.RoleDate)
	timeCol, _ := mapping.Get(model.RoleTime)
	taskFallback := columnIndex(headers, n.opts.TaskFallbackColumn)

	events := make([]model.NormalizedEvent, 0, len(rows))
	for _, row := range rows {
		dateStr, timeStr := strings.TrimSpace(row.Cell(dateCol)), strings.TrimSpace(row.Cell(timeCol))
		if dateStr == "" || timeStr == "" {
			continue
		}

		span := n.parser.Parse(dateStr, timeStr)
		for _, w := range span.Warnings {
			warnings = append(warnings, rowWarning(n.opts.Tab, row.Number(), w))
		}

		person := firstNonBlank(mapped(row, mapping, model.RolePerson), n.opts.Fallbacks.Person)
		task := firstNonBlank(mapped(row, mapping, model.RoleTask), row.Cell(taskFallback), n.opts.Fallbacks.Task)
		all := allColumns(len(headers))

		events = append(events, model.NormalizedEvent{
			ID:          n.eventID(row.Number(), person),
			SourceRowID: n.sourceRowID(row.Number()),
			Date:        n.displayDate(dateStr),
			StartTime:   span.Start,
			EndTime:     span.End,
			Person:      person,
			Task:        task,
			Location:    firstNonBlank(mapped(row, mapping, model.RoleLocation), n.opts.Fallbacks.Location),
			Email:       mapped(row, mapping, model.RoleEmail),
			Raw:         rawFields(headers, all, row),
			Status:      model.StatusPending,
		})
	}
	return events, warnings
}

func (n *Normalizer) eventID(rowNumber int, key string) string {
	h := sha256.New()
	for _, part := range []string{n.opts.SheetID, n.opts.Tab, strconv.Itoa(rowNumber), key} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))[:idLength]
}

// sourceRowID is an A1-style row reference such as "Sheet1!12".
func (n *Normalizer) sourceRowID(rowNumber int) string {
	if n.opts.Tab == "" {
		return strconv.Itoa(rowNumber)
	}
	return n.opts.Tab + "!" + strconv.Itoa(rowNumber)
}

// displayDate renders parseable dates as DD/MM/YYYY and leaves anything
// else as found.
func (n *Normalizer) displayDate(s string) string {
	if d, err := n.parser.ParseDate(s); err == nil {
		return d.String()
	}
	return s
}

// validMapping drops roles pointing outside the header width.
func validMapping(m model.ColumnMapping, width int) (model.ColumnMapping, []string) {
	out := make(model.ColumnMapping, len(m))
	var warnings []string
	for role, idx := range m {
		if idx < 0 || idx >= width {
			msg := fmt.Sprintf("mapping for %s points at column %d outside %d columns, ignored", role, idx, width)
			appLog.Warn("mapping column out of range", "role", role, "column", idx, "width", width)
			warnings = append(warnings, msg)
			continue
		}
		out[role] = idx
	}
	return out, warnings
}

func mapped(row model.SourceRow, m model.ColumnMapping, role model.Role) string {
	idx, ok := m.Get(role)
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Cell(idx))
}

func columnIndex(headers []string, name string) int {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1
	}
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func allColumns(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// rawFields copies the listed columns of row keyed by header name. Blank
// and repeated names get a Column_i key so no value is overwritten.
func rawFields(headers []string, columns []int, row model.SourceRow) model.Fields {
	used := make(map[string]bool, len(columns))
	out := make(model.Fields, 0, len(columns))
	for _, c := range columns {
		name := ""
		if c < len(headers) {
			name = strings.TrimSpace(headers[c])
		}
		if name == "" || used[name] {
			name = model.ColumnPlaceholder(c)
		}
		used[name] = true
		out = append(out, model.Field{Name: name, Value: row.Cell(c)})
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func rowWarning(tab string, row int, msg string) string {
	if tab == "" {
		return fmt.Sprintf("row %d: %s", row, msg)
	}
	return fmt.Sprintf("%s row %d: %s", tab, row, msg)
}

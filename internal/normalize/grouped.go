package normalize

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"sheetcal/internal/keyword"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
	"sheetcal/internal/schema"
)

var (
	// strictDate is the shape a group's date must have for the group to
	// produce an event.
	strictDate = regexp.MustCompile(`^\d{1,4}[/.\-]\d{1,2}[/.\-]\d{1,4}$`)

	groupDateWords  = keyword.NewSet("ngày", "date")
	weekdayWords    = keyword.NewSet("thứ", "weekday", "day of week", "trong tuần", "dow")
	groupTimeWords  = keyword.Union(schema.Keywords[model.RoleTime], keyword.NewSet("thời gian"))
	groupRoomWords  = schema.Keywords[model.RoleLocation]
	groupPersonWord = schema.Keywords[model.RolePerson]
	groupEmailWords = schema.Keywords[model.RoleEmail]
	groupCodeWords  = keyword.NewSet("code", "mã")
)

// group is a contiguous run of columns sharing one group label.
type group struct {
	name    string
	columns []int
}

// groupRuns splits columns into runs of identical labels. Placeholder
// labels never form a group and are returned as shared columns. A label
// repeated later in the row gets a "#n" suffix.
func groupRuns(labels []string) (groups []group, shared []int) {
	seen := map[string]int{}
	for c := 0; c < len(labels); c++ {
		label := strings.TrimSpace(labels[c])
		if label == "" || model.IsColumnPlaceholder(label) {
			shared = append(shared, c)
			continue
		}
		if len(groups) > 0 && c > 0 && strings.TrimSpace(labels[c-1]) == label {
			groups[len(groups)-1].columns = append(groups[len(groups)-1].columns, c)
			continue
		}
		seen[label]++
		name := label
		if seen[label] > 1 {
			name = label + "#" + strconv.Itoa(seen[label])
		}
		groups = append(groups, group{name: name, columns: []int{c}})
	}
	return groups, shared
}

// groupValues are the values found in one group of one row.
type groupValues struct {
	date, time, room, email, code string
	reviewers                     []string
}

func extractGroup(detail []string, g group, row model.SourceRow) groupValues {
	taken := map[int]bool{}
	find := func(words keyword.Set, skip keyword.Set) string {
		for _, c := range g.columns {
			if taken[c] || !words.Match(detail[c]) {
				continue
			}
			if skip != nil && skip.Match(detail[c]) {
				continue
			}
			taken[c] = true
			return strings.TrimSpace(row.Cell(c))
		}
		return ""
	}

	var v groupValues
	v.date = find(groupDateWords, weekdayWords)
	v.time = find(groupTimeWords, weekdayWords)
	v.room = find(groupRoomWords, nil)
	for _, c := range g.columns {
		if taken[c] || !groupPersonWord.Match(detail[c]) {
			continue
		}
		taken[c] = true
		if val := strings.TrimSpace(row.Cell(c)); val != "" {
			v.reviewers = append(v.reviewers, val)
		}
	}
	v.email = find(groupEmailWords, nil)
	v.code = find(groupCodeWords, nil)
	return v
}

// Grouped emits one event per group whose date cell has a date shape.
// Groups without an assignee still produce an event with the group person
// fallback. Columns of groups that produce no event in a row are kept in
// the raw context of that row's events.
func (n *Normalizer) Grouped(groupHeaders, detailHeaders []string, rows []model.SourceRow, mapping model.ColumnMapping) ([]model.NormalizedEvent, []string) {
	width := len(detailHeaders)
	if len(groupHeaders) < width {
		padded := make([]string, width)
		copy(padded, groupHeaders)
		for c := len(groupHeaders); c < width; c++ {
			padded[c] = model.ColumnPlaceholder(c)
		}
		groupHeaders = padded
	}

	var warnings []string
	mapping, warnings = validMapping(mapping, width)
	groups, shared := groupRuns(groupHeaders[:width])
	taskFallback := columnIndex(detailHeaders, n.opts.TaskFallbackColumn)

	var events []model.NormalizedEvent
	for _, row := range rows {
		if row.IsEmpty() {
			continue
		}

		values := make([]groupValues, len(groups))
		dated := make([]bool, len(groups))
		rowShared := append([]int(nil), shared...)
		for i, g := range groups {
			values[i] = extractGroup(detailHeaders, g, row)
			dated[i] = strictDate.MatchString(values[i].date)
			if !dated[i] {
				rowShared = append(rowShared, g.columns...)
			}
		}

		for i, g := range groups {
			if !dated[i] {
				if values[i].date != "" {
					appLog.Debug("group date not date-like, skipped", "group", g.name, "row", row.Number(), "date", values[i].date)
				}
				continue
			}
			v := values[i]

			span := n.parser.Parse(v.date, v.time)
			for _, w := range span.Warnings {
				warnings = append(warnings, rowWarning(n.opts.Tab, row.Number(), g.name+": "+w))
			}

			person := n.opts.Fallbacks.GroupPerson
			if len(v.reviewers) > 0 {
				person = strings.Join(v.reviewers, ", ")
			}

			task := g.name
			if detail := firstNonBlank(v.code, mapped(row, mapping, model.RoleTask), row.Cell(taskFallback)); detail != "" {
				task = g.name + ": " + detail
			}

			cols := append(append([]int(nil), rowShared...), g.columns...)
			slices.Sort(cols)

			events = append(events, model.NormalizedEvent{
				ID:          n.eventID(row.Number(), g.name),
				GroupName:   g.name,
				SourceRowID: n.sourceRowID(row.Number()),
				Date:        n.displayDate(v.date),
				StartTime:   span.Start,
				EndTime:     span.End,
				Person:      person,
				Task:        task,
				Location:    firstNonBlank(v.room, mapped(row, mapping, model.RoleLocation), n.opts.Fallbacks.Location),
				Email:       firstNonBlank(v.email, mapped(row, mapping, model.RoleEmail)),
				Raw:         rawFields(detailHeaders, cols, row),
				Status:      model.StatusPending,
			})
		}
	}
	return events, warnings
}

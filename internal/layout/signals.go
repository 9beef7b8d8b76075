package layout

import (
	"regexp"
	"strings"

	"sheetcal/internal/keyword"
	"sheetcal/internal/model"
	"sheetcal/internal/schema"
)

var (
	// headerWords are words expected in header cells: every role keyword
	// plus the usual column captions of schedule sheets.
	headerWords = keyword.Union(
		schema.Keywords[model.RoleDate],
		schema.Keywords[model.RoleTime],
		schema.Keywords[model.RolePerson],
		schema.Keywords[model.RoleTask],
		schema.Keywords[model.RoleLocation],
		schema.Keywords[model.RoleEmail],
		keyword.NewSet("code", "count", "room", "slot", "week", "stt", "mã", "no"),
	)

	// groupWords are typical labels of merged section cells.
	groupWords = keyword.NewSet("review", "defense", "round", "phase", "session", "group", "đợt", "vòng", "buổi", "nhóm")

	dateCell    = regexp.MustCompile(`^\d{1,4}\s*[/.\-]\s*\d{1,2}\s*[/.\-]\s*\d{1,4}`)
	timeCell    = regexp.MustCompile(`(?i)^\d{1,2}\s*[:h]\s*\d{0,2}(\s*(am|pm))?(\s*[-–—]\s*\d{1,2}\s*[:h]?\s*\d{0,2}(\s*(am|pm))?)?$`)
	numericCell = regexp.MustCompile(`^\d+([.,]\d+)?$`)
	emailCell   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func filled(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func density(row []string) float64 {
	if len(row) == 0 {
		return 0
	}
	return float64(filled(row)) / float64(len(row))
}

func keywordHits(row []string) int {
	return headerWords.Count(row)
}

func dataHits(row []string) int {
	n := 0
	for _, c := range row {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if dateCell.MatchString(c) || timeCell.MatchString(c) || numericCell.MatchString(c) || emailCell.MatchString(c) {
			n++
		}
	}
	return n
}

// looksLikeData reports whether a row reads as values rather than captions.
func looksLikeData(row []string) bool {
	d := dataHits(row)
	return d >= 1 && d >= keywordHits(row)
}

// sparseRuns reports whether row has a label followed by empty cells and
// then another label, the shape merged header cells take once exported.
// Blanks after the last label do not count: short rows are padded with them.
func sparseRuns(row []string) bool {
	seen, gap := false, false
	for _, c := range row {
		if strings.TrimSpace(c) == "" {
			gap = gap || seen
			continue
		}
		if gap {
			return true
		}
		seen = true
	}
	return false
}

func repeatedLabels(row []string) bool {
	counts := map[string]int{}
	for _, c := range row {
		f := keyword.Fold(c)
		if f == "" {
			continue
		}
		counts[f]++
		if counts[f] > 1 {
			return true
		}
	}
	return false
}

// fillForward copies each non-empty label into the empty cells after it.
// Cells before the first label stay empty.
func fillForward(row []string) []string {
	out := make([]string, len(row))
	last := ""
	for i, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			last = c
		}
		out[i] = last
	}
	return out
}

// Package schema guesses which column of a sheet carries which role from
// header text and a few sample rows.
package schema

import (
	"regexp"
	"strings"

	"sheetcal/internal/keyword"
	"sheetcal/internal/model"
)

const (
	keywordScore = 0.6
	patternScore = 0.4

	// ReliableConfidence is the confidence an inference must exceed to be
	// used without review.
	ReliableConfidence = 0.75

	// SampleSize is how many data rows callers should pass as samples.
	SampleSize = 5
)

// Keywords per role. Exported so the detector and the grouped normalizer
// share one vocabulary.
var Keywords = map[model.Role]keyword.Set{
	model.RoleDate:     keyword.NewSet("ngày", "date", "thời gian"),
	model.RoleTime:     keyword.NewSet("giờ", "time", "slot", "ca", "slot code", "slotcode", "tiết"),
	model.RolePerson:   keyword.NewSet("họ", "tên", "giảng viên", "thành viên", "người", "teacher", "member", "name", "reviewer"),
	model.RoleTask:     keyword.NewSet("nhiệm vụ", "vai trò", "việc", "task", "role", "duty", "môn"),
	model.RoleLocation: keyword.NewSet("phòng", "địa điểm", "room", "location", "online"),
	model.RoleEmail:    keyword.NewSet("email", "thư điện tử"),
}

// Patterns per role. Roles without an entry only score on keywords.
var Patterns = map[model.Role]*regexp.Regexp{
	model.RoleDate:  regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
	model.RoleTime:  regexp.MustCompile(`(?i)(\d{1,2})h(\d{2})?\s*-\s*(\d{1,2})h(\d{2})?`),
	model.RoleEmail: regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
}

// InferSchema scores every (column, role) pair and keeps, per role, the
// leftmost column with the highest positive score. It never fails: empty
// input yields an empty mapping and zero confidence.
func InferSchema(headers []string, samples [][]string) model.InferredSchema {
	out := model.InferredSchema{
		Mapping: model.ColumnMapping{},
		Scores:  map[model.Role]float64{},
	}

	total := 0.0
	for _, role := range model.Roles {
		best, bestCol := 0.0, -1
		for col, header := range headers {
			s := ScoreColumn(role, header, column(samples, col))
			if s > best {
				best, bestCol = s, col
			}
		}
		if bestCol < 0 {
			continue
		}
		out.Mapping[role] = bestCol
		out.Scores[role] = best
		total += best
	}

	if n := len(out.Scores); n > 0 {
		out.Confidence = total / float64(n)
	}
	out.IsReliable = out.Confidence > ReliableConfidence &&
		out.Mapping.Has(model.RoleDate) &&
		out.Mapping.Has(model.RoleTime) &&
		out.Mapping.Has(model.RolePerson)
	return out
}

// ScoreColumn returns the score of one column for role.
func ScoreColumn(role model.Role, header string, values []string) float64 {
	score := 0.0
	if Keywords[role].Match(header) {
		score += keywordScore
	}
	if re, ok := Patterns[role]; ok && allMatch(re, values) {
		score += patternScore
	}
	return score
}

// allMatch requires at least one non-empty value; blanks are ignored.
func allMatch(re *regexp.Regexp, values []string) bool {
	seen := false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !re.MatchString(v) {
			return false
		}
		seen = true
	}
	return seen
}

func column(rows [][]string, col int) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if col < len(r) {
			out = append(out, r[col])
		}
	}
	return out
}

// Package keyword matches header text against keyword lists. Matching is
// case-insensitive and diacritic-sensitive: "ngày" and "ngay" are different
// words, but "NGÀY" and "ngày" are the same, whatever the Unicode form.
package keyword

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// shortWord is the rune length at or below which a keyword must match a
// whole word ("ca" must not match "vacation").
const shortWord = 2

// Fold returns the comparison form of s: NFC-composed, lower-cased and
// trimmed.
func Fold(s string) string {
	// cases.Caser keeps state and is not safe for concurrent use.
	lower := cases.Lower(language.Und)
	return strings.TrimSpace(lower.String(norm.NFC.String(s)))
}

// Words splits folded text into letter/digit runs.
func Words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})
}

// Set is a folded keyword list.
type Set []string

// NewSet folds every keyword once.
func NewSet(words ...string) Set {
	out := make(Set, 0, len(words))
	for _, w := range words {
		if f := Fold(w); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Union returns a set holding the keywords of every set in order.
func Union(sets ...Set) Set {
	var out Set
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// Match reports whether text contains any keyword of s.
func (s Set) Match(text string) bool {
	_, ok := s.First(text)
	return ok
}

// First returns the first keyword of s found in text.
func (s Set) First(text string) (string, bool) {
	folded := Fold(text)
	if folded == "" {
		return "", false
	}
	var words []string
	for _, kw := range s {
		if utf8.RuneCountInString(kw) > shortWord {
			if strings.Contains(folded, kw) {
				return kw, true
			}
			continue
		}
		if words == nil {
			words = Words(folded)
		}
		for _, w := range words {
			if w == kw {
				return kw, true
			}
		}
	}
	return "", false
}

// Count returns how many cells of row contain at least one keyword of s.
func (s Set) Count(row []string) int {
	n := 0
	for _, cell := range row {
		if s.Match(cell) {
			n++
		}
	}
	return n
}

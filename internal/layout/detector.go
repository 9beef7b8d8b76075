// Package layout decides which rows of a sheet hold its headers and turns
// them into a flat or a group+detail header structure.
package layout

import (
	"sheetcal/internal/keyword"
	appLog "sheetcal/internal/log"
	"sheetcal/internal/model"
)

// candidateRows is how many leading rows are considered as header rows.
const candidateRows = 3

// Detector scores header layouts for a Profile. It holds no mutable state.
type Detector struct {
	profile  Profile
	excluded keyword.Set
}

// NewDetector returns a detector for p.
func NewDetector(p Profile) *Detector {
	return &Detector{profile: p, excluded: keyword.NewSet(p.excluded...)}
}

// Profile returns the detector's profile.
func (d *Detector) Profile() Profile { return d.profile }

// DetectFormat runs automatic detection allowing both archetypes and no
// column exclusions.
func DetectFormat(grid model.Grid) model.HeaderResolution {
	return NewDetector(TwoTier()).Detect(grid)
}

// ResolveHeaderAtRow resolves headers at a user-chosen row allowing both
// archetypes and no column exclusions.
func ResolveHeaderAtRow(grid model.Grid, row int) model.HeaderResolution {
	return NewDetector(TwoTier()).ResolveAt(grid, row)
}

// Candidate is a scored header hypothesis.
type Candidate struct {
	Archetype model.Archetype
	Row       int
	Score     int
}

// Candidates returns the best flat and, when the profile allows it, the best
// two-tier hypothesis for grid.
func (d *Detector) Candidates(grid model.Grid) (flat Candidate, twoTier Candidate) {
	flat = Candidate{Archetype: model.ArchetypeFlat}
	twoTier = Candidate{Archetype: model.ArchetypeTwoTier, Row: -1}

	for h := 0; h < candidateRows && h < grid.Len(); h++ {
		if s := flatScore(grid, h); s > flat.Score {
			flat.Row, flat.Score = h, s
		}
	}
	if !d.profile.grouping() {
		return flat, twoTier
	}
	for g := 0; g < candidateRows && g+1 < grid.Len(); g++ {
		if s := twoTierScore(grid, g); s > twoTier.Score {
			twoTier.Row, twoTier.Score = g, s
		}
	}
	return flat, twoTier
}

// Detect picks the highest-scoring layout. A tie resolves to a flat header
// on the first row.
func (d *Detector) Detect(grid model.Grid) model.HeaderResolution {
	if grid.Len() == 0 {
		return model.HeaderResolution{Archetype: model.ArchetypeFlat}
	}

	flat, twoTier := d.Candidates(grid)
	appLog.Debug("layout scores",
		"flat_row", flat.Row, "flat_score", flat.Score,
		"two_tier_row", twoTier.Row, "two_tier_score", twoTier.Score,
	)

	switch {
	case twoTier.Row >= 0 && twoTier.Score > flat.Score:
		return d.resolve(grid, twoTier.Row, true)
	case flat.Score > twoTier.Score:
		return d.resolve(grid, flat.Row, false)
	default:
		return d.resolve(grid, 0, false)
	}
}

// ResolveAt resolves headers at a chosen row. The row is treated as a group
// row when the next row reads more like a detail header: more keyword hits
// or a higher fill ratio, and not data.
func (d *Detector) ResolveAt(grid model.Grid, row int) model.HeaderResolution {
	if grid.Len() == 0 {
		return model.HeaderResolution{Archetype: model.ArchetypeFlat}
	}
	if row < 0 {
		row = 0
	}
	if row >= grid.Len() {
		row = grid.Len() - 1
	}

	twoTier := false
	if d.profile.grouping() && row+1 < grid.Len() {
		cur, next := grid.Row(row), grid.Row(row+1)
		moreHeaderLike := keywordHits(next) > keywordHits(cur) || density(next) > density(cur)
		twoTier = moreHeaderLike && !looksLikeData(next)
	}
	return d.resolve(grid, row, twoTier)
}

func flatScore(grid model.Grid, h int) int {
	row := grid.Row(h)
	score := 0
	if keywordHits(row) >= 2 {
		score += 2
	}
	if h+1 < grid.Len() {
		next := grid.Row(h + 1)
		if density(row) >= density(next) {
			score++
		}
		if looksLikeData(next) {
			score += 2
		}
	}
	if h > 0 {
		score--
	}
	return score
}

func twoTierScore(grid model.Grid, g int) int {
	group, detail := grid.Row(g), grid.Row(g+1)
	labelled := groupWords.Count(group) > 0
	// A lone caption over blank cells is a title, not a group row.
	if !sparseRuns(group) || (filled(group) < 2 && !labelled) {
		return 0
	}
	if looksLikeData(detail) {
		return 0
	}

	score := 0
	if density(group) < density(detail) {
		score += 2
	}
	if labelled {
		score++
	}
	if keywordHits(detail) > keywordHits(group) {
		score += 2
	}
	if repeatedLabels(detail) {
		score++
	}
	if g+2 < grid.Len() && looksLikeData(grid.Row(g+2)) {
		score += 2
	}
	return score
}

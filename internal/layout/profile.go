package layout

import "sheetcal/internal/model"

// Profile selects which header layouts the detector may produce.
type Profile struct {
	archetype model.Archetype
	excluded  []string
}

// Flat restricts detection to a single header row without grouping.
func Flat() Profile {
	return Profile{archetype: model.ArchetypeFlat}
}

// TwoTier allows group+detail headers. Columns whose group or detail label
// contains one of excluded are dropped from the resolution.
func TwoTier(excluded ...string) Profile {
	return Profile{
		archetype: model.ArchetypeTwoTier,
		excluded:  append([]string(nil), excluded...),
	}
}

// Archetype is the most complex layout the profile allows.
func (p Profile) Archetype() model.Archetype {
	if p.archetype == "" {
		return model.ArchetypeTwoTier
	}
	return p.archetype
}

// Excluded returns the exclusion labels.
func (p Profile) Excluded() []string {
	return append([]string(nil), p.excluded...)
}

func (p Profile) grouping() bool {
	return p.Archetype() == model.ArchetypeTwoTier
}

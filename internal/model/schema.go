package model

// Role is the semantic meaning of a spreadsheet column.
type Role string

const (
	RoleDate     Role = "date"
	RoleTime     Role = "time"
	RolePerson   Role = "person"
	RoleTask     Role = "task"
	RoleLocation Role = "location"
	RoleEmail    Role = "email"
)

// Roles lists every role in scoring order.
var Roles = []Role{RoleDate, RoleTime, RolePerson, RoleTask, RoleLocation, RoleEmail}

// ColumnMapping maps roles to zero-based column indexes. Absent roles are
// simply missing from the map.
type ColumnMapping map[Role]int

// Get returns the column for role and whether it is mapped.
func (m ColumnMapping) Get(role Role) (int, bool) {
	if m == nil {
		return 0, false
	}
	idx, ok := m[role]
	if !ok || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Has reports whether role is mapped.
func (m ColumnMapping) Has(role Role) bool {
	_, ok := m.Get(role)
	return ok
}

// Normalizable reports whether the mandatory date and time roles are mapped.
func (m ColumnMapping) Normalizable() bool {
	return m.Has(RoleDate) && m.Has(RoleTime)
}

// Clone returns an independent copy.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// InferredSchema is the outcome of header/sample based role inference.
type InferredSchema struct {
	Mapping    ColumnMapping    `json:"mapping" yaml:"mapping"`
	Scores     map[Role]float64 `json:"scores,omitempty" yaml:"scores,omitempty"`
	Confidence float64          `json:"confidence" yaml:"confidence"`
	IsReliable bool             `json:"is_reliable" yaml:"is_reliable"`
}

// Archetype names the header layout chosen by the detector.
type Archetype string

const (
	ArchetypeFlat    Archetype = "flat"
	ArchetypeTwoTier Archetype = "two_tier"
)

// HeaderResolution describes which rows of a grid hold header semantics and
// how data rows line up with them.
type HeaderResolution struct {
	Archetype Archetype `json:"archetype"`

	// HeaderRowIndex is the row holding the most specific (detail) headers.
	HeaderRowIndex int `json:"header_row_index"`
	// DataStartRow is the grid index of the first data row after trimming
	// leading empty rows.
	DataStartRow int `json:"data_start_row"`

	// GroupHeaders is set only for two-tier layouts; one fill-forward label
	// per column. Columns that are not part of any group carry a
	// ColumnPlaceholder label.
	GroupHeaders []string `json:"group_headers,omitempty"`
	// DetailHeaders is one non-empty name per column.
	DetailHeaders []string `json:"detail_headers"`

	// Columns maps each resolved column to its index in the source grid.
	// It differs from the identity only when columns were excluded.
	Columns []int `json:"columns"`

	// Rows are the data rows, projected onto Columns.
	Rows []SourceRow `json:"-"`
}

// Grouped reports whether the resolution carries a group tier.
func (h HeaderResolution) Grouped() bool {
	return len(h.GroupHeaders) > 0
}


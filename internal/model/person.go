package model

import "time"

// Person is the canonical entity: the system's own authoritative record of an
// individual, distinct from any provider's copy. Persons are never deleted;
// two records found to describe the same individual are merged upstream.
type Person struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	BirthDate   string    `json:"birth_date,omitempty"`
	BirthPlace  string    `json:"birth_place,omitempty"`
	DeathDate   string    `json:"death_date,omitempty"`
	DeathPlace  string    `json:"death_place,omitempty"`
	BurialDate  string    `json:"burial_date,omitempty"`
	BurialPlace string    `json:"burial_place,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role tags a relationship edge from the perspective of the person owning it.
type Role string

const (
	RoleFather Role = "father"
	RoleMother Role = "mother"
	RoleSpouse Role = "spouse"
	RoleChild  Role = "child"
)

// ParentRoles are the roles discovery can attach provider references to.
var ParentRoles = []Role{RoleFather, RoleMother}

// IsParent reports whether the role is one of the parent roles.
func (r Role) IsParent() bool {
	return r == RoleFather || r == RoleMother
}

// Valid reports whether the role is one of the known role constants.
func (r Role) Valid() bool {
	switch r {
	case RoleFather, RoleMother, RoleSpouse, RoleChild:
		return true
	}
	return false
}

// Relationship is a role-tagged edge between two canonical persons.
// The edge is directional: RelativeID plays Role for PersonID.
type Relationship struct {
	ID         int64 `json:"id"`
	PersonID   int64 `json:"person_id"`
	RelativeID int64 `json:"relative_id"`
	Role       Role  `json:"role"`
}

package model

import "time"

// EntityType scopes an override's field name.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityVitalEvent EntityType = "vital_event"
)

// Override is a user-entered correction for one field of one person. It takes
// precedence over the canonical value and is never touched by provider sync;
// at most one override is active per (person, entity type, field).
type Override struct {
	ID         int64      `json:"id"`
	PersonID   int64      `json:"person_id"`
	EntityType EntityType `json:"entity_type"`
	Field      string     `json:"field"`
	Value      string     `json:"value"`
	Original   string     `json:"original"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ClaimSource distinguishes user-entered claims from provider-derived ones.
type ClaimSource string

const (
	SourceUser     ClaimSource = "user"
	SourceProvider ClaimSource = "provider"
)

// Claim is a multi-valued fact about a person, such as one of several aliases
// or occupations. Unlike an Override it does not supersede anything: a person
// holds many claims for the same predicate at once. User claims are deleted
// individually; provider claims are regenerated wholesale on re-sync.
type Claim struct {
	ID        int64       `json:"id"`
	PersonID  int64       `json:"person_id"`
	Predicate string      `json:"predicate"`
	Value     string      `json:"value"`
	Source    ClaimSource `json:"source"`
	Provider  Provider    `json:"provider,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Well-known claim predicates.
const (
	PredicateAlias      = "alias"
	PredicateOccupation = "occupation"
)

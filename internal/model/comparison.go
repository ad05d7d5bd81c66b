package model

// FieldStatus classifies one provider's value for one field relative to the
// local (override-or-canonical) value.
type FieldStatus string

const (
	StatusMatch           FieldStatus = "match"
	StatusDifferent       FieldStatus = "different"
	StatusMissingLocal    FieldStatus = "missing_local"
	StatusMissingProvider FieldStatus = "missing_provider"
)

// ProviderValue is one provider's contribution to a field comparison.
type ProviderValue struct {
	Value  string      `json:"value,omitempty"`
	Status FieldStatus `json:"status"`
}

// ComparisonResult is the per-field outcome of comparing a person against
// every linked provider. Local carries the override value when an active
// override exists, else the canonical value. Derived on demand, never stored.
type ComparisonResult struct {
	Field      string                     `json:"field"`
	EntityType EntityType                 `json:"entity_type"`
	Local      string                     `json:"local,omitempty"`
	Overridden bool                       `json:"overridden"`
	Providers  map[Provider]ProviderValue `json:"providers"`
}

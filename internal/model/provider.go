package model

import "time"

// Provider identifies an external genealogy data source. The set of known
// providers comes from configuration, not from code.
type Provider string

// ExternalIdentity maps a canonical person to their identifier on a provider.
// At most one mapping is active per (person, provider) pair; a provider-side
// merge or redirect demotes the old mapping to historical rather than
// deleting it, since the old id may still identify the record that redirected.
type ExternalIdentity struct {
	ID            int64      `json:"id"`
	PersonID      int64      `json:"person_id"`
	Provider      Provider   `json:"provider"`
	ExternalID    string     `json:"external_id"`
	URL           string     `json:"url,omitempty"`
	Confidence    float64    `json:"confidence"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// ProviderRecord is an immutable snapshot of a person's raw record as fetched
// from one provider. A re-fetch writes a new snapshot with a later FetchedAt;
// older snapshots are superseded for comparison purposes but kept as history.
type ProviderRecord struct {
	Provider   Provider          `json:"provider"`
	ExternalID string            `json:"external_id"`
	FetchedAt  time.Time         `json:"fetched_at"`
	URL        string            `json:"url,omitempty"`
	Fields     map[string]string `json:"fields"`
	Parents    []ParentReference `json:"parents,omitempty"`
}

// Field returns the raw value for a field name, or "" when absent.
func (r *ProviderRecord) Field(name string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Parent returns the extracted parent reference for a role, if any.
func (r *ProviderRecord) Parent(role Role) (ParentReference, bool) {
	if r == nil {
		return ParentReference{}, false
	}
	for _, ref := range r.Parents {
		if ref.Role == role {
			return ref, true
		}
	}
	return ParentReference{}, false
}

// ParentReference is a parent link extracted from a provider record: the
// parent's external id on that provider plus the display name shown on the
// page, used for name matching against canonical parents.
type ParentReference struct {
	Role        Role   `json:"role"`
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url,omitempty"`
}

package compare

import (
	"sort"
	"strconv"
	"strings"

	"kinsync/internal/match"
	"kinsync/internal/model"
)

// FieldKind selects the equality rule for a field.
type FieldKind string

const (
	KindText   FieldKind = "text"   // normalized text equality
	KindDate   FieldKind = "date"   // parsed calendar equality, text fallback
	KindNumber FieldKind = "number" // numeric equality, text fallback
	KindList   FieldKind = "list"   // order-insensitive normalized list equality
)

// FieldSpec describes one comparable field.
type FieldSpec struct {
	Name       string
	EntityType model.EntityType
	Kind       FieldKind
}

// Schema is the versioned set of comparable fields. The field set is
// configuration: callers may compare against a reduced or extended schema
// without touching engine logic.
type Schema struct {
	Version int
	Fields  []FieldSpec
}

// DefaultSchema is the built-in comparable field set.
func DefaultSchema() Schema {
	return Schema{
		Version: 1,
		Fields: []FieldSpec{
			{Name: "name", EntityType: model.EntityPerson, Kind: KindText},
			{Name: "birth_date", EntityType: model.EntityVitalEvent, Kind: KindDate},
			{Name: "birth_place", EntityType: model.EntityVitalEvent, Kind: KindText},
			{Name: "death_date", EntityType: model.EntityVitalEvent, Kind: KindDate},
			{Name: "death_place", EntityType: model.EntityVitalEvent, Kind: KindText},
			{Name: "burial_date", EntityType: model.EntityVitalEvent, Kind: KindDate},
			{Name: "burial_place", EntityType: model.EntityVitalEvent, Kind: KindText},
			{Name: "father_name", EntityType: model.EntityPerson, Kind: KindText},
			{Name: "mother_name", EntityType: model.EntityPerson, Kind: KindText},
			{Name: "children_count", EntityType: model.EntityPerson, Kind: KindNumber},
			{Name: "aliases", EntityType: model.EntityPerson, Kind: KindList},
			{Name: "occupations", EntityType: model.EntityPerson, Kind: KindList},
		},
	}
}

// valuesEqual applies the field kind's equality rule to two raw values.
func valuesEqual(kind FieldKind, a, b string) bool {
	switch kind {
	case KindDate:
		return match.DatesEqual(a, b)
	case KindNumber:
		na, errA := strconv.Atoi(strings.TrimSpace(a))
		nb, errB := strconv.Atoi(strings.TrimSpace(b))
		if errA == nil && errB == nil {
			return na == nb
		}
		return match.Normalize(a) == match.Normalize(b)
	case KindList:
		return normalizeList(a) == normalizeList(b)
	default:
		return match.Normalize(a) == match.Normalize(b)
	}
}

// normalizeList canonicalizes a multi-valued field: split on semicolons or
// commas, normalize each entry, sort, and rejoin.
func normalizeList(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := match.Normalize(p); v != "" {
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return strings.Join(values, "; ")
}

// StatusFor classifies one provider value against the local value. Pure: the
// whole comparison is deterministic given its inputs.
func StatusFor(kind FieldKind, local, providerValue string) model.FieldStatus {
	switch {
	case strings.TrimSpace(providerValue) == "":
		return model.StatusMissingProvider
	case strings.TrimSpace(local) == "":
		return model.StatusMissingLocal
	case valuesEqual(kind, local, providerValue):
		return model.StatusMatch
	default:
		return model.StatusDifferent
	}
}

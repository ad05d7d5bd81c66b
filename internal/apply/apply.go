// Package apply implements the explicit "use this provider value" actions.
// These are the only operations that move provider data into local state:
// scalar fields become overrides, parent links become canonical relationship
// edges, and multi-valued fields are regenerated as provider claims.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"kinsync/internal/compare"
	"kinsync/internal/identity"
	"kinsync/internal/match"
	"kinsync/internal/model"
	"kinsync/internal/store"
)

// ValidationError rejects malformed or inapplicable input before anything is
// written.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// Service performs apply operations against the store.
type Service struct {
	store    *store.Store
	resolver *identity.Resolver
	schema   compare.Schema
	log      *slog.Logger
}

// NewService creates an apply service.
func NewService(s *store.Store, resolver *identity.Resolver, schema compare.Schema, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, resolver: resolver, schema: schema, log: log}
}

// ApplyProviderValue writes the provider's latest cached value for a scalar
// field as an override. The canonical record itself is never mutated.
// Applying the same cached value twice yields the same override row.
//
// Parent fields are graph edges and must go through ApplyProviderParent;
// multi-valued fields are claims and go through SyncClaims.
func (s *Service) ApplyProviderValue(ctx context.Context, personID int64, field string, provider model.Provider) (*model.Override, error) {
	spec, err := s.fieldSpec(field)
	if err != nil {
		return nil, err
	}

	rec, err := s.cachedRecord(ctx, personID, provider)
	if err != nil {
		return nil, err
	}

	value := strings.TrimSpace(rec.Field(field))
	if value == "" {
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("provider %s has no cached value", provider)}
	}
	if spec.Kind == compare.KindDate {
		if _, ok := match.ParseDate(value); !ok {
			return nil, &ValidationError{Field: field, Value: value, Reason: "not a recognizable date"}
		}
	}

	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	original, err := compare.CanonicalValue(ctx, s.store, person, field)
	if err != nil {
		return nil, err
	}

	ov := &model.Override{
		PersonID:   personID,
		EntityType: spec.EntityType,
		Field:      field,
		Value:      value,
		Original:   original,
	}
	if err := s.store.UpsertOverride(ctx, ov); err != nil {
		return nil, err
	}
	s.log.Info("applied provider value",
		"person", personID, "field", field, "provider", provider, "value", value)
	return s.store.ActiveOverride(ctx, personID, spec.EntityType, field)
}

// ApplyProviderParent creates or updates the canonical parent edge from the
// provider's cached parent reference. When the referenced external id is not
// yet mapped, a new canonical person is created from the display name and
// the mapping registered. Re-applying the same reference is a no-op.
func (s *Service) ApplyProviderParent(ctx context.Context, personID int64, role model.Role, provider model.Provider) (int64, error) {
	if !role.IsParent() {
		return 0, &ValidationError{Field: string(role), Reason: "not a parent role"}
	}

	rec, err := s.cachedRecord(ctx, personID, provider)
	if err != nil {
		return 0, err
	}
	ref, ok := rec.Parent(role)
	if !ok {
		return 0, &ValidationError{Field: string(role), Reason: fmt.Sprintf("provider %s record has no cached %s reference", provider, role)}
	}

	parentID, err := s.parentFor(ctx, provider, ref)
	if err != nil {
		return 0, err
	}
	if err := s.store.SetParent(ctx, personID, role, parentID); err != nil {
		return 0, err
	}
	s.log.Info("applied provider parent",
		"person", personID, "role", role, "provider", provider, "parent", parentID)
	return parentID, nil
}

// parentFor maps a parent reference to a canonical person, creating one when
// the external id is unknown.
func (s *Service) parentFor(ctx context.Context, provider model.Provider, ref model.ParentReference) (int64, error) {
	existing, err := s.store.ActiveIdentityByExternalID(ctx, provider, ref.ExternalID)
	if err == nil {
		return existing.PersonID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	name := strings.TrimSpace(ref.DisplayName)
	if name == "" {
		return 0, &ValidationError{Field: string(ref.Role), Reason: "parent reference has no display name"}
	}
	created, err := s.store.CreatePerson(ctx, &model.Person{Name: name})
	if err != nil {
		return 0, err
	}
	if _, err := s.resolver.Register(ctx, created.ID, provider, ref.ExternalID, ref.URL, 1.0); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// SyncClaims regenerates the provider-sourced alias and occupation claims
// for a person from the latest cached snapshot. User-sourced claims are
// never touched.
func (s *Service) SyncClaims(ctx context.Context, personID int64, provider model.Provider) error {
	rec, err := s.cachedRecord(ctx, personID, provider)
	if err != nil {
		return err
	}
	for field, predicate := range map[string]string{
		"aliases":     model.PredicateAlias,
		"occupations": model.PredicateOccupation,
	} {
		values := splitList(rec.Field(field))
		if err := s.store.ReplaceProviderClaims(ctx, personID, provider, predicate, values); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) fieldSpec(field string) (compare.FieldSpec, error) {
	for _, spec := range s.schema.Fields {
		if spec.Name != field {
			continue
		}
		switch {
		case field == "father_name" || field == "mother_name":
			return compare.FieldSpec{}, &ValidationError{Field: field, Reason: "parents are relationship edges; use apply-parent"}
		case spec.Kind == compare.KindList:
			return compare.FieldSpec{}, &ValidationError{Field: field, Reason: "multi-valued field; use claim sync"}
		case field == "children_count":
			return compare.FieldSpec{}, &ValidationError{Field: field, Reason: "derived from child edges, not overridable"}
		}
		return spec, nil
	}
	return compare.FieldSpec{}, &ValidationError{Field: field, Reason: "not a comparable field"}
}

func (s *Service) cachedRecord(ctx context.Context, personID int64, provider model.Provider) (*model.ProviderRecord, error) {
	ident, err := s.resolver.Resolve(ctx, personID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("apply: person %d has no identity on %s", personID, provider)
	}
	if err != nil {
		return nil, err
	}
	rec, err := s.store.LatestSnapshot(ctx, provider, ident.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("apply: no cached record for person %d on %s; refresh first", personID, provider)
	}
	return rec, err
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}

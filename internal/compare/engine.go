// Package compare produces the field-by-field diff between a person's local
// facts (override-if-present, else canonical) and every linked provider's
// cached snapshot. Comparison never fetches: refreshing provider data is a
// separate, explicit operation.
package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"kinsync/internal/identity"
	"kinsync/internal/model"
	"kinsync/internal/scrape"
	"kinsync/internal/store"
)

// Engine computes comparison results and performs explicit refreshes.
type Engine struct {
	store    *store.Store
	drivers  scrape.Registry
	resolver *identity.Resolver
	schema   Schema
	log      *slog.Logger
}

// NewEngine creates a comparison engine over the given schema.
func NewEngine(s *store.Store, drivers scrape.Registry, resolver *identity.Resolver, schema Schema, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, drivers: drivers, resolver: resolver, schema: schema, log: log}
}

// Compare returns one result per schema field, covering every configured
// provider plus any the person is linked on. Providers without a cached
// snapshot report missing_provider for every field; Compare never fetches.
func (e *Engine) Compare(ctx context.Context, personID int64) ([]model.ComparisonResult, error) {
	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}

	providers, err := e.comparableProviders(ctx, personID)
	if err != nil {
		return nil, err
	}

	// A provider the person is not linked on, or one linked but never
	// fetched, contributes a nil record: every field reads missing_provider.
	records := make(map[model.Provider]*model.ProviderRecord, len(providers))
	for _, provider := range providers {
		ident, err := e.resolver.Resolve(ctx, personID, provider)
		if errors.Is(err, store.ErrNotFound) {
			records[provider] = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		rec, err := e.store.LatestSnapshot(ctx, provider, ident.ExternalID)
		if errors.Is(err, store.ErrNotFound) {
			records[provider] = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		records[provider] = rec
	}

	results := make([]model.ComparisonResult, 0, len(e.schema.Fields))
	for _, spec := range e.schema.Fields {
		local, overridden, err := e.localValue(ctx, person, spec)
		if err != nil {
			return nil, err
		}
		result := model.ComparisonResult{
			Field:      spec.Name,
			EntityType: spec.EntityType,
			Local:      local,
			Overridden: overridden,
			Providers:  make(map[model.Provider]model.ProviderValue, len(providers)),
		}
		for _, provider := range providers {
			value := records[provider].Field(spec.Name)
			result.Providers[provider] = model.ProviderValue{
				Value:  value,
				Status: StatusFor(spec.Kind, local, value),
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// comparableProviders is the union of configured drivers and providers the
// person is actively linked on, sorted for stable output.
func (e *Engine) comparableProviders(ctx context.Context, personID int64) ([]model.Provider, error) {
	seen := make(map[model.Provider]bool, len(e.drivers))
	for provider := range e.drivers {
		seen[provider] = true
	}
	linked, err := e.store.LinkedProviders(ctx, personID)
	if err != nil {
		return nil, err
	}
	for _, provider := range linked {
		seen[provider] = true
	}
	providers := make([]model.Provider, 0, len(seen))
	for provider := range seen {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers, nil
}

// localValue computes the local side of a field: the active override when
// one exists, else the canonical value.
func (e *Engine) localValue(ctx context.Context, person *model.Person, spec FieldSpec) (string, bool, error) {
	ov, err := e.store.ActiveOverride(ctx, person.ID, spec.EntityType, spec.Name)
	if err == nil {
		return ov.Value, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}

	canonical, err := CanonicalValue(ctx, e.store, person, spec.Name)
	return canonical, false, err
}

// CanonicalValue extracts a schema field's canonical value for a person:
// scalar columns directly, parent names and children counts through
// relationship edges, aliases and occupations through claims.
func CanonicalValue(ctx context.Context, s *store.Store, person *model.Person, field string) (string, error) {
	switch field {
	case "name":
		return person.Name, nil
	case "birth_date":
		return person.BirthDate, nil
	case "birth_place":
		return person.BirthPlace, nil
	case "death_date":
		return person.DeathDate, nil
	case "death_place":
		return person.DeathPlace, nil
	case "burial_date":
		return person.BurialDate, nil
	case "burial_place":
		return person.BurialPlace, nil
	case "father_name":
		return parentName(ctx, s, person.ID, model.RoleFather)
	case "mother_name":
		return parentName(ctx, s, person.ID, model.RoleMother)
	case "children_count":
		n, err := s.CountRelatives(ctx, person.ID, model.RoleChild)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", nil
		}
		return strconv.Itoa(n), nil
	case "aliases":
		return claimValues(ctx, s, person.ID, model.PredicateAlias)
	case "occupations":
		return claimValues(ctx, s, person.ID, model.PredicateOccupation)
	default:
		return "", fmt.Errorf("compare: unknown field %q in schema", field)
	}
}

func parentName(ctx context.Context, s *store.Store, personID int64, role model.Role) (string, error) {
	parent, err := s.Parent(ctx, personID, role)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return parent.Name, nil
}

func claimValues(ctx context.Context, s *store.Store, personID int64, predicate string) (string, error) {
	claims, err := s.Claims(ctx, personID, predicate)
	if err != nil {
		return "", err
	}
	values := make([]string, 0, len(claims))
	for _, c := range claims {
		values = append(values, c.Value)
	}
	sort.Strings(values)
	return strings.Join(values, "; "), nil
}

// Refresh fetches the person's record from one provider and writes a new
// snapshot. It never touches the canonical record or overrides: moving a
// provider value into local state requires an explicit apply. A provider-side
// redirect is absorbed into the identity mapping and the fetch retried once
// against the new id.
func (e *Engine) Refresh(ctx context.Context, personID int64, provider model.Provider) (*model.ProviderRecord, error) {
	ident, err := e.resolver.Resolve(ctx, personID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("refresh: person %d has no identity on %s", personID, provider)
	}
	if err != nil {
		return nil, err
	}

	driver, err := e.drivers.Driver(provider)
	if err != nil {
		return nil, err
	}

	rec, err := driver.FetchRecord(ctx, ident.ExternalID)
	if redirect, ok := scrape.AsRedirect(err); ok {
		e.log.Info("absorbing provider redirect",
			"provider", provider, "old", redirect.OldExternalID, "new", redirect.NewExternalID)
		if _, err := e.resolver.AbsorbRedirect(ctx, provider, redirect.OldExternalID, redirect.NewExternalID); err != nil {
			return nil, err
		}
		rec, err = driver.FetchRecord(ctx, redirect.NewExternalID)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := e.store.PutSnapshot(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

package apply

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kinsync/internal/compare"
	"kinsync/internal/identity"
	"kinsync/internal/model"
	"kinsync/internal/store"
)

func setup(t *testing.T) (*Service, *store.Store, *identity.Resolver) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kinsync.db"), time.Minute)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	resolver := identity.NewResolver(s)
	return NewService(s, resolver, compare.DefaultSchema(), nil), s, resolver
}

func linkWithSnapshot(t *testing.T, s *store.Store, r *identity.Resolver, personID int64, rec *model.ProviderRecord) {
	t.Helper()
	ctx := context.Background()
	if _, err := r.Register(ctx, personID, rec.Provider, rec.ExternalID, "", 1); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.FetchedAt = time.Now().UTC()
	if err := s.PutSnapshot(ctx, rec); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
}

// Applying the same cached value twice produces the same single override row.
func TestApplyProviderValue_Idempotent(t *testing.T) {
	svc, s, r := setup(t)
	ctx := context.Background()

	p, _ := s.CreatePerson(ctx, &model.Person{Name: "P", BirthDate: "1847"})
	linkWithSnapshot(t, s, r, p.ID, &model.ProviderRecord{
		Provider: "geni", ExternalID: "g-1",
		Fields: map[string]string{"birth_date": "12 Mar 1847"},
	})

	first, err := svc.ApplyProviderValue(ctx, p.ID, "birth_date", "geni")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	second, err := svc.ApplyProviderValue(ctx, p.ID, "birth_date", "geni")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if first.Value != "12 Mar 1847" || second.Value != first.Value {
		t.Errorf("unexpected override values: %q then %q", first.Value, second.Value)
	}
	if second.Original != "1847" {
		t.Errorf("original canonical value must be preserved, got %q", second.Original)
	}
	overrides, _ := s.Overrides(ctx, p.ID)
	if len(overrides) != 1 {
		t.Errorf("expected one override row, got %d", len(overrides))
	}

	// Canonical record untouched throughout.
	after, _ := s.GetPerson(ctx, p.ID)
	if after.BirthDate != "1847" {
		t.Errorf("apply must not mutate the canonical record: %+v", after)
	}
}

func TestApplyProviderValue_Validation(t *testing.T) {
	svc, s, r := setup(t)
	ctx := context.Background()

	p, _ := s.CreatePerson(ctx, &model.Person{Name: "P"})
	linkWithSnapshot(t, s, r, p.ID, &model.ProviderRecord{
		Provider: "geni", ExternalID: "g-1",
		Fields: map[string]string{"birth_date": "sometime long ago", "father_name": "X"},
	})

	cases := []struct {
		field  string
		reason string
	}{
		{"birth_date", "malformed date must be rejected before write"},
		{"father_name", "parent fields are edges, not overrides"},
		{"aliases", "multi-valued fields are claims"},
		{"children_count", "derived field is not overridable"},
		{"no_such_field", "unknown field"},
		{"death_date", "no cached value"},
	}
	for _, c := range cases {
		_, err := svc.ApplyProviderValue(ctx, p.ID, c.field, "geni")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: %s: expected ValidationError, got %v", c.field, c.reason, err)
		}
	}

	if overrides, _ := s.Overrides(ctx, p.ID); len(overrides) != 0 {
		t.Errorf("rejected applies must write nothing, got %+v", overrides)
	}
}

func TestApplyProviderParent_CreatesAndLinks(t *testing.T) {
	svc, s, r := setup(t)
	ctx := context.Background()

	p, _ := s.CreatePerson(ctx, &model.Person{Name: "Child"})
	linkWithSnapshot(t, s, r, p.ID, &model.ProviderRecord{
		Provider: "geni", ExternalID: "g-1",
		Parents: []model.ParentReference{
			{Role: model.RoleFather, ExternalID: "f-77", DisplayName: "Petras Petrauskas"},
		},
	})

	parentID, err := svc.ApplyProviderParent(ctx, p.ID, model.RoleFather, "geni")
	if err != nil {
		t.Fatalf("apply parent: %v", err)
	}

	father, err := s.Parent(ctx, p.ID, model.RoleFather)
	if err != nil {
		t.Fatalf("get father: %v", err)
	}
	if father.ID != parentID || father.Name != "Petras Petrauskas" {
		t.Errorf("unexpected father: %+v", father)
	}
	ident, err := r.Resolve(ctx, parentID, "geni")
	if err != nil || ident.ExternalID != "f-77" {
		t.Errorf("new parent should be registered on provider: %+v err=%v", ident, err)
	}

	// Idempotent: re-apply resolves to the same canonical parent.
	again, err := svc.ApplyProviderParent(ctx, p.ID, model.RoleFather, "geni")
	if err != nil {
		t.Fatalf("re-apply parent: %v", err)
	}
	if again != parentID {
		t.Errorf("re-apply created a different parent: %d vs %d", again, parentID)
	}
}

func TestApplyProviderParent_ReusesExistingMapping(t *testing.T) {
	svc, s, r := setup(t)
	ctx := context.Background()

	p, _ := s.CreatePerson(ctx, &model.Person{Name: "Child"})
	existing, _ := s.CreatePerson(ctx, &model.Person{Name: "Known Father"})
	if _, err := r.Register(ctx, existing.ID, "geni", "f-77", "", 1); err != nil {
		t.Fatalf("register existing: %v", err)
	}
	linkWithSnapshot(t, s, r, p.ID, &model.ProviderRecord{
		Provider: "geni", ExternalID: "g-1",
		Parents: []model.ParentReference{
			{Role: model.RoleFather, ExternalID: "f-77", DisplayName: "Petras"},
		},
	})

	parentID, err := svc.ApplyProviderParent(ctx, p.ID, model.RoleFather, "geni")
	if err != nil {
		t.Fatalf("apply parent: %v", err)
	}
	if parentID != existing.ID {
		t.Errorf("should link the already-mapped person %d, got %d", existing.ID, parentID)
	}
}

func TestApplyProviderParent_MissingReference(t *testing.T) {
	svc, s, r := setup(t)
	ctx := context.Background()

	p, _ := s.CreatePerson(ctx, &model.Person{Name: "Child"})
	linkWithSnapshot(t, s, r, p.ID, &model.ProviderRecord{
		Provider: "geni", ExternalID: "g-1",
		Fields: map[string]string{"name": "Child"},
	})

	_, err := svc.ApplyProviderParent(ctx, p.ID, model.RoleMother, "geni")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for missing reference, got %v", err)
	}
}

func TestSyncClaims_RegeneratesProviderClaims(t *testing.T) {
	svc, s, r := setup(t)
	ctx := context.Background()

	p, _ := s.CreatePerson(ctx, &model.Person{Name: "P"})
	_, _ = s.AddClaim(ctx, &model.Claim{PersonID: p.ID, Predicate: model.PredicateAlias, Value: "Mine", Source: model.SourceUser})
	linkWithSnapshot(t, s, r, p.ID, &model.ProviderRecord{
		Provider: "geni", ExternalID: "g-1",
		Fields: map[string]string{"aliases": "John; Johann", "occupations": "farmer"},
	})

	if err := svc.SyncClaims(ctx, p.ID, "geni"); err != nil {
		t.Fatalf("sync claims: %v", err)
	}

	aliases, _ := s.Claims(ctx, p.ID, model.PredicateAlias)
	if len(aliases) != 3 {
		t.Fatalf("expected user claim + 2 provider aliases, got %d", len(aliases))
	}
	if aliases[0].Value != "Mine" || aliases[0].Source != model.SourceUser {
		t.Errorf("user claim must survive: %+v", aliases[0])
	}
	occupations, _ := s.Claims(ctx, p.ID, model.PredicateOccupation)
	if len(occupations) != 1 || occupations[0].Value != "farmer" {
		t.Errorf("unexpected occupations: %+v", occupations)
	}
}

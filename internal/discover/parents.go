// Package discover extends identity coverage: it walks provider records for
// parent references, matches them to canonical parents by role and name, and
// registers the resulting external identities — one person at a time, or as
// a breadth-first traversal over whole ancestries.
package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kinsync/internal/identity"
	"kinsync/internal/match"
	"kinsync/internal/model"
	"kinsync/internal/scrape"
	"kinsync/internal/store"
)

// NoParentDataMessage is the explanatory message returned when a provider
// record carries no machine-extractable parent references.
const NoParentDataMessage = "no extractable parent data"

// NoCanonicalParentsMessage is returned when the provider record does list
// parents but the person has no canonical parent edges to attach them to.
// This is the normal end of a branch, not a failure.
const NoCanonicalParentsMessage = "no canonical parents to attach to"

// Discoverer runs parent and ancestor discovery.
type Discoverer struct {
	store    *store.Store
	resolver *identity.Resolver
	drivers  scrape.Registry
	limiter  *Limiter
	cfg      *model.Config
	registry *Registry
	log      *slog.Logger
}

// NewDiscoverer wires a discoverer.
func NewDiscoverer(s *store.Store, resolver *identity.Resolver, drivers scrape.Registry, cfg *model.Config, log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{
		store:    s,
		resolver: resolver,
		drivers:  drivers,
		limiter:  NewLimiter(cfg),
		cfg:      cfg,
		registry: NewRegistry(),
		log:      log,
	}
}

// ParentLink is one registered parent mapping.
type ParentLink struct {
	Role       model.Role `json:"role"`
	ParentID   int64      `json:"parent_person_id"`
	ParentName string     `json:"parent_name"`
	Confidence float64    `json:"confidence"`
}

// Candidate is a parent reference that was found but deliberately not
// registered: low confidence, ambiguous, or conflicting.
type Candidate struct {
	Role        model.Role `json:"role"`
	ExternalID  string     `json:"external_id"`
	DisplayName string     `json:"display_name"`
	Confidence  float64    `json:"confidence"`
	Reason      string     `json:"reason"`
}

// ParentResult reports one person's parent discovery.
type ParentResult struct {
	Discovered []ParentLink `json:"discovered"`
	Reported   []Candidate  `json:"reported,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// DiscoverParents matches the provider record's parent references to the
// person's canonical parents and registers confident matches. The person
// must already hold an active identity on the provider, and matching is
// conservative: a reference is registered only when its display name
// clearly matches the canonical parent of the same role and no other
// canonical parent matches it as well.
func (d *Discoverer) DiscoverParents(ctx context.Context, personID int64, provider model.Provider) (*ParentResult, error) {
	ident, err := d.resolver.Resolve(ctx, personID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("discover: person %d has no identity on %s", personID, provider)
	}
	if err != nil {
		return nil, err
	}

	driver, err := d.drivers.Driver(provider)
	if err != nil {
		return nil, err
	}
	if !scrape.SupportsParentExtraction(driver) {
		return &ParentResult{Message: NoParentDataMessage}, nil
	}

	rec, err := d.record(ctx, driver, provider, ident.ExternalID)
	if err != nil {
		return nil, err
	}
	if len(rec.Parents) == 0 {
		return &ParentResult{Message: NoParentDataMessage}, nil
	}

	parents, err := d.canonicalParents(ctx, personID)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return &ParentResult{Message: NoCanonicalParentsMessage}, nil
	}

	result := &ParentResult{}
	for _, ref := range rec.Parents {
		d.matchReference(ctx, provider, ref, parents, result)
	}
	return result, nil
}

// record reuses the latest cached snapshot when it already carries parent
// references; otherwise it fetches fresh, absorbing a redirect if the
// provider merged the record.
func (d *Discoverer) record(ctx context.Context, driver scrape.Driver, provider model.Provider, externalID string) (*model.ProviderRecord, error) {
	cached, err := d.store.LatestSnapshot(ctx, provider, externalID)
	if err == nil && len(cached.Parents) > 0 {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := d.limiter.Wait(ctx, provider); err != nil {
		return nil, err
	}
	rec, err := driver.FetchRecord(ctx, externalID)
	if redirect, ok := scrape.AsRedirect(err); ok {
		if _, err := d.resolver.AbsorbRedirect(ctx, provider, redirect.OldExternalID, redirect.NewExternalID); err != nil {
			return nil, err
		}
		if err := d.limiter.Wait(ctx, provider); err != nil {
			return nil, err
		}
		rec, err = driver.FetchRecord(ctx, redirect.NewExternalID)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := d.store.PutSnapshot(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (d *Discoverer) canonicalParents(ctx context.Context, personID int64) (map[model.Role]*model.Person, error) {
	parents := make(map[model.Role]*model.Person, 2)
	for _, role := range model.ParentRoles {
		parent, err := d.store.Parent(ctx, personID, role)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		parents[role] = parent
	}
	return parents, nil
}

// matchReference scores one provider reference against the canonical
// parents. The same-role parent must be the best match among all canonical
// parents: if the reference's name fits the other parent better, or two
// parents fit equally, the link is ambiguous and only reported.
func (d *Discoverer) matchReference(ctx context.Context, provider model.Provider, ref model.ParentReference, parents map[model.Role]*model.Person, result *ParentResult) {
	target, ok := parents[ref.Role]
	if !ok {
		result.Reported = append(result.Reported, Candidate{
			Role: ref.Role, ExternalID: ref.ExternalID, DisplayName: ref.DisplayName,
			Reason: fmt.Sprintf("no canonical %s to attach to", ref.Role),
		})
		return
	}

	var names []string
	targetIdx := -1
	for _, role := range model.ParentRoles {
		if parent, ok := parents[role]; ok {
			if role == ref.Role {
				targetIdx = len(names)
			}
			names = append(names, parent.Name)
		}
	}

	bestIdx, score, tie := match.BestCandidate(ref.DisplayName, names, 0.1)
	switch {
	case score < d.cfg.Match.MinConfidence:
		result.Reported = append(result.Reported, Candidate{
			Role: ref.Role, ExternalID: ref.ExternalID, DisplayName: ref.DisplayName,
			Confidence: score, Reason: "low confidence",
		})
		return
	case bestIdx != targetIdx || tie:
		result.Reported = append(result.Reported, Candidate{
			Role: ref.Role, ExternalID: ref.ExternalID, DisplayName: ref.DisplayName,
			Confidence: score, Reason: "ambiguous match",
		})
		return
	}

	if _, err := d.resolver.Register(ctx, target.ID, provider, ref.ExternalID, ref.URL, score); err != nil {
		var conflict *identity.ConflictError
		if errors.As(err, &conflict) {
			d.log.Warn("identity conflict during discovery",
				"provider", provider, "external_id", ref.ExternalID,
				"claimed_by", conflict.ClaimedBy, "requested_for", conflict.RequestedFor)
			result.Reported = append(result.Reported, Candidate{
				Role: ref.Role, ExternalID: ref.ExternalID, DisplayName: ref.DisplayName,
				Confidence: score, Reason: conflict.Error(),
			})
			return
		}
		result.Reported = append(result.Reported, Candidate{
			Role: ref.Role, ExternalID: ref.ExternalID, DisplayName: ref.DisplayName,
			Confidence: score, Reason: err.Error(),
		})
		return
	}

	result.Discovered = append(result.Discovered, ParentLink{
		Role:       ref.Role,
		ParentID:   target.ID,
		ParentName: target.Name,
		Confidence: score,
	})
}

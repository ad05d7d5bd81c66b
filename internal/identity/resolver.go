// Package identity maintains the mapping between canonical persons and their
// identifiers on each provider, including absorption of provider-side record
// merges and redirects.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kinsync/internal/model"
	"kinsync/internal/store"
)

// ConflictError is returned when a registration would make two different
// canonical persons claim the same (provider, external id) as active. That
// ambiguity needs manual resolution; it is fatal to the one registration,
// not to the traversal that attempted it.
type ConflictError struct {
	Provider     model.Provider
	ExternalID   string
	ClaimedBy    int64
	RequestedFor int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity conflict: %s id %s is active for person %d, refusing to register it for person %d",
		e.Provider, e.ExternalID, e.ClaimedBy, e.RequestedFor)
}

// Resolver manages external identities on top of the store. All mutations go
// through a single mutex: registrations from concurrent discoveries must not
// interleave between the conflict check and the write. The store's partial
// unique indexes are the backstop should anything slip past.
type Resolver struct {
	store *store.Store
	mu    sync.Mutex
}

// NewResolver creates a resolver backed by the store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the active mapping for (person, provider), or
// store.ErrNotFound when the person is not linked there.
func (r *Resolver) Resolve(ctx context.Context, personID int64, provider model.Provider) (*model.ExternalIdentity, error) {
	return r.store.ActiveIdentity(ctx, personID, provider)
}

// Register creates or updates the active mapping for (person, provider).
//
// Re-registering the current external id refreshes url and confidence and is
// idempotent. Registering a different external id demotes the current
// mapping to historical and activates the new one — this is how provider
// merges and redirects are absorbed. Registering an external id that is
// active for another person fails with ConflictError.
func (r *Resolver) Register(ctx context.Context, personID int64, provider model.Provider, externalID, url string, confidence float64) (*model.ExternalIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	claimed, err := r.store.ActiveIdentityByExternalID(ctx, provider, externalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if claimed != nil && claimed.PersonID != personID {
		return nil, &ConflictError{
			Provider:     provider,
			ExternalID:   externalID,
			ClaimedBy:    claimed.PersonID,
			RequestedFor: personID,
		}
	}

	current, err := r.store.ActiveIdentity(ctx, personID, provider)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if current != nil {
		if current.ExternalID == externalID {
			if err := r.store.UpdateIdentityMeta(ctx, current.ID, url, confidence); err != nil {
				return nil, err
			}
			return r.store.ActiveIdentity(ctx, personID, provider)
		}
		if err := r.store.DeactivateIdentity(ctx, current.ID); err != nil {
			return nil, err
		}
	}

	return r.store.InsertIdentity(ctx, &model.ExternalIdentity{
		PersonID:   personID,
		Provider:   provider,
		ExternalID: externalID,
		URL:        url,
		Confidence: confidence,
	})
}

// HistoryOf returns every mapping ever active for (person, provider), oldest
// first, used to answer "this id used to mean this person" during redirect
// handling.
func (r *Resolver) HistoryOf(ctx context.Context, personID int64, provider model.Provider) ([]model.ExternalIdentity, error) {
	return r.store.IdentityHistory(ctx, personID, provider)
}

// AbsorbRedirect remaps whoever currently owns oldID to newID after the
// provider reported a merge. It returns the affected person id.
func (r *Resolver) AbsorbRedirect(ctx context.Context, provider model.Provider, oldID, newID string) (int64, error) {
	owner, err := r.store.ActiveIdentityByExternalID(ctx, provider, oldID)
	if err != nil {
		return 0, fmt.Errorf("absorb redirect %s -> %s: %w", oldID, newID, err)
	}
	if _, err := r.Register(ctx, owner.PersonID, provider, newID, owner.URL, owner.Confidence); err != nil {
		return 0, err
	}
	return owner.PersonID, nil
}

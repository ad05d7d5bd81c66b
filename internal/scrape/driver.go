// Package scrape defines the provider driver contract the reconciliation
// engine consumes, plus a reference HTTP driver for providers whose records
// are reachable as selector-addressable pages. Concrete browser-automation
// drivers live outside this repo but satisfy the same interfaces.
package scrape

import (
	"context"
	"errors"
	"fmt"

	"kinsync/internal/model"
)

// Sentinel errors drivers report. ErrAuth aborts a running traversal since
// every subsequent fetch would fail the same way; ErrFetch skips the single
// person and the traversal continues.
var (
	ErrAuth     = errors.New("scrape: provider session expired or unauthorized")
	ErrNotFound = errors.New("scrape: record not found")
	ErrFetch    = errors.New("scrape: fetch failed")
)

// RedirectError indicates the provider merged or redirected the requested
// record into another one. Callers remap the identity to NewExternalID
// instead of treating the fetch as failed.
type RedirectError struct {
	OldExternalID string
	NewExternalID string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("scrape: record %s redirected to %s", e.OldExternalID, e.NewExternalID)
}

// AsRedirect unwraps a RedirectError if err carries one.
func AsRedirect(err error) (*RedirectError, bool) {
	var redirect *RedirectError
	if errors.As(err, &redirect) {
		return redirect, true
	}
	return nil, false
}

// Driver fetches raw records from one provider.
type Driver interface {
	Provider() model.Provider
	// FetchRecord retrieves the record for an external id. It may fail with
	// ErrAuth, ErrNotFound, a wrapped ErrFetch, or a RedirectError.
	FetchRecord(ctx context.Context, externalID string) (*model.ProviderRecord, error)
}

// ParentExtractor is the optional capability of extracting machine-readable
// parent references. Providers that only render parents as free text do not
// implement it.
type ParentExtractor interface {
	ExtractParentReferences(ctx context.Context, externalID string) ([]model.ParentReference, error)
}

// SupportsParentExtraction reports whether a driver can extract parent
// references, without relying on a failed call to find out.
func SupportsParentExtraction(d Driver) bool {
	_, ok := d.(ParentExtractor)
	return ok
}

// Registry holds the configured driver per provider.
type Registry map[model.Provider]Driver

// Driver returns the driver for a provider, or an error naming the provider
// when none is configured.
func (r Registry) Driver(p model.Provider) (Driver, error) {
	d, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("scrape: no driver configured for provider %q", p)
	}
	return d, nil
}

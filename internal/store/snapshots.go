package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"kinsync/internal/model"
)

func snapshotKey(provider model.Provider, externalID string) string {
	return string(provider) + "\x00" + externalID
}

// PutSnapshot writes a new immutable provider snapshot. Prior snapshots for
// the same (provider, external id) are superseded for reads but kept as
// history. The memory cache is updated so the next read is served hot.
func (s *Store) PutSnapshot(ctx context.Context, rec *model.ProviderRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (provider, external_id, fetched_at, url, payload)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Provider, rec.ExternalID, formatTime(rec.FetchedAt), rec.URL, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s/%s: %w", rec.Provider, rec.ExternalID, err)
	}
	s.snapshots.Set(snapshotKey(rec.Provider, rec.ExternalID), rec, gocache.DefaultExpiration)
	return nil
}

// LatestSnapshot returns the most recent snapshot for (provider, external
// id), or ErrNotFound when the record was never fetched. Reads hit the
// memory cache first.
func (s *Store) LatestSnapshot(ctx context.Context, provider model.Provider, externalID string) (*model.ProviderRecord, error) {
	if cached, found := s.snapshots.Get(snapshotKey(provider, externalID)); found {
		return cached.(*model.ProviderRecord), nil
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE provider = ? AND external_id = ?
		ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		provider, externalID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", provider, externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%s: %w", provider, externalID, err)
	}

	var rec model.ProviderRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot %s/%s: %w", provider, externalID, err)
	}
	s.snapshots.Set(snapshotKey(provider, externalID), &rec, gocache.DefaultExpiration)
	return &rec, nil
}

// SnapshotCount reports how many snapshots exist for (provider, external id).
// Re-fetches append rather than overwrite, so the count is fetch history.
func (s *Store) SnapshotCount(ctx context.Context, provider model.Provider, externalID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshots WHERE provider = ? AND external_id = ?",
		provider, externalID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots %s/%s: %w", provider, externalID, err)
	}
	return n, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinsync/internal/model"
)

const identityColumns = `id, person_id, provider, external_id, url, confidence,
	active, created_at, deactivated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*model.ExternalIdentity, error) {
	var ident model.ExternalIdentity
	var createdAt string
	var deactivatedAt sql.NullString
	var active int
	err := row.Scan(
		&ident.ID, &ident.PersonID, &ident.Provider, &ident.ExternalID,
		&ident.URL, &ident.Confidence, &active, &createdAt, &deactivatedAt,
	)
	if err != nil {
		return nil, err
	}
	ident.Active = active == 1
	ident.CreatedAt = parseTime(createdAt)
	if deactivatedAt.Valid {
		t := parseTime(deactivatedAt.String)
		ident.DeactivatedAt = &t
	}
	return &ident, nil
}

// ActiveIdentity returns the active mapping for (person, provider), or
// ErrNotFound when the person is not linked on that provider.
func (s *Store) ActiveIdentity(ctx context.Context, personID int64, provider model.Provider) (*model.ExternalIdentity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE person_id = ? AND provider = ? AND active = 1",
		personID, provider,
	)
	ident, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity of person %d on %s: %w", personID, provider, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get identity of person %d on %s: %w", personID, provider, err)
	}
	return ident, nil
}

// ActiveIdentityByExternalID reverse-resolves an active external id to its
// mapping, or ErrNotFound.
func (s *Store) ActiveIdentityByExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.ExternalIdentity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE provider = ? AND external_id = ? AND active = 1",
		provider, externalID,
	)
	ident, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s on %s: %w", externalID, provider, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reverse-resolve %s on %s: %w", externalID, provider, err)
	}
	return ident, nil
}

// IdentityHistory returns every mapping ever active for (person, provider),
// oldest first. Historical mappings record provider-side merges.
func (s *Store) IdentityHistory(ctx context.Context, personID int64, provider model.Provider) ([]model.ExternalIdentity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE person_id = ? AND provider = ? ORDER BY created_at, id",
		personID, provider,
	)
	if err != nil {
		return nil, fmt.Errorf("identity history of person %d on %s: %w", personID, provider, err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.ExternalIdentity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		history = append(history, *ident)
	}
	return history, rows.Err()
}

// InsertIdentity inserts a new active mapping. The partial unique indexes
// reject a second active mapping for the same (person, provider) or the same
// (provider, external id).
func (s *Store) InsertIdentity(ctx context.Context, ident *model.ExternalIdentity) (*model.ExternalIdentity, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (person_id, provider, external_id, url, confidence, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		ident.PersonID, ident.Provider, ident.ExternalID, ident.URL,
		ident.Confidence, formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert identity of person %d on %s: %w", ident.PersonID, ident.Provider, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+identityColumns+" FROM identities WHERE id = ?", id)
	return scanIdentity(row)
}

// DeactivateIdentity demotes a mapping to historical.
func (s *Store) DeactivateIdentity(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE identities SET active = 0, deactivated_at = ? WHERE id = ?",
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("deactivate identity %d: %w", id, err)
	}
	return nil
}

// UpdateIdentityMeta refreshes url and confidence on an existing mapping.
func (s *Store) UpdateIdentityMeta(ctx context.Context, id int64, url string, confidence float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE identities SET url = ?, confidence = ? WHERE id = ?",
		url, confidence, id,
	)
	if err != nil {
		return fmt.Errorf("update identity %d: %w", id, err)
	}
	return nil
}

// LinkedProviders returns the providers the person has an active mapping on.
func (s *Store) LinkedProviders(ctx context.Context, personID int64) ([]model.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT provider FROM identities WHERE person_id = ? AND active = 1 ORDER BY provider",
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("linked providers of person %d: %w", personID, err)
	}
	defer func() { _ = rows.Close() }()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

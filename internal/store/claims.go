package store

import (
	"context"
	"fmt"
	"time"

	"kinsync/internal/model"
)

const claimColumns = "id, person_id, predicate, value, source, provider, created_at"

// Claims lists a person's claims for one predicate, user-sourced first.
func (s *Store) Claims(ctx context.Context, personID int64, predicate string) ([]model.Claim, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+claimColumns+" FROM claims WHERE person_id = ? AND predicate = ? ORDER BY source DESC, id",
		personID, predicate,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s claims of person %d: %w", predicate, personID, err)
	}
	defer func() { _ = rows.Close() }()

	var claims []model.Claim
	for rows.Next() {
		var c model.Claim
		var createdAt string
		if err := rows.Scan(&c.ID, &c.PersonID, &c.Predicate, &c.Value, &c.Source, &c.Provider, &createdAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// AddClaim inserts a claim and returns its id.
func (s *Store) AddClaim(ctx context.Context, c *model.Claim) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (person_id, predicate, value, source, provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.PersonID, c.Predicate, c.Value, c.Source, c.Provider, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert %s claim of person %d: %w", c.Predicate, c.PersonID, err)
	}
	return res.LastInsertId()
}

// DeleteUserClaim removes one user-sourced claim by id. Provider-sourced
// claims are not individually deletable; they are regenerated on re-sync.
func (s *Store) DeleteUserClaim(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM claims WHERE id = ? AND source = ?", id, model.SourceUser,
	)
	if err != nil {
		return fmt.Errorf("delete claim %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete claim %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("claim %d: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceProviderClaims atomically swaps the provider-sourced claims for one
// (person, provider, predicate) with a fresh set derived from the latest
// snapshot. User-sourced claims are untouched.
func (s *Store) ReplaceProviderClaims(ctx context.Context, personID int64, provider model.Provider, predicate string, values []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace claims: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM claims WHERE person_id = ? AND provider = ? AND predicate = ? AND source = ?",
		personID, provider, predicate, model.SourceProvider,
	)
	if err != nil {
		return fmt.Errorf("clear provider claims: %w", err)
	}

	now := formatTime(time.Now())
	for _, value := range values {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO claims (person_id, predicate, value, source, provider, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			personID, predicate, value, model.SourceProvider, provider, now,
		)
		if err != nil {
			return fmt.Errorf("insert provider claim: %w", err)
		}
	}
	return tx.Commit()
}

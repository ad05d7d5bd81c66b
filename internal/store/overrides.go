package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinsync/internal/model"
)

const overrideColumns = "id, person_id, entity_type, field, value, original, created_at"

func scanOverride(row interface{ Scan(...any) error }) (*model.Override, error) {
	var ov model.Override
	var createdAt string
	err := row.Scan(&ov.ID, &ov.PersonID, &ov.EntityType, &ov.Field, &ov.Value, &ov.Original, &createdAt)
	if err != nil {
		return nil, err
	}
	ov.CreatedAt = parseTime(createdAt)
	return &ov, nil
}

// ActiveOverride returns the override for (person, entity type, field), or
// ErrNotFound.
func (s *Store) ActiveOverride(ctx context.Context, personID int64, entity model.EntityType, field string) (*model.Override, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+overrideColumns+" FROM overrides WHERE person_id = ? AND entity_type = ? AND field = ?",
		personID, entity, field,
	)
	ov, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("override %s/%s of person %d: %w", entity, field, personID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get override %s/%s of person %d: %w", entity, field, personID, err)
	}
	return ov, nil
}

// Overrides lists all overrides for a person.
func (s *Store) Overrides(ctx context.Context, personID int64) ([]model.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+overrideColumns+" FROM overrides WHERE person_id = ? ORDER BY entity_type, field",
		personID,
	)
	if err != nil {
		return nil, fmt.Errorf("list overrides of person %d: %w", personID, err)
	}
	defer func() { _ = rows.Close() }()

	var overrides []model.Override
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides = append(overrides, *ov)
	}
	return overrides, rows.Err()
}

// UpsertOverride writes an override. A repeat write for the same
// (person, entity type, field) updates the value in place and keeps the
// originally recorded canonical value and creation time, so applying the
// same value twice is idempotent and never duplicates rows.
func (s *Store) UpsertOverride(ctx context.Context, ov *model.Override) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overrides (person_id, entity_type, field, value, original, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id, entity_type, field) DO UPDATE SET value = excluded.value`,
		ov.PersonID, ov.EntityType, ov.Field, ov.Value, ov.Original, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert override %s/%s of person %d: %w", ov.EntityType, ov.Field, ov.PersonID, err)
	}
	return nil
}

// DeleteOverride removes an override, restoring canonical precedence.
func (s *Store) DeleteOverride(ctx context.Context, personID int64, entity model.EntityType, field string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM overrides WHERE person_id = ? AND entity_type = ? AND field = ?",
		personID, entity, field,
	)
	if err != nil {
		return fmt.Errorf("delete override %s/%s of person %d: %w", entity, field, personID, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinsync/internal/model"
)

const personColumns = `id, name, birth_date, birth_place, death_date, death_place,
	burial_date, burial_place, created_at, updated_at`

func scanPerson(row interface{ Scan(...any) error }) (*model.Person, error) {
	var p model.Person
	var createdAt, updatedAt string
	err := row.Scan(
		&p.ID, &p.Name,
		&p.BirthDate, &p.BirthPlace,
		&p.DeathDate, &p.DeathPlace,
		&p.BurialDate, &p.BurialPlace,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// CreatePerson inserts a new canonical person and returns it with its
// assigned id.
func (s *Store) CreatePerson(ctx context.Context, p *model.Person) (*model.Person, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO persons (
			name, birth_date, birth_place, death_date, death_place,
			burial_date, burial_place, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.BirthDate, p.BirthPlace, p.DeathDate, p.DeathPlace,
		p.BurialDate, p.BurialPlace, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetPerson(ctx, id)
}

// GetPerson loads a canonical person by id.
func (s *Store) GetPerson(ctx context.Context, id int64) (*model.Person, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+personColumns+" FROM persons WHERE id = ?", id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get person %d: %w", id, err)
	}
	return p, nil
}

// UpdatePerson writes a person's canonical scalar fields.
func (s *Store) UpdatePerson(ctx context.Context, p *model.Person) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE persons SET
			name = ?, birth_date = ?, birth_place = ?, death_date = ?,
			death_place = ?, burial_date = ?, burial_place = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.BirthDate, p.BirthPlace, p.DeathDate, p.DeathPlace,
		p.BurialDate, p.BurialPlace, formatTime(time.Now()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update person %d: %w", p.ID, err)
	}
	return nil
}

// ListPersonIDs returns every canonical person id in insertion order.
func (s *Store) ListPersonIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM persons ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan person id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetParent creates or replaces the single parent edge for a role. Parent
// roles are exclusive per person; spouse and child edges are not.
func (s *Store) SetParent(ctx context.Context, personID int64, role model.Role, relativeID int64) error {
	if !role.IsParent() {
		return fmt.Errorf("set parent: role %q is not a parent role", role)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relationships (person_id, relative_id, role) VALUES (?, ?, ?)
		ON CONFLICT(person_id, role) WHERE role IN ('father', 'mother')
		DO UPDATE SET relative_id = excluded.relative_id`,
		personID, relativeID, role,
	)
	if err != nil {
		return fmt.Errorf("set %s of person %d: %w", role, personID, err)
	}
	return nil
}

// AddRelationship inserts a non-parent edge. Duplicate edges are ignored.
func (s *Store) AddRelationship(ctx context.Context, personID int64, role model.Role, relativeID int64) error {
	if !role.Valid() {
		return fmt.Errorf("add relationship: unknown role %q", role)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO relationships (person_id, relative_id, role) VALUES (?, ?, ?)`,
		personID, relativeID, role,
	)
	if err != nil {
		return fmt.Errorf("add %s edge for person %d: %w", role, personID, err)
	}
	return nil
}

// Parent returns the canonical parent for a role, or ErrNotFound when the
// person has no edge for that role.
func (s *Store) Parent(ctx context.Context, personID int64, role model.Role) (*model.Person, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons
		WHERE id = (SELECT relative_id FROM relationships WHERE person_id = ? AND role = ?)`,
		personID, role,
	)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s of person %d: %w", role, personID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s of person %d: %w", role, personID, err)
	}
	return p, nil
}

// CountRelatives counts edges of a role for a person.
func (s *Store) CountRelatives(ctx context.Context, personID int64, role model.Role) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM relationships WHERE person_id = ? AND role = ?",
		personID, role,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s edges of person %d: %w", role, personID, err)
	}
	return n, nil
}

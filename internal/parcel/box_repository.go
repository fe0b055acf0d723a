package parcel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BoxRepository persists locker units. Boxes are static reference data
// and have no state transitions.
type BoxRepository struct {
	db *sql.DB
}

// NewBoxRepository creates a SQLite-backed box repository.
func NewBoxRepository(db *sql.DB) *BoxRepository {
	return &BoxRepository{db: db}
}

// GetByID retrieves a box by its numeric identifier.
func (r *BoxRepository) GetByID(ctx context.Context, id int64) (*Box, error) {
	var b Box
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, location, created_at FROM boxes WHERE id = ?", id,
	).Scan(&b.ID, &b.Name, &b.Location, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning box: %w", ErrTransient, err)
	}

	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &b, nil
}

// List returns all boxes ordered by id.
func (r *BoxRepository) List(ctx context.Context) ([]Box, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, location, created_at FROM boxes ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: listing boxes: %w", ErrTransient, err)
	}
	defer rows.Close()

	var boxes []Box
	for rows.Next() {
		var b Box
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &b.Location, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scanning box: %w", ErrTransient, err)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		boxes = append(boxes, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating boxes: %w", ErrTransient, err)
	}

	if boxes == nil {
		boxes = []Box{}
	}
	return boxes, nil
}

// Create inserts a box. Used by provisioning tooling and tests.
func (r *BoxRepository) Create(ctx context.Context, b *Box) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO boxes (name, location, created_at) VALUES (?, ?, ?)",
		b.Name, b.Location, b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: creating box: %w", ErrTransient, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: creating box: %w", ErrTransient, err)
	}
	b.ID = id
	return nil
}

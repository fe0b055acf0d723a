package parcel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository persists parcels and boxes in SQLite and executes every
// state transition as a single atomic read-modify-write transaction.
//
// The occupancy and idempotency checks live inside the transaction so
// concurrent duplicate triggers (the HTTP path and the bus listener
// firing for the same physical delivery) cannot interleave between
// check and mutation.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a SQLite-backed parcel repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const parcelColumns = "id, name, box_id, owner_id, is_delivered, delivered_at, collected_at, created_at"

// GetByID retrieves a parcel by its tracking identifier.
func (r *Repository) GetByID(ctx context.Context, id string) (*Parcel, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+parcelColumns+" FROM parcels WHERE id = ?", id)
	return scanParcelFrom(row)
}

// ClaimOwner registers a parcel to a user.
//
// Returns the parcel and whether it was already registered to the same
// user (idempotent success). A parcel registered to a different user
// returns ErrConflict; an unknown tracking id returns ErrNotFound.
// The optional name is stored when the claim succeeds.
func (r *Repository) ClaimOwner(ctx context.Context, id string, userID int64, name string) (*Parcel, bool, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	p, err := loadParcelTx(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	if p.OwnerID != nil {
		if *p.OwnerID == userID {
			return p, true, nil
		}
		return nil, false, fmt.Errorf("%w: parcel %s is registered to another user", ErrConflict, id)
	}

	if name == "" {
		name = p.Name
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE parcels SET owner_id = ?, name = ? WHERE id = ?",
		userID, name, id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: claiming parcel: %w", ErrTransient, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: committing claim: %w", ErrTransient, err)
	}

	p.OwnerID = &userID
	p.Name = name
	return p, false, nil
}

// MarkDelivered transitions a parcel to the delivered state.
//
// The transition is idempotent: a parcel already delivered returns
// already=true with no mutation. A delivery into a box occupied by a
// different delivered, uncollected parcel returns *OccupiedError.
func (r *Repository) MarkDelivered(ctx context.Context, id string) (*Parcel, bool, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	p, err := loadParcelTx(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	if p.IsDelivered {
		return p, true, nil
	}

	// The box is a single-slot resource: a second delivery must not
	// overwrite occupancy.
	var blockingID string
	var blockingOwner sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT id, owner_id FROM parcels
		 WHERE box_id = ? AND is_delivered = 1 AND collected_at IS NULL AND id <> ?`,
		p.BoxID, id,
	).Scan(&blockingID, &blockingOwner)
	switch {
	case err == nil:
		occ := &OccupiedError{BoxID: p.BoxID, BlockingParcelID: blockingID}
		if blockingOwner.Valid {
			occ.BlockingOwnerID = &blockingOwner.Int64
		}
		return nil, false, occ
	case errors.Is(err, sql.ErrNoRows):
		// box is free
	default:
		return nil, false, fmt.Errorf("%w: checking occupancy: %w", ErrTransient, err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE parcels SET is_delivered = 1, delivered_at = ? WHERE id = ?",
		now.Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: marking delivered: %w", ErrTransient, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: committing delivery: %w", ErrTransient, err)
	}

	p.IsDelivered = true
	p.DeliveredAt = &now
	return p, false, nil
}

// MarkCollected transitions a delivered parcel to the collected state.
//
// Ownership and lifecycle checks run inside the transaction:
// ErrInvalidState before delivery, ErrForbidden for a non-owner, and
// already=true for a parcel that was collected earlier.
func (r *Repository) MarkCollected(ctx context.Context, id string, userID int64) (*Parcel, bool, error) {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	p, err := loadParcelTx(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	if !p.OwnedBy(userID) {
		return nil, false, fmt.Errorf("%w: parcel %s is not registered to this user", ErrForbidden, id)
	}
	if !p.IsDelivered {
		return nil, false, fmt.Errorf("%w: parcel %s has not been delivered", ErrInvalidState, id)
	}
	if p.CollectedAt != nil {
		return p, true, nil
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE parcels SET collected_at = ? WHERE id = ?",
		now.Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: marking collected: %w", ErrTransient, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: committing collection: %w", ErrTransient, err)
	}

	p.CollectedAt = &now
	return p, false, nil
}

// Occupant returns the parcel currently occupying a box (delivered,
// not collected), or ErrNotFound when the box is empty.
func (r *Repository) Occupant(ctx context.Context, boxID int64) (*Parcel, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+parcelColumns+` FROM parcels
		 WHERE box_id = ? AND is_delivered = 1 AND collected_at IS NULL`, boxID)
	return scanParcelFrom(row)
}

// ExpectedParcel returns the next parcel a box is waiting for: the
// oldest registered, undelivered parcel assigned to it. Hardware agents
// poll this to know which tracking id an incoming delivery belongs to.
func (r *Repository) ExpectedParcel(ctx context.Context, boxID int64) (*Parcel, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+parcelColumns+` FROM parcels
		 WHERE box_id = ? AND is_delivered = 0 AND owner_id IS NOT NULL
		 ORDER BY created_at ASC, id ASC LIMIT 1`, boxID)
	return scanParcelFrom(row)
}

// UserHasParcelInBox reports whether the user has ever held a parcel in
// the given box. Used as the authorization proof for lock requests,
// which must remain available after collection.
func (r *Repository) UserHasParcelInBox(ctx context.Context, userID, boxID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM parcels WHERE box_id = ? AND owner_id = ?",
		boxID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: checking box history: %w", ErrTransient, err)
	}
	return count > 0, nil
}

// ListByOwner returns all parcels registered to a user, newest first.
func (r *Repository) ListByOwner(ctx context.Context, userID int64) ([]Parcel, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+parcelColumns+` FROM parcels
		 WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing parcels: %w", ErrTransient, err)
	}
	defer rows.Close()

	var parcels []Parcel
	for rows.Next() {
		p, err := scanParcelFrom(rows)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating parcels: %w", ErrTransient, err)
	}

	if parcels == nil {
		parcels = []Parcel{}
	}
	return parcels, nil
}

// Provision inserts a pre-assigned parcel row. Box assignment happens
// administratively before any user interaction.
func (r *Repository) Provision(ctx context.Context, p *Parcel) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO parcels (id, name, box_id, owner_id, is_delivered, delivered_at, collected_at, created_at)
		 VALUES (?, ?, ?, ?, 0, NULL, NULL, ?)`,
		p.ID, p.Name, p.BoxID, nullInt64(p.OwnerID), p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: provisioning parcel: %w", ErrTransient, err)
	}
	return nil
}

// beginTx starts a transition transaction.
func (r *Repository) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: starting transaction: %w", ErrTransient, err)
	}
	return tx, nil
}

// loadParcelTx loads a parcel inside a transaction.
func loadParcelTx(ctx context.Context, tx *sql.Tx, id string) (*Parcel, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+parcelColumns+" FROM parcels WHERE id = ?", id)
	return scanParcelFrom(row)
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanParcelFrom scans a parcel from any scanner (Row or Rows).
func scanParcelFrom(s scanner) (*Parcel, error) {
	var p Parcel
	var owner sql.NullInt64
	var isDelivered int
	var deliveredAt, collectedAt sql.NullString
	var createdAt string

	err := s.Scan(&p.ID, &p.Name, &p.BoxID, &owner, &isDelivered,
		&deliveredAt, &collectedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: scanning parcel: %w", ErrTransient, err)
	}

	if owner.Valid {
		p.OwnerID = &owner.Int64
	}
	p.IsDelivered = isDelivered != 0
	if deliveredAt.Valid {
		t, _ := time.Parse(time.RFC3339, deliveredAt.String) //nolint:errcheck // format is controlled
		p.DeliveredAt = &t
	}
	if collectedAt.Valid {
		t, _ := time.Parse(time.RFC3339, collectedAt.String) //nolint:errcheck // format is controlled
		p.CollectedAt = &t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &p, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	GetOrCreateByGoogleSub(ctx context.Context, sub, email, name string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// GetOrCreateByGoogleSub returns the user for a verified Google subject,
// creating the account on first sign-in.
//
// Email and name are refreshed from the identity on every call so the
// stored profile tracks the Google account.
func (r *SQLiteUserRepository) GetOrCreateByGoogleSub(ctx context.Context, sub, email, name string) (*User, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: empty google subject", ErrIDTokenRejected)
	}

	existing, err := r.GetByGoogleSub(ctx, sub)
	if err == nil {
		if existing.Email != email || existing.Name != name {
			_, err = r.db.ExecContext(ctx,
				"UPDATE users SET email = ?, name = ? WHERE id = ?",
				email, name, existing.ID,
			)
			if err != nil {
				return nil, fmt.Errorf("refreshing user profile: %w", err)
			}
			existing.Email = email
			existing.Name = name
		}
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (google_sub, email, name, created_at) VALUES (?, ?, ?, ?)`,
		sub, email, name, now,
	)
	if err != nil {
		// Concurrent first sign-in from two devices can race the insert.
		if isUniqueViolation(err) {
			return r.GetByGoogleSub(ctx, sub)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	return &User{
		ID:        id,
		GoogleSub: sub,
		Email:     email,
		Name:      name,
		CreatedAt: createdAt,
	}, nil
}

// GetByID retrieves a user by their unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx, "SELECT id, google_sub, email, name, created_at FROM users WHERE id = ?", id)
}

// GetByGoogleSub retrieves a user by their Google subject claim.
func (r *SQLiteUserRepository) GetByGoogleSub(ctx context.Context, sub string) (*User, error) {
	return r.getUser(ctx, "SELECT id, google_sub, email, name, created_at FROM users WHERE google_sub = ?", sub)
}

// List returns all users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, google_sub, email, name, created_at FROM users ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var createdAt string

	err := s.Scan(&u.ID, &u.GoogleSub, &u.Email, &u.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}

package auth

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testSecret is long enough to pass config validation rules.
const testSecret = "test-secret-key-for-auth-tests-0123456789"

// setupTestDB creates an in-memory SQLite database with the users schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// In-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			google_sub TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL DEFAULT '',
			name       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("creating users table: %v", err)
	}

	return db
}

// testUser creates a user through the repository and returns it.
func testUser(t *testing.T, repo *SQLiteUserRepository, sub, email, name string) *User {
	t.Helper()

	u, err := repo.GetOrCreateByGoogleSub(t.Context(), sub, email, name)
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return u
}

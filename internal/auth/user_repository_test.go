package auth

import (
	"errors"
	"testing"
)

func TestGetOrCreateByGoogleSub_CreatesOnFirstLogin(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	u, err := repo.GetOrCreateByGoogleSub(t.Context(), "sub-123", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("GetOrCreateByGoogleSub() error = %v", err)
	}

	if u.ID == 0 {
		t.Error("expected assigned ID")
	}
	if u.GoogleSub != "sub-123" {
		t.Errorf("GoogleSub = %q, want sub-123", u.GoogleSub)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", u.Email)
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestGetOrCreateByGoogleSub_Idempotent(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	first := testUser(t, repo, "sub-123", "alice@example.com", "Alice")
	second := testUser(t, repo, "sub-123", "alice@example.com", "Alice")

	if first.ID != second.ID {
		t.Errorf("second login ID = %d, want %d", second.ID, first.ID)
	}

	count, err := repo.Count(t.Context())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestGetOrCreateByGoogleSub_RefreshesProfile(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	first := testUser(t, repo, "sub-123", "alice@example.com", "Alice")
	updated := testUser(t, repo, "sub-123", "alice@new.example.com", "Alice B")

	if updated.ID != first.ID {
		t.Fatalf("updated ID = %d, want %d", updated.ID, first.ID)
	}
	if updated.Email != "alice@new.example.com" {
		t.Errorf("Email = %q, want refreshed address", updated.Email)
	}

	stored, err := repo.GetByID(t.Context(), first.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Name != "Alice B" {
		t.Errorf("stored Name = %q, want Alice B", stored.Name)
	}
}

func TestGetOrCreateByGoogleSub_EmptySub(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	_, err := repo.GetOrCreateByGoogleSub(t.Context(), "", "a@example.com", "A")
	if !errors.Is(err, ErrIDTokenRejected) {
		t.Errorf("error = %v, want ErrIDTokenRejected", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	_, err := repo.GetByID(t.Context(), 9999)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestGetByGoogleSub(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	created := testUser(t, repo, "sub-456", "bob@example.com", "Bob")

	got, err := repo.GetByGoogleSub(t.Context(), "sub-456")
	if err != nil {
		t.Fatalf("GetByGoogleSub() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}

	if _, err := repo.GetByGoogleSub(t.Context(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing sub: error = %v, want ErrUserNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	users, err := repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("empty List() = %d users, want 0", len(users))
	}

	testUser(t, repo, "sub-1", "a@example.com", "A")
	testUser(t, repo, "sub-2", "b@example.com", "B")

	users, err = repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("List() = %d users, want 2", len(users))
	}
}

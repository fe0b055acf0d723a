package parcel

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the parcel schema.
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
		CREATE TABLE boxes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			location   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE parcels (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL DEFAULT '',
			box_id       INTEGER NOT NULL REFERENCES boxes(id),
			owner_id     INTEGER,
			is_delivered INTEGER NOT NULL DEFAULT 0,
			delivered_at TEXT,
			collected_at TEXT,
			created_at   TEXT NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

// seedBox inserts a box and returns its id.
func seedBox(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()

	repo := NewBoxRepository(db)
	b := &Box{Name: name}
	if err := repo.Create(t.Context(), b); err != nil {
		t.Fatalf("seeding box: %v", err)
	}
	return b.ID
}

// seedParcel provisions an unregistered parcel assigned to a box.
func seedParcel(t *testing.T, db *sql.DB, id string, boxID int64) {
	t.Helper()

	repo := NewRepository(db)
	if err := repo.Provision(t.Context(), &Parcel{ID: id, BoxID: boxID}); err != nil {
		t.Fatalf("seeding parcel: %v", err)
	}
}

func TestClaimOwner(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	p, already, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, "Shoes")
	if err != nil {
		t.Fatalf("ClaimOwner() error = %v", err)
	}
	if already {
		t.Error("first claim should not be already-registered")
	}
	if !p.OwnedBy(1) {
		t.Error("parcel should be owned by user 1")
	}
	if p.Name != "Shoes" {
		t.Errorf("Name = %q, want Shoes", p.Name)
	}
}

func TestClaimOwner_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("first claim error = %v", err)
	}

	p, already, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, "")
	if err != nil {
		t.Fatalf("second claim error = %v", err)
	}
	if !already {
		t.Error("second claim by same user should be already-registered")
	}
	if !p.OwnedBy(1) {
		t.Error("owner should be unchanged")
	}
}

func TestClaimOwner_ForeignOwner(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("first claim error = %v", err)
	}

	_, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 2, "")
	if !errors.Is(err, ErrConflict) {
		t.Errorf("foreign claim error = %v, want ErrConflict", err)
	}

	// The original owner must be untouched.
	p, err := repo.GetByID(t.Context(), "TRK-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !p.OwnedBy(1) {
		t.Error("owner must remain user 1 after rejected claim")
	}
}

func TestClaimOwner_NotFound(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	_, _, err := repo.ClaimOwner(t.Context(), "TRK-MISSING", 1, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMarkDelivered(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	p, already, err := repo.MarkDelivered(t.Context(), "TRK-1")
	if err != nil {
		t.Fatalf("MarkDelivered() error = %v", err)
	}
	if already {
		t.Error("first delivery should not be already-delivered")
	}
	if !p.IsDelivered || p.DeliveredAt == nil {
		t.Error("parcel should be delivered with timestamp")
	}
}

func TestMarkDelivered_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	first, _, err := repo.MarkDelivered(t.Context(), "TRK-1")
	if err != nil {
		t.Fatalf("first delivery error = %v", err)
	}

	second, already, err := repo.MarkDelivered(t.Context(), "TRK-1")
	if err != nil {
		t.Fatalf("second delivery error = %v", err)
	}
	if !already {
		t.Error("second delivery should be already-delivered")
	}
	if !second.DeliveredAt.Equal(*first.DeliveredAt) {
		t.Error("delivered_at must not change on duplicate trigger")
	}
}

func TestMarkDelivered_OccupiedBox(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	seedParcel(t, db, "TRK-2", boxID)
	repo := NewRepository(db)

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("claim error = %v", err)
	}
	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-1"); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}

	_, _, err := repo.MarkDelivered(t.Context(), "TRK-2")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second delivery error = %v, want ErrConflict", err)
	}

	var occ *OccupiedError
	if !errors.As(err, &occ) {
		t.Fatalf("error should be *OccupiedError, got %T", err)
	}
	if occ.BlockingParcelID != "TRK-1" {
		t.Errorf("BlockingParcelID = %q, want TRK-1", occ.BlockingParcelID)
	}
	if occ.BlockingOwnerID == nil || *occ.BlockingOwnerID != 1 {
		t.Errorf("BlockingOwnerID = %v, want 1", occ.BlockingOwnerID)
	}

	// The blocked parcel must be untouched.
	p, err := repo.GetByID(t.Context(), "TRK-2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p.IsDelivered {
		t.Error("blocked parcel must not be delivered")
	}
}

func TestMarkDelivered_BoxFreeAfterCollection(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	seedParcel(t, db, "TRK-2", boxID)
	repo := NewRepository(db)

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("claim error = %v", err)
	}
	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-1"); err != nil {
		t.Fatalf("delivery error = %v", err)
	}
	if _, _, err := repo.MarkCollected(t.Context(), "TRK-1", 1); err != nil {
		t.Fatalf("collection error = %v", err)
	}

	// Collection frees the slot for the next delivery cycle.
	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-2"); err != nil {
		t.Errorf("delivery into freed box error = %v", err)
	}
}

func TestMarkCollected_Preconditions(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("claim error = %v", err)
	}

	// Not delivered yet.
	_, _, err := repo.MarkCollected(t.Context(), "TRK-1", 1)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("undelivered collect error = %v, want ErrInvalidState", err)
	}

	p, err := repo.GetByID(t.Context(), "TRK-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p.CollectedAt != nil {
		t.Error("collected_at must not be set by a rejected collect")
	}

	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-1"); err != nil {
		t.Fatalf("delivery error = %v", err)
	}

	// Wrong owner.
	_, _, err = repo.MarkCollected(t.Context(), "TRK-1", 2)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign collect error = %v, want ErrForbidden", err)
	}

	// Owner collects.
	if _, _, err := repo.MarkCollected(t.Context(), "TRK-1", 1); err != nil {
		t.Fatalf("collect error = %v", err)
	}

	// Repeat is idempotent.
	_, already, err := repo.MarkCollected(t.Context(), "TRK-1", 1)
	if err != nil {
		t.Fatalf("repeat collect error = %v", err)
	}
	if !already {
		t.Error("repeat collect should be already-collected")
	}
}

func TestOccupant(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	if _, err := repo.Occupant(t.Context(), boxID); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty box Occupant() error = %v, want ErrNotFound", err)
	}

	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-1"); err != nil {
		t.Fatalf("delivery error = %v", err)
	}

	occ, err := repo.Occupant(t.Context(), boxID)
	if err != nil {
		t.Fatalf("Occupant() error = %v", err)
	}
	if occ.ID != "TRK-1" {
		t.Errorf("occupant = %q, want TRK-1", occ.ID)
	}
}

func TestExpectedParcel(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	// Unregistered parcels are not expected.
	if _, err := repo.ExpectedParcel(t.Context(), boxID); !errors.Is(err, ErrNotFound) {
		t.Errorf("unregistered ExpectedParcel() error = %v, want ErrNotFound", err)
	}

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("claim error = %v", err)
	}

	p, err := repo.ExpectedParcel(t.Context(), boxID)
	if err != nil {
		t.Fatalf("ExpectedParcel() error = %v", err)
	}
	if p.ID != "TRK-1" {
		t.Errorf("expected parcel = %q, want TRK-1", p.ID)
	}

	// Delivered parcels stop being expected.
	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-1"); err != nil {
		t.Fatalf("delivery error = %v", err)
	}
	if _, err := repo.ExpectedParcel(t.Context(), boxID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delivered ExpectedParcel() error = %v, want ErrNotFound", err)
	}
}

func TestUserHasParcelInBox(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	otherBox := seedBox(t, db, "Garage")
	seedParcel(t, db, "TRK-1", boxID)
	repo := NewRepository(db)

	if _, _, err := repo.ClaimOwner(t.Context(), "TRK-1", 1, ""); err != nil {
		t.Fatalf("claim error = %v", err)
	}

	has, err := repo.UserHasParcelInBox(t.Context(), 1, boxID)
	if err != nil {
		t.Fatalf("UserHasParcelInBox() error = %v", err)
	}
	if !has {
		t.Error("user 1 should have history in the box")
	}

	has, err = repo.UserHasParcelInBox(t.Context(), 1, otherBox)
	if err != nil {
		t.Fatalf("UserHasParcelInBox() error = %v", err)
	}
	if has {
		t.Error("user 1 should have no history in the other box")
	}

	// History survives collection.
	if _, _, err := repo.MarkDelivered(t.Context(), "TRK-1"); err != nil {
		t.Fatalf("delivery error = %v", err)
	}
	if _, _, err := repo.MarkCollected(t.Context(), "TRK-1", 1); err != nil {
		t.Fatalf("collection error = %v", err)
	}

	has, err = repo.UserHasParcelInBox(t.Context(), 1, boxID)
	if err != nil {
		t.Fatalf("UserHasParcelInBox() error = %v", err)
	}
	if !has {
		t.Error("box history must survive collection")
	}
}

func TestListByOwner(t *testing.T) {
	db := setupTestDB(t)
	boxID := seedBox(t, db, "Front Door")
	repo := NewRepository(db)

	parcels, err := repo.ListByOwner(t.Context(), 1)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(parcels) != 0 {
		t.Errorf("empty ListByOwner() = %d parcels, want 0", len(parcels))
	}

	for i, id := range []string{"TRK-1", "TRK-2"} {
		p := &Parcel{ID: id, BoxID: boxID, CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second)}
		if err := repo.Provision(t.Context(), p); err != nil {
			t.Fatalf("provisioning %s: %v", id, err)
		}
		if _, _, err := repo.ClaimOwner(t.Context(), id, 1, ""); err != nil {
			t.Fatalf("claiming %s: %v", id, err)
		}
	}

	parcels, err = repo.ListByOwner(t.Context(), 1)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(parcels) != 2 {
		t.Fatalf("ListByOwner() = %d parcels, want 2", len(parcels))
	}
	if parcels[0].ID != "TRK-2" {
		t.Errorf("newest first: got %q, want TRK-2", parcels[0].ID)
	}
}

func TestBoxRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBoxRepository(db)

	b := &Box{Name: "Front Door", Location: "Porch"}
	if err := repo.Create(t.Context(), b); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if b.ID == 0 {
		t.Fatal("expected assigned box id")
	}

	got, err := repo.GetByID(t.Context(), b.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Front Door" || got.Location != "Porch" {
		t.Errorf("box = %+v, want Front Door/Porch", got)
	}

	if _, err := repo.GetByID(t.Context(), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing box error = %v, want ErrNotFound", err)
	}

	boxes, err := repo.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(boxes) != 1 {
		t.Errorf("List() = %d boxes, want 1", len(boxes))
	}
}

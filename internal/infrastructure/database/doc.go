// Package database provides SQLite persistence for the parcel store.
//
// It wraps database/sql with:
//   - Connection lifecycle (open, pragma setup, close)
//   - Embedded schema migrations
//   - Health checks
//
// # Concurrency
//
// The connection pool is limited to a single connection. All parcel state
// transitions run as serialized transactions against that connection, which
// is what makes the occupancy and idempotency checks race-free under
// concurrent duplicate triggers (HTTP path and bus-listener path firing for
// the same delivery).
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "data/parcelbox.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

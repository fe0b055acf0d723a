// Package parcel holds the core entities of the delivery box system
// and their SQLite persistence.
//
// Every parcel state transition (claim, deliver, collect) executes as
// a single atomic read-modify-write transaction so idempotency and
// box-occupancy checks cannot race against concurrent duplicate
// triggers. The datastore is the sole source of truth; bus
// notifications happen after commit and are never rolled back.
package parcel

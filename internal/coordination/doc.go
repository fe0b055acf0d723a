// Package coordination implements the parcel delivery state machine.
//
// The service turns HTTP requests and bus events into parcel store
// transitions and outbound bus messages: registration, delivery
// reconciliation, unlock and lock commands, and the two-phase
// weight-confirmed collection handshake. The listener subscribes to
// the shared delivery topic and funnels hardware events through the
// same transition function as the HTTP path.
//
// Consistency boundary: the SQLite transaction. Bus publishes happen
// only after commit, are fire-and-forget, and are never rolled back.
package coordination

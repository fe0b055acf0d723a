package parcel

import (
	"errors"
	"fmt"
)

// Error taxonomy for coordination outcomes. Every hard failure maps to
// exactly one of these classes so the API layer can return stable
// codes and clients can distinguish retryable from terminal errors.
var (
	// ErrNotFound indicates the entity id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the authenticated actor lacks rights over
	// the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a business-rule violation such as a wrong
	// owner or an occupied box.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates the operation is not valid for the
	// parcel's current lifecycle stage.
	ErrInvalidState = errors.New("invalid state")

	// ErrTransient indicates the datastore or bus was unreachable; the
	// caller may safely retry.
	ErrTransient = errors.New("transient failure")
)

// OccupiedError rejects a delivery into a box that already holds a
// delivered, uncollected parcel. It names the blocking parcel and, if
// known, its owner so the conflict is actionable.
//
// OccupiedError is a Conflict: errors.Is(err, ErrConflict) is true.
type OccupiedError struct {
	BoxID            int64
	BlockingParcelID string
	BlockingOwnerID  *int64
}

func (e *OccupiedError) Error() string {
	if e.BlockingOwnerID != nil {
		return fmt.Sprintf("box %d occupied by parcel %s (owner %d)",
			e.BoxID, e.BlockingParcelID, *e.BlockingOwnerID)
	}
	return fmt.Sprintf("box %d occupied by parcel %s", e.BoxID, e.BlockingParcelID)
}

func (e *OccupiedError) Is(target error) bool {
	return target == ErrConflict
}

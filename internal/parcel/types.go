package parcel

import "time"

// Box is a physical locker unit. Boxes are static reference data,
// provisioned administratively.
type Box struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Parcel is the central entity of the coordination core.
//
// Rows are pre-provisioned with a box assignment; the lifecycle is
// claim (register) -> delivered -> collected, each step monotonic and
// set exactly once. There is no deletion path; a collected parcel is
// permanent history.
type Parcel struct {
	// ID is the external tracking identifier, printed on the label.
	ID string `json:"id"`

	// Name is an optional human label set by the owner at registration.
	Name string `json:"name,omitempty"`

	BoxID int64 `json:"box_id"`

	// OwnerID is nil until a user registers the parcel.
	OwnerID *int64 `json:"owner_id,omitempty"`

	IsDelivered bool       `json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CollectedAt *time.Time `json:"collected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Occupying reports whether the parcel currently occupies its box
// (delivered but not yet collected).
func (p *Parcel) Occupying() bool {
	return p.IsDelivered && p.CollectedAt == nil
}

// OwnedBy reports whether the parcel is registered to the given user.
func (p *Parcel) OwnedBy(userID int64) bool {
	return p.OwnerID != nil && *p.OwnerID == userID
}

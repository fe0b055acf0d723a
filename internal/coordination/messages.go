package coordination

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedMessage indicates an inbound bus payload that does not
// match its topic's schema. Malformed messages are logged and dropped,
// never retried: the bus delivers at-most-once and there is no
// dead-letter queue.
var ErrMalformedMessage = errors.New("malformed message")

// Actions and types carried by bus messages. Each topic class has a
// tagged-variant schema validated on receipt.
const (
	ActionLock        = "lock"
	ActionUnlock      = "unlock"
	ActionCheckWeight = "check_weight"
	ActionReset       = "reset"
	ActionDelivered   = "delivered"

	TypeParcelDelivered = "parcel_delivered"
)

// BoxCommand is published to a box's command topic (box-{id}) and
// executed by the lock actuator.
type BoxCommand struct {
	Action    string `json:"action"` // lock | unlock
	BoxID     int64  `json:"box_id"`
	Timestamp string `json:"timestamp"`
}

// LoadCellCommand is published to a box's load cell topic
// (load-cell-control-{id}) and executed by the weight sensor.
//
// ParcelID and UserID are carried on check_weight so the sensor can
// address its response; reset carries neither.
type LoadCellCommand struct {
	Action    string `json:"action"` // check_weight | reset
	ParcelID  string `json:"parcel_id,omitempty"`
	UserID    int64  `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DeliveryEvent arrives on the shared parcel-delivery topic from any
// hardware agent. The timestamp is informational and tolerated in any
// encoding; only action and parcel_id drive reconciliation.
type DeliveryEvent struct {
	Action    string          `json:"action"` // delivered
	ParcelID  string          `json:"parcel_id"`
	BoxID     int64           `json:"box_id,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// UserNotification is published to a user's private topic (user-{id})
// when a parcel registered to them is delivered.
type UserNotification struct {
	Type       string `json:"type"` // parcel_delivered
	ParcelID   string `json:"parcel_id"`
	ParcelName string `json:"parcel_name,omitempty"`
	BoxName    string `json:"box_name,omitempty"`
}

// NewBoxCommand builds a lock or unlock command for a box.
func NewBoxCommand(action string, boxID int64) BoxCommand {
	return BoxCommand{
		Action:    action,
		BoxID:     boxID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewCheckWeightCommand builds the phase-1 weight handshake command.
func NewCheckWeightCommand(parcelID string, userID int64) LoadCellCommand {
	return LoadCellCommand{
		Action:    ActionCheckWeight,
		ParcelID:  parcelID,
		UserID:    userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewResetCommand builds the re-tare command sent after a forced
// collection.
func NewResetCommand() LoadCellCommand {
	return LoadCellCommand{
		Action:    ActionReset,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// DecodeDeliveryEvent parses and validates an inbound delivery event.
//
// Returns ErrMalformedMessage for payloads that are not JSON, carry an
// unrecognized action, or omit the parcel id.
func DecodeDeliveryEvent(payload []byte) (*DeliveryEvent, error) {
	var ev DeliveryEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if ev.Action != ActionDelivered {
		return nil, fmt.Errorf("%w: unrecognized action %q", ErrMalformedMessage, ev.Action)
	}
	if ev.ParcelID == "" {
		return nil, fmt.Errorf("%w: missing parcel_id", ErrMalformedMessage)
	}

	return &ev, nil
}

package mqtt

import "fmt"

// Topic names shared with the hardware agents and the web client.
//
// Topics are flat and parameterized by numeric id, matching what the servo
// and load-cell agents subscribe to:
//
//	box-{id}                lock/unlock commands to the door actuator
//	load-cell-control-{id}  check_weight/reset commands to the weight sensor
//	parcel-delivery         delivery reports from any hardware agent
//	user-{id}               notifications to one user's web client
const (
	// TopicParcelDelivery is the shared delivery-report topic.
	TopicParcelDelivery = "parcel-delivery"

	// TopicServiceStatus carries the core's online/offline status (retained + LWT).
	TopicServiceStatus = "parcelbox-core/status"
)

// Grant patterns for capability tokens. These are broker ACL patterns, not
// MQTT subscription wildcards; the broker enforces them on connect.
const (
	PatternAllBoxes     = "box-*"
	PatternAllLoadCells = "load-cell-control-*"
	PatternAllUsers     = "user-*"
)

// Topics provides builders for parcel box MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase
// and with the hardware agents.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.BoxCommand(7)
//	// Returns: "box-7"
type Topics struct{}

// BoxCommand returns the command topic for a box's door actuator.
//
// Example: box-7
func (Topics) BoxCommand(boxID int64) string {
	return fmt.Sprintf("box-%d", boxID)
}

// LoadCellControl returns the control topic for a box's weight sensor.
//
// Example: load-cell-control-7
func (Topics) LoadCellControl(boxID int64) string {
	return fmt.Sprintf("load-cell-control-%d", boxID)
}

// ParcelDelivery returns the shared delivery-report topic.
func (Topics) ParcelDelivery() string {
	return TopicParcelDelivery
}

// UserNotification returns the private notification topic for a user.
//
// Example: user-42
func (Topics) UserNotification(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// ServiceStatus returns the core's status topic.
func (Topics) ServiceStatus() string {
	return TopicServiceStatus
}

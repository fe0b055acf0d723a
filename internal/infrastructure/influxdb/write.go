package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeliveryEvent records a parcel delivery in the event history.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - parcelID: Carrier tracking identifier
//   - boxID: Box the parcel was placed in
//   - status: Transition outcome (e.g. "delivered", "already_delivered")
func (c *Client) WriteDeliveryEvent(parcelID string, boxID int64, status string) {
	c.WritePoint(
		"deliveries",
		map[string]string{
			"box_id": strconv.FormatInt(boxID, 10),
			"status": status,
		},
		map[string]interface{}{
			"parcel_id": parcelID,
		},
	)
}

// WriteCollectionEvent records a parcel collection.
//
// Parameters:
//   - parcelID: Carrier tracking identifier
//   - boxID: Box the parcel was collected from
//   - forced: Whether the collection bypassed the weight handshake
func (c *Client) WriteCollectionEvent(parcelID string, boxID int64, forced bool) {
	c.WritePoint(
		"collections",
		map[string]string{
			"box_id": strconv.FormatInt(boxID, 10),
		},
		map[string]interface{}{
			"parcel_id": parcelID,
			"forced":    forced,
		},
	)
}

// WriteBoxCommand records a lock or unlock command issued to a box.
//
// Parameters:
//   - boxID: Target box
//   - action: "lock" or "unlock"
//   - userID: User the command was issued for
func (c *Client) WriteBoxCommand(boxID int64, action string, userID int64) {
	c.WritePoint(
		"box_commands",
		map[string]string{
			"box_id": strconv.FormatInt(boxID, 10),
			"action": action,
		},
		map[string]interface{}{
			"user_id": userID,
		},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Writes on a disconnected client are silently dropped; history is advisory
// and never blocks a state transition.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

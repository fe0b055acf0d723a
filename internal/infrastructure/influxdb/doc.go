// Package influxdb provides time-series event history for the parcel
// box coordination core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Purpose
//
// This package records an advisory history of:
//   - Parcel deliveries and collections
//   - Load cell weight measurements
//   - Lock and unlock commands issued to boxes
//
// The relational datastore remains the source of truth for parcel
// state; event history is optional and a write failure never affects a
// transition.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history switched off, continue without it
//	}
//	defer client.Close()
//
//	client.WriteDeliveryEvent("TRK-9F2A", 3, "delivered")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
package influxdb

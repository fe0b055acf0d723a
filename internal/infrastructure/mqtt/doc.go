// Package mqtt is the message bus client for the parcel box core.
//
// The core, the hardware agents (door actuator, weight sensor), and the web
// client coordinate exclusively over a shared publish/subscribe bus. This
// package wraps paho.mqtt.golang with:
//
//   - Connection lifecycle with Last Will and Testament status
//   - Automatic reconnection and re-subscription
//   - Fire-and-forget publishing with a transport-level timeout
//   - Panic-recovering message handlers
//   - Topic builders shared with the hardware agents
//
// # Delivery semantics
//
// Delivery is at-most-once and unordered across topics. The coordination
// protocol is designed around that: transitions are idempotent, commands
// are not retried, and a lost message is resolved by the human re-issuing
// the request.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	client.Subscribe(topics.ParcelDelivery(), 1, onDeliveryEvent)
//	client.PublishJSON(topics.BoxCommand(7), payload)
package mqtt

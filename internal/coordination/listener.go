package coordination

import (
	"context"
	"time"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/logging"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/metrics"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/mqtt"
)

// handlerTimeout bounds the datastore work for one inbound event.
const handlerTimeout = 30 * time.Second

// Subscriber is the inbound bus surface the listener needs. Satisfied
// by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Listener is the long-lived subscription on the shared parcel-delivery
// topic. Delivery events from any hardware agent are funnelled into the
// same reconciliation transition as the HTTP path, so both triggers
// share one codepath.
//
// Handlers run concurrently; re-entrancy is safe because every
// transition is a single datastore transaction. Malformed messages are
// logged, counted, and dropped, never crashing the listener.
type Listener struct {
	svc     *Service
	log     *logging.Logger
	metrics metrics.Recorder
	topics  mqtt.Topics
	qos     byte
}

// NewListener creates a delivery event listener.
func NewListener(svc *Service, log *logging.Logger, rec metrics.Recorder, qos byte) *Listener {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Listener{
		svc:     svc,
		log:     log,
		metrics: rec,
		qos:     qos,
	}
}

// Start subscribes to the parcel-delivery topic. The subscription is
// restored automatically by the bus client on reconnect.
func (l *Listener) Start(bus Subscriber) error {
	return bus.Subscribe(l.topics.ParcelDelivery(), l.qos, l.handleDelivery)
}

// handleDelivery processes one inbound delivery event.
func (l *Listener) handleDelivery(topic string, payload []byte) error {
	ev, err := DecodeDeliveryEvent(payload)
	if err != nil {
		l.metrics.RecordMalformedEvent("parcel-delivery")
		l.log.Warn("dropping malformed delivery event",
			"topic", topic,
			"error", err,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	result, err := l.svc.Deliver(ctx, ev.ParcelID)
	if err != nil {
		l.metrics.RecordBusEvent("parcel-delivery", errorOutcome(err))
		l.log.Warn("delivery event rejected",
			"parcel_id", ev.ParcelID,
			"error", err,
		)
		return nil
	}

	l.metrics.RecordBusEvent("parcel-delivery", string(result.Status))
	return nil
}

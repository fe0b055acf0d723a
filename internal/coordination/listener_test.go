package coordination

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/mqtt"
	"github.com/parcelbox-dev/parcelbox-core/internal/parcel"
)

// fakeSubscriber captures the handler so tests can inject events.
type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.topic = topic
	f.qos = qos
	f.handler = handler
	return nil
}

func startListener(t *testing.T) (*fakeSubscriber, *Service, *fakeBus, func(payload string)) {
	t.Helper()

	svc, bus, db := testCore(t)
	seedBoxWithParcel(t, db, "Front Door", "TRK-1")

	sub := &fakeSubscriber{}
	l := NewListener(svc, testLogger(), nil, 1)
	if err := l.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	inject := func(payload string) {
		if err := sub.handler("parcel-delivery", []byte(payload)); err != nil {
			t.Fatalf("handler returned %v", err)
		}
	}
	return sub, svc, bus, inject
}

func TestListener_SubscribesToDeliveryTopic(t *testing.T) {
	sub, _, _, _ := startListener(t)

	if sub.topic != "parcel-delivery" {
		t.Errorf("subscribed topic = %q, want parcel-delivery", sub.topic)
	}
	if sub.handler == nil {
		t.Fatal("expected a registered handler")
	}
}

func TestListener_ReconcilesDelivery(t *testing.T) {
	_, svc, bus, inject := startListener(t)

	if _, err := svc.Register(t.Context(), 42, "TRK-1", "Shoes"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	inject(`{"action":"delivered","parcel_id":"TRK-1","box_id":1,"timestamp":1756548000}`)

	res, err := svc.Collect(t.Context(), 42, "TRK-1", false)
	if err != nil {
		t.Fatalf("Collect() after event error = %v", err)
	}
	if res.Status != StatusWeightCheck {
		t.Errorf("Status = %q, want weight_check (parcel delivered)", res.Status)
	}

	msgs := bus.messages("user-42")
	if len(msgs) != 1 {
		t.Fatalf("owner notifications = %d, want 1", len(msgs))
	}
}

func TestListener_DropsMalformedEvents(t *testing.T) {
	_, _, bus, inject := startListener(t)

	inject(`not json at all`)
	inject(`{"action":"delivered"}`)
	inject(`{"action":"launch","parcel_id":"TRK-1"}`)

	if bus.count() != 0 {
		t.Errorf("malformed events published %d messages, want 0", bus.count())
	}
}

func TestListener_DuplicateEvents(t *testing.T) {
	_, svc, bus, inject := startListener(t)

	if _, err := svc.Register(t.Context(), 42, "TRK-1", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	inject(`{"action":"delivered","parcel_id":"TRK-1"}`)
	inject(`{"action":"delivered","parcel_id":"TRK-1"}`)

	// Only the first event notifies; the duplicate is an informational
	// no-op.
	if got := len(bus.messages("user-42")); got != 1 {
		t.Errorf("notifications after duplicate events = %d, want 1", got)
	}
}

func TestListener_UnknownParcelDoesNotCrash(t *testing.T) {
	_, _, bus, inject := startListener(t)

	inject(`{"action":"delivered","parcel_id":"TRK-MISSING"}`)

	if bus.count() != 0 {
		t.Errorf("unknown parcel published %d messages, want 0", bus.count())
	}
}

// TestDeliveryScenario walks the full lifecycle end to end: register,
// hardware delivery event, unlock, weight handshake, forced collect,
// and the occupancy rules for the next delivery cycle.
func TestDeliveryScenario(t *testing.T) {
	svc, bus, db := testCore(t)
	boxID := seedBoxWithParcel(t, db, "Box 7", "P1")
	parcels := parcel.NewRepository(db)

	sub := &fakeSubscriber{}
	l := NewListener(svc, testLogger(), nil, 1)
	if err := l.Start(sub); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// U1 registers P1.
	res, err := svc.Register(t.Context(), 1, "P1", "")
	if err != nil || res.Status != StatusRegistered {
		t.Fatalf("Register() = %v, %v", res, err)
	}

	// Hardware reports delivery.
	event, _ := json.Marshal(DeliveryEvent{Action: ActionDelivered, ParcelID: "P1", BoxID: boxID})
	if err := sub.handler("parcel-delivery", event); err != nil {
		t.Fatalf("delivery event error = %v", err)
	}
	if got := len(bus.messages("user-1")); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}

	// U1 unlocks.
	res, err = svc.Unlock(t.Context(), 1, "P1")
	if err != nil || res.Status != StatusUnlockRequested {
		t.Fatalf("Unlock() = %v, %v", res, err)
	}
	if got := len(bus.messages("box-1")); got != 1 {
		t.Fatalf("box commands = %d, want 1", got)
	}

	// Unforced collect requests a weight check, no mutation.
	res, err = svc.Collect(t.Context(), 1, "P1", false)
	if err != nil || res.Status != StatusWeightCheck {
		t.Fatalf("Collect(force=false) = %v, %v", res, err)
	}

	// A second parcel cannot be delivered while P1 occupies the box.
	if err := parcels.Provision(t.Context(), &parcel.Parcel{ID: "P2", BoxID: boxID}); err != nil {
		t.Fatalf("provisioning P2: %v", err)
	}
	if _, err := svc.Deliver(t.Context(), "P2"); !errors.Is(err, parcel.ErrConflict) {
		t.Fatalf("occupied Deliver(P2) error = %v, want ErrConflict", err)
	}

	// U1 confirms with force.
	res, err = svc.Collect(t.Context(), 1, "P1", true)
	if err != nil || res.Status != StatusCollected {
		t.Fatalf("Collect(force=true) = %v, %v", res, err)
	}

	// The box is free again for P2.
	res, err = svc.Deliver(t.Context(), "P2")
	if err != nil || res.Status != StatusDelivered {
		t.Fatalf("Deliver(P2) after collection = %v, %v", res, err)
	}
}

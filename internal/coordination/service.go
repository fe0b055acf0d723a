package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/logging"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/metrics"
	"github.com/parcelbox-dev/parcelbox-core/internal/infrastructure/mqtt"
	"github.com/parcelbox-dev/parcelbox-core/internal/parcel"
)

// Status is the outcome reported to clients for a coordination
// operation. Informational outcomes (already_*) are idempotent
// successes, distinct from hard errors.
type Status string

const (
	StatusRegistered        Status = "registered"
	StatusAlreadyRegistered Status = "already_registered"
	StatusDelivered         Status = "delivered"
	StatusAlreadyDelivered  Status = "already_delivered"
	StatusUnlockRequested   Status = "unlock_requested"
	StatusLockRequested     Status = "lock_requested"
	StatusWeightCheck       Status = "weight_check"
	StatusCollected         Status = "collected"
	StatusAlreadyCollected  Status = "already_collected"
)

// Result is the successful outcome of a coordination operation.
type Result struct {
	Status Status         `json:"status"`
	Parcel *parcel.Parcel `json:"parcel,omitempty"`
}

// Publisher is the outbound bus surface the service needs. Satisfied
// by *mqtt.Client; substituted with a fake in tests.
type Publisher interface {
	PublishJSON(topic string, payload []byte) error
}

// EventHistory receives advisory time-series records of transitions.
// Satisfied by *influxdb.Client. All methods are fire-and-forget.
type EventHistory interface {
	WriteDeliveryEvent(parcelID string, boxID int64, status string)
	WriteCollectionEvent(parcelID string, boxID int64, forced bool)
	WriteBoxCommand(boxID int64, action string, userID int64)
}

// Service is the coordination core: it turns requests and bus events
// into parcel store transitions and outbound bus messages.
//
// Every transition commits before any publish; a failed publish is
// logged and counted, never rolled back.
type Service struct {
	parcels *parcel.Repository
	boxes   *parcel.BoxRepository
	bus     Publisher
	log     *logging.Logger
	metrics metrics.Recorder
	history EventHistory
	topics  mqtt.Topics
}

// NewService wires the coordination core to its collaborators.
func NewService(parcels *parcel.Repository, boxes *parcel.BoxRepository, bus Publisher, log *logging.Logger, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		parcels: parcels,
		boxes:   boxes,
		bus:     bus,
		log:     log,
		metrics: rec,
	}
}

// SetHistory attaches an optional time-series event history sink.
func (s *Service) SetHistory(h EventHistory) {
	s.history = h
}

// Register claims a parcel for a user.
//
// Registration is purely a datastore transition; no bus messages are
// sent. Re-registration by the same owner is an idempotent success,
// registration of a parcel owned by someone else is a Conflict.
func (s *Service) Register(ctx context.Context, userID int64, parcelID, name string) (*Result, error) {
	p, already, err := s.parcels.ClaimOwner(ctx, parcelID, userID, name)
	if err != nil {
		s.metrics.RecordTransition("register", errorOutcome(err))
		return nil, err
	}

	status := StatusRegistered
	if already {
		status = StatusAlreadyRegistered
	}
	s.metrics.RecordTransition("register", string(status))

	s.log.Info("parcel registered",
		"parcel_id", p.ID,
		"user_id", userID,
		"status", status,
	)
	return &Result{Status: status, Parcel: p}, nil
}

// Deliver reconciles a delivery trigger into the delivered state.
//
// Both the HTTP path and the bus listener converge here, so the
// transition must be idempotent under duplicate triggers and reject a
// delivery into an occupied box. After a successful commit the owner,
// if any, is notified on their private topic.
func (s *Service) Deliver(ctx context.Context, parcelID string) (*Result, error) {
	p, already, err := s.parcels.MarkDelivered(ctx, parcelID)
	if err != nil {
		s.metrics.RecordTransition("deliver", errorOutcome(err))
		return nil, err
	}

	if already {
		s.metrics.RecordTransition("deliver", string(StatusAlreadyDelivered))
		return &Result{Status: StatusAlreadyDelivered, Parcel: p}, nil
	}

	s.metrics.RecordTransition("deliver", string(StatusDelivered))
	if s.history != nil {
		s.history.WriteDeliveryEvent(p.ID, p.BoxID, string(StatusDelivered))
	}

	s.log.Info("parcel delivered",
		"parcel_id", p.ID,
		"box_id", p.BoxID,
	)

	if p.OwnerID != nil {
		s.notifyOwner(ctx, p)
	}

	return &Result{Status: StatusDelivered, Parcel: p}, nil
}

// Unlock publishes an unlock command for the box holding a delivered
// parcel. The box identity is derived from the parcel, never trusted
// from the client.
//
// Returns immediately; the physical unlock is asynchronous and not
// awaited.
func (s *Service) Unlock(ctx context.Context, userID int64, parcelID string) (*Result, error) {
	p, err := s.parcels.GetByID(ctx, parcelID)
	if err != nil {
		s.metrics.RecordTransition("unlock", errorOutcome(err))
		return nil, err
	}

	if !p.OwnedBy(userID) {
		s.metrics.RecordTransition("unlock", "forbidden")
		return nil, fmt.Errorf("%w: parcel %s is not registered to this user", parcel.ErrForbidden, parcelID)
	}
	if !p.IsDelivered {
		s.metrics.RecordTransition("unlock", "invalid_state")
		return nil, fmt.Errorf("%w: parcel %s has not been delivered", parcel.ErrInvalidState, parcelID)
	}
	if p.CollectedAt != nil {
		s.metrics.RecordTransition("unlock", string(StatusAlreadyCollected))
		return &Result{Status: StatusAlreadyCollected, Parcel: p}, nil
	}

	cmd := NewBoxCommand(ActionUnlock, p.BoxID)
	s.publish(s.topics.BoxCommand(p.BoxID), "box-command", cmd)

	s.metrics.RecordTransition("unlock", string(StatusUnlockRequested))
	if s.history != nil {
		s.history.WriteBoxCommand(p.BoxID, ActionUnlock, userID)
	}

	s.log.Info("unlock requested",
		"parcel_id", p.ID,
		"box_id", p.BoxID,
		"user_id", userID,
	)
	return &Result{Status: StatusUnlockRequested, Parcel: p}, nil
}

// Lock publishes a lock command for a box.
//
// Authorization is proof of prior legitimate access: the requester must
// have ever held a parcel in the box. Locking stays available after
// collection, when no parcel occupies the box.
func (s *Service) Lock(ctx context.Context, userID, boxID int64) (*Result, error) {
	if _, err := s.boxes.GetByID(ctx, boxID); err != nil {
		s.metrics.RecordTransition("lock", errorOutcome(err))
		return nil, err
	}

	has, err := s.parcels.UserHasParcelInBox(ctx, userID, boxID)
	if err != nil {
		s.metrics.RecordTransition("lock", errorOutcome(err))
		return nil, err
	}
	if !has {
		s.metrics.RecordTransition("lock", "forbidden")
		return nil, fmt.Errorf("%w: no parcel history in box %d", parcel.ErrForbidden, boxID)
	}

	cmd := NewBoxCommand(ActionLock, boxID)
	s.publish(s.topics.BoxCommand(boxID), "box-command", cmd)

	s.metrics.RecordTransition("lock", string(StatusLockRequested))
	if s.history != nil {
		s.history.WriteBoxCommand(boxID, ActionLock, userID)
	}

	s.log.Info("lock requested",
		"box_id", boxID,
		"user_id", userID,
	)
	return &Result{Status: StatusLockRequested}, nil
}

// Collect handles the weight-confirmed collection handshake.
//
// Without force it runs phase 1: verify the parcel is delivered, owned
// and uncollected, publish check_weight to the box's load cell, and
// return a weight_check status with no datastore mutation. The sensor
// reports its measurement to the client, which decides whether to
// re-issue with force=true.
//
// With force it trusts the caller's confirmation: collected_at is set
// inside a transaction and exactly one reset command re-tares the
// sensor for the next delivery cycle. Repeating the forced call is an
// idempotent already_collected success that publishes nothing.
func (s *Service) Collect(ctx context.Context, userID int64, parcelID string, force bool) (*Result, error) {
	if !force {
		return s.collectPhase1(ctx, userID, parcelID)
	}

	p, already, err := s.parcels.MarkCollected(ctx, parcelID, userID)
	if err != nil {
		s.metrics.RecordTransition("collect", errorOutcome(err))
		return nil, err
	}
	if already {
		s.metrics.RecordTransition("collect", string(StatusAlreadyCollected))
		return &Result{Status: StatusAlreadyCollected, Parcel: p}, nil
	}

	s.publish(s.topics.LoadCellControl(p.BoxID), "load-cell-control", NewResetCommand())

	s.metrics.RecordTransition("collect", string(StatusCollected))
	if s.history != nil {
		s.history.WriteCollectionEvent(p.ID, p.BoxID, true)
	}

	s.log.Info("parcel collected",
		"parcel_id", p.ID,
		"box_id", p.BoxID,
		"user_id", userID,
		"forced", true,
	)
	return &Result{Status: StatusCollected, Parcel: p}, nil
}

// collectPhase1 verifies preconditions and requests a weight check.
func (s *Service) collectPhase1(ctx context.Context, userID int64, parcelID string) (*Result, error) {
	p, err := s.parcels.GetByID(ctx, parcelID)
	if err != nil {
		s.metrics.RecordTransition("collect", errorOutcome(err))
		return nil, err
	}

	if !p.OwnedBy(userID) {
		s.metrics.RecordTransition("collect", "forbidden")
		return nil, fmt.Errorf("%w: parcel %s is not registered to this user", parcel.ErrForbidden, parcelID)
	}
	if !p.IsDelivered {
		s.metrics.RecordTransition("collect", "invalid_state")
		return nil, fmt.Errorf("%w: parcel %s has not been delivered", parcel.ErrInvalidState, parcelID)
	}
	if p.CollectedAt != nil {
		s.metrics.RecordTransition("collect", string(StatusAlreadyCollected))
		return &Result{Status: StatusAlreadyCollected, Parcel: p}, nil
	}

	cmd := NewCheckWeightCommand(p.ID, userID)
	s.publish(s.topics.LoadCellControl(p.BoxID), "load-cell-control", cmd)

	s.metrics.RecordTransition("collect", string(StatusWeightCheck))
	s.log.Info("weight check requested",
		"parcel_id", p.ID,
		"box_id", p.BoxID,
		"user_id", userID,
	)
	return &Result{Status: StatusWeightCheck, Parcel: p}, nil
}

// notifyOwner publishes a delivery notification to the owner's private
// topic. Best-effort: the transition has already committed.
func (s *Service) notifyOwner(ctx context.Context, p *parcel.Parcel) {
	note := UserNotification{
		Type:       TypeParcelDelivered,
		ParcelID:   p.ID,
		ParcelName: p.Name,
	}

	if box, err := s.boxes.GetByID(ctx, p.BoxID); err == nil {
		note.BoxName = box.Name
	}

	s.publish(s.topics.UserNotification(*p.OwnerID), "user-notification", note)
}

// publish marshals and sends a bus message after a committed
// transition. Failures are logged and counted, never propagated.
func (s *Service) publish(topic, topicClass string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.metrics.RecordBusPublish(topicClass, false)
		s.log.Error("marshalling bus message", "topic", topic, "error", err)
		return
	}

	if err := s.bus.PublishJSON(topic, payload); err != nil {
		s.metrics.RecordBusPublish(topicClass, false)
		s.log.Error("publishing bus message", "topic", topic, "error", err)
		return
	}

	s.metrics.RecordBusPublish(topicClass, true)
}

// errorOutcome maps an error to a low-cardinality metric label.
func errorOutcome(err error) string {
	var occ *parcel.OccupiedError
	switch {
	case errors.As(err, &occ):
		return "occupied"
	case errors.Is(err, parcel.ErrNotFound):
		return "not_found"
	case errors.Is(err, parcel.ErrForbidden):
		return "forbidden"
	case errors.Is(err, parcel.ErrConflict):
		return "conflict"
	case errors.Is(err, parcel.ErrInvalidState):
		return "invalid_state"
	default:
		return "transient"
	}
}

// Package dispatcher turns booking events into notification records. Each
// transition addresses a fixed set of recipients; delivery is idempotent per
// (appointment, target state).
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/obiefoma/slotbook/services/notification-service/internal/storage"
)

// Event types consumed from the booking service. Topic names equal types.
const (
	EventAppointmentCreated   = "booking.appointment.created.v1"
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentCompleted = "booking.appointment.completed.v1"
	EventSlotUpdated          = "booking.slot.updated.v1"
)

// Topics lists everything the dispatcher subscribes to.
var Topics = []string{
	EventAppointmentCreated,
	EventAppointmentConfirmed,
	EventAppointmentCancelled,
	EventAppointmentCompleted,
	EventSlotUpdated,
}

// Store persists notifications together with the dedup key. Returns false
// when the key was seen before.
type Store interface {
	Deliver(ctx context.Context, dedupKey, eventType string, notes []storage.Notification) (bool, error)
}

type Dispatcher struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger}
}

type appointmentEvent struct {
	AppointmentID      string    `json:"appointment_id"`
	UserID             string    `json:"user_id"`
	ProfessionalID     string    `json:"professional_id"`
	ProfessionalUserID string    `json:"professional_user_id"`
	ScheduledTime      time.Time `json:"scheduled_time"`
	Status             string    `json:"status"`
	OccurredAt         time.Time `json:"occurred_at"`
}

type slotEvent struct {
	ProfessionalID     string    `json:"professional_id"`
	ProfessionalUserID string    `json:"professional_user_id"`
	SlotTime           time.Time `json:"slot_time"`
	Available          bool      `json:"available"`
}

// HandleEvent routes one event payload. Unknown event types are logged and
// dropped; a malformed payload is dropped too, since redelivery cannot fix it.
func (d *Dispatcher) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case EventAppointmentCreated, EventAppointmentConfirmed, EventAppointmentCancelled, EventAppointmentCompleted:
		var evt appointmentEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			d.logger.Error("invalid appointment event payload", "event_type", eventType, "err", err)
			return nil
		}
		if evt.AppointmentID == "" || evt.UserID == "" || evt.ProfessionalUserID == "" {
			d.logger.Error("missing appointment event fields", "event_type", eventType)
			return nil
		}
		return d.handleAppointment(ctx, eventType, evt)
	case EventSlotUpdated:
		var evt slotEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			d.logger.Error("invalid slot event payload", "err", err)
			return nil
		}
		if evt.ProfessionalUserID == "" {
			d.logger.Error("missing slot event fields")
			return nil
		}
		return d.handleSlot(ctx, evt)
	default:
		d.logger.Warn("unknown event type", "event_type", eventType)
		return nil
	}
}

func (d *Dispatcher) handleAppointment(ctx context.Context, eventType string, evt appointmentEvent) error {
	when := evt.ScheduledTime.UTC().Format(time.RFC3339)
	createdAt := evt.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var notes []storage.Notification
	switch eventType {
	case EventAppointmentCreated:
		notes = []storage.Notification{
			{UserID: evt.ProfessionalUserID, Message: "New appointment booked for " + when + "."},
		}
	case EventAppointmentConfirmed:
		notes = []storage.Notification{
			{UserID: evt.UserID, Message: "Your appointment for " + when + " has been confirmed."},
		}
	case EventAppointmentCancelled:
		notes = []storage.Notification{
			{UserID: evt.UserID, Message: "Your appointment has been cancelled."},
			{UserID: evt.ProfessionalUserID, Message: "An appointment has been cancelled."},
		}
	case EventAppointmentCompleted:
		notes = []storage.Notification{
			{UserID: evt.UserID, Message: "Your appointment is complete. You can now leave a review."},
		}
	}
	for i := range notes {
		notes[i].CreatedAt = createdAt
	}

	dedupKey := evt.AppointmentID + "|" + evt.Status
	fresh, err := d.store.Deliver(ctx, dedupKey, eventType, notes)
	if err != nil {
		return fmt.Errorf("deliver notifications: %w", err)
	}
	if !fresh {
		d.logger.Info("duplicate event ignored", "dedup_key", dedupKey, "event_type", eventType)
	}
	return nil
}

func (d *Dispatcher) handleSlot(ctx context.Context, evt slotEvent) error {
	when := evt.SlotTime.UTC().Format(time.RFC3339)
	state := "closed"
	if evt.Available {
		state = "open"
	}
	notes := []storage.Notification{
		{
			UserID:    evt.ProfessionalUserID,
			Message:   "Your availability for " + when + " is now " + state + ".",
			CreatedAt: time.Now().UTC(),
		},
	}

	dedupKey := fmt.Sprintf("%s|%s|%s", evt.ProfessionalID, when, state)
	fresh, err := d.store.Deliver(ctx, dedupKey, EventSlotUpdated, notes)
	if err != nil {
		return fmt.Errorf("deliver notifications: %w", err)
	}
	if !fresh {
		d.logger.Info("duplicate event ignored", "dedup_key", dedupKey, "event_type", EventSlotUpdated)
	}
	return nil
}

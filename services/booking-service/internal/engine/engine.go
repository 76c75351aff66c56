// Package engine is the scheduling core. It composes the slot ledger and the
// appointment store so that a booking is atomic from the caller's point of
// view: a claimed slot and its appointment appear together or not at all.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
	"github.com/obiefoma/slotbook/services/booking-service/internal/ledger"
	"github.com/obiefoma/slotbook/services/booking-service/internal/outbox"
)

type Directory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	Professional(ctx context.Context, professionalID string) (*domain.Professional, error)
}

type AppointmentStore interface {
	Create(ctx context.Context, a *domain.Appointment) error
	Get(ctx context.Context, id string) (*domain.Appointment, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Appointment, error)
	ListAll(ctx context.Context, limit int) ([]domain.Appointment, error)
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]domain.Appointment, error)
}

// EventSink receives domain events for the notification pipeline. Emission is
// best-effort: a sink failure never rolls back the transition that caused it.
type EventSink interface {
	Emit(ctx context.Context, evt outbox.Event)
}

type Engine struct {
	ledger       ledger.Ledger
	appointments AppointmentStore
	directory    Directory
	events       EventSink
	logger       *slog.Logger
	now          func() time.Time
}

func New(l ledger.Ledger, store AppointmentStore, dir Directory, events EventSink, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:       l,
		appointments: store,
		directory:    dir,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the engine's time source. The completion gate and all
// timestamps flow from it.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Book claims the slot and creates a PENDING appointment. If the appointment
// write fails after a successful claim, the claim is rolled back before the
// error surfaces; a rollback failure means the ledger is corrupt and is
// escalated rather than swallowed.
func (e *Engine) Book(ctx context.Context, userID, professionalID string, at time.Time) (*domain.Appointment, error) {
	ok, err := e.directory.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("validate user: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidUser
	}

	prof, err := e.directory.Professional(ctx, professionalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidProfessional
	}
	if err != nil {
		return nil, fmt.Errorf("validate professional: %w", err)
	}
	if !prof.Active {
		return nil, domain.ErrInvalidProfessional
	}

	handle, err := e.ledger.Claim(ctx, professionalID, at)
	if err != nil {
		return nil, err
	}

	now := e.now()
	appt := &domain.Appointment{
		ID:             uuid.NewString(),
		UserID:         userID,
		ProfessionalID: professionalID,
		ScheduledTime:  at,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.appointments.Create(ctx, appt); err != nil {
		if relErr := e.ledger.Release(ctx, handle); relErr != nil {
			return nil, fmt.Errorf("slot rollback failed after create error (%v): %w", err, relErr)
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	e.emitAppointmentEvent(ctx, outbox.EventAppointmentCreated, appt, prof.UserID)
	return appt, nil
}

// Confirm moves a PENDING appointment to CONFIRMED. Only the appointment's
// professional may confirm.
func (e *Engine) Confirm(ctx context.Context, appointmentID string, actor domain.Actor) (*domain.Appointment, error) {
	return e.transition(ctx, appointmentID, domain.StatusConfirmed, &actor)
}

// Cancel moves a PENDING or CONFIRMED appointment to CANCELLED and reopens
// the slot. Permitted to the owning user, the professional, or an admin.
func (e *Engine) Cancel(ctx context.Context, appointmentID string, actor domain.Actor) (*domain.Appointment, error) {
	appt, err := e.transition(ctx, appointmentID, domain.StatusCancelled, &actor)
	if err != nil {
		return nil, err
	}
	h := ledger.Handle{ProfessionalID: appt.ProfessionalID, StartTime: appt.ScheduledTime}
	if err := e.ledger.Release(ctx, h); err != nil {
		return nil, fmt.Errorf("release slot after cancellation: %w", err)
	}
	return appt, nil
}

func (e *Engine) transition(ctx context.Context, appointmentID string, to domain.Status, actor *domain.Actor) (*domain.Appointment, error) {
	appt, err := e.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	prof, err := e.directory.Professional(ctx, appt.ProfessionalID)
	if err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}

	now := e.now()
	if err := domain.CheckTransition(appt, to, actor, prof.UserID, now); err != nil {
		return nil, err
	}

	moved, err := e.appointments.TransitionStatus(ctx, appointmentID, appt.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	if !moved {
		// Lost a race; re-read so the error reports the winner's state.
		current, err := e.appointments.Get(ctx, appointmentID)
		if err != nil {
			return nil, err
		}
		return nil, &domain.TransitionError{From: current.Status, To: to}
	}

	appt.Status = to
	appt.UpdatedAt = now
	if to == domain.StatusCancelled {
		appt.CancelledAt = &now
	}

	e.emitAppointmentEvent(ctx, eventTypeFor(to), appt, prof.UserID)
	return appt, nil
}

func eventTypeFor(to domain.Status) string {
	switch to {
	case domain.StatusConfirmed:
		return outbox.EventAppointmentConfirmed
	case domain.StatusCancelled:
		return outbox.EventAppointmentCancelled
	case domain.StatusCompleted:
		return outbox.EventAppointmentCompleted
	default:
		return outbox.EventAppointmentCreated
	}
}

// OpenSlots lists a professional's open slots in [from, to).
func (e *Engine) OpenSlots(ctx context.Context, professionalID string, from, to time.Time) ([]domain.Slot, error) {
	return e.ledger.ListOpenSlots(ctx, professionalID, from, to)
}

// SetAvailability lets a professional publish or withdraw a slot. The actor
// must be the professional behind the profile, or an admin.
func (e *Engine) SetAvailability(ctx context.Context, professionalID string, at time.Time, available bool, actor domain.Actor) error {
	prof, err := e.directory.Professional(ctx, professionalID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidProfessional
	}
	if err != nil {
		return fmt.Errorf("validate professional: %w", err)
	}
	if actor.Role != domain.RoleAdmin && actor.UserID != prof.UserID {
		return domain.ErrForbidden
	}
	if err := e.ledger.SetSlot(ctx, professionalID, at, available); err != nil {
		return err
	}

	payload, _ := json.Marshal(slotUpdatedPayload{
		ProfessionalID:     professionalID,
		ProfessionalUserID: prof.UserID,
		SlotTime:           at.UTC(),
		Available:          available,
	})
	e.events.Emit(ctx, outbox.Event{
		AggregateType: "availability",
		AggregateID:   professionalID,
		EventType:     outbox.EventSlotUpdated,
		Payload:       payload,
	})
	return nil
}

// Get returns one appointment. Visible to the owning user, the appointment's
// professional, and admins; everyone else is forbidden.
func (e *Engine) Get(ctx context.Context, appointmentID string, actor domain.Actor) (*domain.Appointment, error) {
	appt, err := e.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleAdmin || actor.UserID == appt.UserID {
		return appt, nil
	}
	prof, err := e.directory.Professional(ctx, appt.ProfessionalID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if err == nil && actor.UserID == prof.UserID {
		return appt, nil
	}
	return nil, domain.ErrForbidden
}

func (e *Engine) ListForUser(ctx context.Context, userID string) ([]domain.Appointment, error) {
	return e.appointments.ListByUser(ctx, userID)
}

func (e *Engine) ListAll(ctx context.Context, limit int) ([]domain.Appointment, error) {
	return e.appointments.ListAll(ctx, limit)
}

type appointmentEventPayload struct {
	AppointmentID      string    `json:"appointment_id"`
	UserID             string    `json:"user_id"`
	ProfessionalID     string    `json:"professional_id"`
	ProfessionalUserID string    `json:"professional_user_id"`
	ScheduledTime      time.Time `json:"scheduled_time"`
	Status             string    `json:"status"`
	OccurredAt         time.Time `json:"occurred_at"`
}

type slotUpdatedPayload struct {
	ProfessionalID     string    `json:"professional_id"`
	ProfessionalUserID string    `json:"professional_user_id"`
	SlotTime           time.Time `json:"slot_time"`
	Available          bool      `json:"available"`
}

func (e *Engine) emitAppointmentEvent(ctx context.Context, eventType string, appt *domain.Appointment, professionalUserID string) {
	payload, err := json.Marshal(appointmentEventPayload{
		AppointmentID:      appt.ID,
		UserID:             appt.UserID,
		ProfessionalID:     appt.ProfessionalID,
		ProfessionalUserID: professionalUserID,
		ScheduledTime:      appt.ScheduledTime.UTC(),
		Status:             string(appt.Status),
		OccurredAt:         e.now().UTC(),
	})
	if err != nil {
		e.logger.Error("marshal appointment event", "err", err)
		return
	}
	e.events.Emit(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

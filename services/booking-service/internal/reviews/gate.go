// Package reviews gates review creation on appointment outcome: only the
// user who attended a completed appointment may review it.
package reviews

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

type AppointmentGetter interface {
	Get(ctx context.Context, id string) (*domain.Appointment, error)
}

type ReviewStore interface {
	Create(ctx context.Context, rev *domain.Review) error
	ExistsForAppointment(ctx context.Context, appointmentID string) (bool, error)
	ListByProfessional(ctx context.Context, professionalID string, limit int) ([]domain.Review, error)
}

type Gate struct {
	appointments AppointmentGetter
	store        ReviewStore
	now          func() time.Time
}

func NewGate(appointments AppointmentGetter, store ReviewStore) *Gate {
	return &Gate{appointments: appointments, store: store, now: time.Now}
}

// CanReview reports whether userID may review the appointment: it must exist,
// be COMPLETED, and belong to that user. Unknown appointments answer false
// rather than erroring, so the check leaks nothing about other users' data.
func (g *Gate) CanReview(ctx context.Context, appointmentID, userID string) (bool, error) {
	appt, err := g.appointments.Get(ctx, appointmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return appt.Status == domain.StatusCompleted && appt.UserID == userID, nil
}

var ErrInvalidRating = errors.New("rating must be between 0 and 5")

// Submit creates a review after re-checking the gate. One review per
// appointment; a second submission fails with ErrForbidden.
func (g *Gate) Submit(ctx context.Context, appointmentID, userID string, rating int, comment string) (*domain.Review, error) {
	if rating < 0 || rating > 5 {
		return nil, ErrInvalidRating
	}
	appt, err := g.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != domain.StatusCompleted || appt.UserID != userID {
		return nil, domain.ErrForbidden
	}
	exists, err := g.store.ExistsForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrForbidden
	}

	rev := &domain.Review{
		ID:             uuid.NewString(),
		AppointmentID:  appointmentID,
		UserID:         userID,
		ProfessionalID: appt.ProfessionalID,
		Rating:         rating,
		Comment:        comment,
		CreatedAt:      g.now(),
	}
	if err := g.store.Create(ctx, rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// ListForProfessional returns a professional's most recent reviews.
func (g *Gate) ListForProfessional(ctx context.Context, professionalID string, limit int) ([]domain.Review, error) {
	return g.store.ListByProfessional(ctx, professionalID, limit)
}

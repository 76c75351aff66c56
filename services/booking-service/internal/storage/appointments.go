package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `id, user_id, professional_id, scheduled_time, status, cancelled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	var status string
	err := row.Scan(&a.ID, &a.UserID, &a.ProfessionalID, &a.ScheduledTime, &status, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = domain.Status(status)
	return &a, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO appointments (id, user_id, professional_id, scheduled_time, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, a.ProfessionalID, a.ScheduledTime, string(a.Status),
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (*domain.Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

// TransitionStatus moves the appointment from one status to another with a
// compare-and-set on the current status. It returns false when the row was
// not in the expected from-status, which means a concurrent transition won.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	var cancelledAt *time.Time
	if to == domain.StatusCancelled {
		cancelledAt = &at
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments
		    SET status = $3,
		        cancelled_at = COALESCE($4, cancelled_at),
		        updated_at = now()
		  WHERE id = $1 AND status = $2`,
		id, string(from), string(to), cancelledAt,
	)
	if err != nil {
		return false, fmt.Errorf("transition appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AppointmentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments
		  WHERE user_id = $1
		  ORDER BY scheduled_time DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListAll(ctx context.Context, limit int) ([]domain.Appointment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments
		  ORDER BY created_at DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list all appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListDueForCompletion returns confirmed appointments whose scheduled time
// has passed, for the completion sweep.
func (r *AppointmentRepository) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]domain.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+`
		   FROM appointments
		  WHERE status = $1 AND scheduled_time <= $2
		  ORDER BY scheduled_time ASC
		  LIMIT $3`,
		string(domain.StatusConfirmed), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

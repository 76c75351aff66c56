package storage

import (
	"context"
	"fmt"

	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

type ReviewRepository struct {
	pool *db.Pool
}

func NewReviewRepository(pool *db.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) Create(ctx context.Context, rev *domain.Review) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reviews (id, appointment_id, user_id, professional_id, rating, comment)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rev.ID, rev.AppointmentID, rev.UserID, rev.ProfessionalID, rev.Rating, rev.Comment,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) ExistsForAppointment(ctx context.Context, appointmentID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE appointment_id = $1)`,
		appointmentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check review: %w", err)
	}
	return exists, nil
}

func (r *ReviewRepository) ListByProfessional(ctx context.Context, professionalID string, limit int) ([]domain.Review, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, appointment_id, user_id, professional_id, rating, comment, created_at
		   FROM reviews
		  WHERE professional_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		professionalID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rev domain.Review
		if err := rows.Scan(&rev.ID, &rev.AppointmentID, &rev.UserID, &rev.ProfessionalID, &rev.Rating, &rev.Comment, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

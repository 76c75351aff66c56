package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

// Directory answers referential questions about users and professionals.
// Identity itself comes from the gateway; this re-validates existence.
type Directory struct {
	pool *db.Pool
}

func NewDirectory(pool *db.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND active)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

func (d *Directory) Professional(ctx context.Context, professionalID string) (*domain.Professional, error) {
	var p domain.Professional
	err := d.pool.QueryRow(ctx,
		`SELECT id, user_id, qualifications, active
		   FROM professional_profiles
		  WHERE id = $1`,
		professionalID,
	).Scan(&p.ID, &p.UserID, &p.Qualifications, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}
	return &p, nil
}

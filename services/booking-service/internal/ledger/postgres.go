package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/obiefoma/slotbook/libs/db"
	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

// PostgresLedger backs availability with the availability table. The claim is
// a single conditional UPDATE, so contention resolves inside Postgres without
// application-level locking.
type PostgresLedger struct {
	pool *db.Pool
}

func NewPostgresLedger(pool *db.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) ListOpenSlots(ctx context.Context, professionalID string, from, to time.Time) ([]domain.Slot, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM professional_profiles WHERE id = $1 AND active)`,
		professionalID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check professional: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}

	rows, err := l.pool.Query(ctx,
		`SELECT professional_id, slot_time, is_available
		   FROM availability
		  WHERE professional_id = $1
		    AND slot_time >= $2 AND slot_time < $3
		    AND is_available
		  ORDER BY slot_time ASC`,
		professionalID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list open slots: %w", err)
	}
	defer rows.Close()

	var slots []domain.Slot
	for rows.Next() {
		var s domain.Slot
		if err := rows.Scan(&s.ProfessionalID, &s.StartTime, &s.Available); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (l *PostgresLedger) Claim(ctx context.Context, professionalID string, at time.Time) (Handle, error) {
	tag, err := l.pool.Exec(ctx,
		`UPDATE availability
		    SET is_available = FALSE, updated_at = now()
		  WHERE professional_id = $1 AND slot_time = $2 AND is_available`,
		professionalID, at,
	)
	if err != nil {
		return Handle{}, fmt.Errorf("claim slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Missing slot and lost race look the same to the caller.
		return Handle{}, domain.ErrSlotUnavailable
	}
	return Handle{ProfessionalID: professionalID, StartTime: at}, nil
}

func (l *PostgresLedger) Release(ctx context.Context, h Handle) error {
	tag, err := l.pool.Exec(ctx,
		`UPDATE availability
		    SET is_available = TRUE, updated_at = now()
		  WHERE professional_id = $1 AND slot_time = $2`,
		h.ProfessionalID, h.StartTime,
	)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) SetSlot(ctx context.Context, professionalID string, at time.Time, available bool) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO availability (professional_id, slot_time, is_available)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (professional_id, slot_time)
		 DO UPDATE SET is_available = EXCLUDED.is_available, updated_at = now()`,
		professionalID, at, available,
	)
	if err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}
	return nil
}

var _ Ledger = (*PostgresLedger)(nil)

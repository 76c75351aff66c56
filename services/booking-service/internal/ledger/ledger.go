// Package ledger owns availability records: which slots a professional has
// and whether each is currently open. Claiming a slot is the single contended
// operation in the booking path and must be atomic per (professional, time).
package ledger

import (
	"context"
	"time"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

// Handle identifies a successfully claimed slot, for later release.
type Handle struct {
	ProfessionalID string
	StartTime      time.Time
}

type Ledger interface {
	// ListOpenSlots returns the professional's open slots within [from, to),
	// ordered by start time ascending. Unknown professional yields ErrNotFound.
	ListOpenSlots(ctx context.Context, professionalID string, from, to time.Time) ([]domain.Slot, error)

	// Claim flips exactly one open slot to unavailable. A slot that does not
	// exist and a slot already taken both fail with ErrSlotUnavailable;
	// callers cannot tell the two apart.
	Claim(ctx context.Context, professionalID string, at time.Time) (Handle, error)

	// Release reopens a claimed slot. Releasing an already-open slot is a
	// no-op; releasing a slot that does not exist is ErrNotFound.
	Release(ctx context.Context, h Handle) error

	// SetSlot upserts a slot with the given open/closed state. Used by
	// professionals publishing availability ahead of demand.
	SetSlot(ctx context.Context, professionalID string, at time.Time, available bool) error
}

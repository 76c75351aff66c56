package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

// CompletionSweeper drives the system transition CONFIRMED → COMPLETED once
// an appointment's scheduled time has passed. The per-row compare-and-set
// makes the sweep idempotent and safe to run on several instances at once: a
// row that was cancelled in the meantime simply no longer matches.
type CompletionSweeper struct {
	engine    *Engine
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewCompletionSweeper(e *Engine, logger *slog.Logger, cfg SweeperConfig) *CompletionSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &CompletionSweeper{
		engine:    e,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (s *CompletionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("completion sweep failed", "err", err)
			}
		}
	}
}

// Sweep runs one pass. Exposed separately so tests can drive it directly.
func (s *CompletionSweeper) Sweep(ctx context.Context) error {
	now := s.engine.now()
	due, err := s.engine.appointments.ListDueForCompletion(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	for _, appt := range due {
		if _, err := s.engine.transition(ctx, appt.ID, domain.StatusCompleted, nil); err != nil {
			// A concurrent cancellation shows up as an illegal transition
			// and is expected; anything else is logged.
			if !domain.IsIllegalTransition(err) {
				s.logger.Error("complete appointment failed", "appointment_id", appt.ID, "err", err)
			}
		}
	}
	return nil
}

package engine

import (
	"context"
	"log/slog"

	"github.com/obiefoma/slotbook/services/booking-service/internal/outbox"
)

// OutboxSink writes events to the transactional outbox. Insert failures are
// logged, not surfaced: delivery must never roll back a finished transition.
type OutboxSink struct {
	repo   *outbox.Repository
	logger *slog.Logger
}

func NewOutboxSink(repo *outbox.Repository, logger *slog.Logger) *OutboxSink {
	return &OutboxSink{repo: repo, logger: logger}
}

func (s *OutboxSink) Emit(ctx context.Context, evt outbox.Event) {
	if err := s.repo.Insert(ctx, evt); err != nil {
		s.logger.Error("outbox insert failed",
			"event_type", evt.EventType,
			"aggregate_id", evt.AggregateID,
			"err", err,
		)
	}
}

var _ EventSink = (*OutboxSink)(nil)

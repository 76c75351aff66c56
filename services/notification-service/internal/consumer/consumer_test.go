package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

// fakeSource hands out a fixed message sequence and cancels the run context
// once drained, so Run returns.
type fakeSource struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeSource) Close() error { return nil }

func TestOffsetCommittedOnlyAfterHandlerSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		cancel: cancel,
		msgs: []kafka.Message{
			{Topic: "booking.appointment.created.v1", Offset: 7, Value: []byte("fails")},
			{Topic: "booking.appointment.created.v1", Offset: 8, Value: []byte("succeeds")},
		},
	}

	var handled []string
	c := &Consumer{
		source: src,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: func(_ context.Context, msg kafka.Message) error {
			handled = append(handled, string(msg.Value))
			if string(msg.Value) == "fails" {
				return errors.New("storage unavailable")
			}
			return nil
		},
	}
	c.Run(ctx)

	if len(handled) != 2 {
		t.Fatalf("want both messages handled, got %v", handled)
	}
	if len(src.committed) != 1 || src.committed[0].Offset != 8 {
		t.Fatalf("only the handled offset should be committed, got %+v", src.committed)
	}
}

func TestAllOffsetsCommittedOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1}, {Offset: 2}, {Offset: 3},
		},
	}
	c := &Consumer{
		source:  src,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: func(context.Context, kafka.Message) error { return nil },
	}
	c.Run(ctx)

	if len(src.committed) != 3 {
		t.Fatalf("want 3 commits, got %d", len(src.committed))
	}
}

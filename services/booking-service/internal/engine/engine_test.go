package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
	"github.com/obiefoma/slotbook/services/booking-service/internal/ledger"
	"github.com/obiefoma/slotbook/services/booking-service/internal/outbox"
	"github.com/obiefoma/slotbook/services/booking-service/internal/storage"
)

type recordingSink struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (s *recordingSink) Emit(_ context.Context, evt outbox.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	engine *Engine
	ledger *ledger.MemoryLedger
	store  *storage.MemoryAppointments
	dir    *storage.MemoryDirectory
	sink   *recordingSink
	now    time.Time
	mu     sync.Mutex
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: ledger.NewMemoryLedger(),
		store:  storage.NewMemoryAppointments(),
		dir:    storage.NewMemoryDirectory(),
		sink:   &recordingSink{},
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = New(f.ledger, f.store, f.dir, f.sink, logger).WithClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})

	f.dir.AddUser(domain.User{ID: "user-a", Role: domain.RoleUser, Active: true})
	f.dir.AddUser(domain.User{ID: "user-b", Role: domain.RoleUser, Active: true})
	f.dir.AddUser(domain.User{ID: "prof-user", Role: domain.RoleProfessional, Active: true})
	f.dir.AddProfessional(domain.Professional{ID: "prof-1", UserID: "prof-user", Active: true})
	return f
}

func (f *fixture) openSlot(t *testing.T, at time.Time) {
	t.Helper()
	if err := f.ledger.SetSlot(context.Background(), "prof-1", at, true); err != nil {
		t.Fatalf("SetSlot failed: %v", err)
	}
}

func TestBookCreatesPendingAndClaimsSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if appt.Status != domain.StatusPending {
		t.Fatalf("new appointment should be PENDING, got %s", appt.Status)
	}
	if f.ledger.Available("prof-1", at) {
		t.Fatal("slot should be claimed after booking")
	}
	if got := f.sink.types(); len(got) != 1 || got[0] != outbox.EventAppointmentCreated {
		t.Fatalf("expected a created event, got %v", got)
	}
}

func TestBookValidatesParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	if _, err := f.engine.Book(ctx, "ghost", "prof-1", at); !errors.Is(err, domain.ErrInvalidUser) {
		t.Fatalf("unknown user should be ErrInvalidUser, got %v", err)
	}
	if _, err := f.engine.Book(ctx, "user-a", "prof-ghost", at); !errors.Is(err, domain.ErrInvalidProfessional) {
		t.Fatalf("unknown professional should be ErrInvalidProfessional, got %v", err)
	}

	f.dir.AddProfessional(domain.Professional{ID: "prof-2", UserID: "prof-user-2", Active: false})
	if _, err := f.engine.Book(ctx, "user-a", "prof-2", at); !errors.Is(err, domain.ErrInvalidProfessional) {
		t.Fatalf("inactive professional should be ErrInvalidProfessional, got %v", err)
	}
}

func TestBookSurfacesDirectoryErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	// A lookup failure is not the same as an unknown professional.
	f.dir.FailProfessionalsWith(errors.New("connection refused"))
	_, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err == nil || errors.Is(err, domain.ErrInvalidProfessional) {
		t.Fatalf("transient lookup error must not be ErrInvalidProfessional, got %v", err)
	}
	if f.ledger.Available("prof-1", at) != true {
		t.Fatal("slot must stay open when validation never completed")
	}

	f.dir.FailProfessionalsWith(nil)
	if _, err := f.engine.Book(ctx, "user-a", "prof-1", at); err != nil {
		t.Fatalf("Book after recovery failed: %v", err)
	}
}

func TestBookRollsBackClaimOnCreateFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	f.store.FailCreatesWith(errors.New("write failed"))
	if _, err := f.engine.Book(ctx, "user-a", "prof-1", at); err == nil {
		t.Fatal("expected Book to fail")
	}
	if !f.ledger.Available("prof-1", at) {
		t.Fatal("slot should be released after a failed booking")
	}
	if got := f.sink.types(); len(got) != 0 {
		t.Fatalf("no events should be emitted on failure, got %v", got)
	}

	// The slot is usable again.
	f.store.FailCreatesWith(nil)
	if _, err := f.engine.Book(ctx, "user-b", "prof-1", at); err != nil {
		t.Fatalf("rebooking after rollback should succeed, got %v", err)
	}
}

func TestConcurrentBookingsYieldOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.Book(ctx, "user-a", "prof-1", at)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrSlotUnavailable):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != n-1 {
		t.Fatalf("want 1 winner and %d SlotUnavailable, got %d/%d", n-1, wins, losses)
	}
}

func TestConfirmRequiresProfessional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, err := f.engine.Confirm(ctx, appt.ID, domain.Actor{UserID: "user-a", Role: domain.RoleUser}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("owner confirming should be forbidden, got %v", err)
	}
	confirmed, err := f.engine.Confirm(ctx, appt.ID, domain.Actor{UserID: "prof-user", Role: domain.RoleProfessional})
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if confirmed.Status != domain.StatusConfirmed {
		t.Fatalf("want CONFIRMED, got %s", confirmed.Status)
	}
}

func TestCancelReleasesSlotAndSlotIsRebookable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.engine.Confirm(ctx, appt.ID, domain.Actor{UserID: "prof-user", Role: domain.RoleProfessional}); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	cancelled, err := f.engine.Cancel(ctx, appt.ID, domain.Actor{UserID: "user-a", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("want CANCELLED with timestamp, got %+v", cancelled)
	}
	if !f.ledger.Available("prof-1", at) {
		t.Fatal("slot should reopen after cancellation")
	}

	if _, err := f.engine.Book(ctx, "user-b", "prof-1", at); err != nil {
		t.Fatalf("slot should be rebookable after cancellation, got %v", err)
	}
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if _, err := f.engine.Cancel(ctx, appt.ID, domain.Actor{UserID: "user-b", Role: domain.RoleUser}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger cancelling should be forbidden, got %v", err)
	}
	if _, err := f.engine.Cancel(ctx, appt.ID, domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("admin should be able to cancel, got %v", err)
	}
	if _, err := f.engine.Cancel(ctx, "no-such-id", domain.Actor{UserID: "user-a", Role: domain.RoleUser}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown appointment should be ErrNotFound, got %v", err)
	}
}

func TestCancelTerminalAppointmentIsIllegal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	actor := domain.Actor{UserID: "user-a", Role: domain.RoleUser}
	if _, err := f.engine.Cancel(ctx, appt.ID, actor); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := f.engine.Cancel(ctx, appt.ID, actor); !domain.IsIllegalTransition(err) {
		t.Fatalf("double cancel should be an illegal transition, got %v", err)
	}
}

func TestFullBookingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.engine.Book(ctx, "user-b", "prof-1", at); !errors.Is(err, domain.ErrSlotUnavailable) {
		t.Fatalf("second booking should lose, got %v", err)
	}
	if _, err := f.engine.Confirm(ctx, appt.ID, domain.Actor{UserID: "prof-user", Role: domain.RoleProfessional}); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := NewCompletionSweeper(f.engine, logger, SweeperConfig{})

	// Sweeping before the scheduled time must not complete anything.
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	owner := domain.Actor{UserID: "user-a", Role: domain.RoleUser}
	current, _ := f.engine.Get(ctx, appt.ID, owner)
	if current.Status != domain.StatusConfirmed {
		t.Fatalf("appointment completed ahead of schedule: %s", current.Status)
	}

	f.advance(2 * time.Hour)
	if err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	current, _ = f.engine.Get(ctx, appt.ID, owner)
	if current.Status != domain.StatusCompleted {
		t.Fatalf("want COMPLETED after the time gate, got %s", current.Status)
	}

	want := []string{
		outbox.EventAppointmentCreated,
		outbox.EventAppointmentConfirmed,
		outbox.EventAppointmentCompleted,
	}
	got := f.sink.types()
	if len(got) != len(want) {
		t.Fatalf("event stream mismatch: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSweepSkipsCancelledAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := f.engine.Cancel(ctx, appt.ID, domain.Actor{UserID: "user-a", Role: domain.RoleUser}); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	f.advance(2 * time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := NewCompletionSweeper(f.engine, logger, SweeperConfig{}).Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	current, _ := f.engine.Get(ctx, appt.ID, domain.Actor{UserID: "user-a", Role: domain.RoleUser})
	if current.Status != domain.StatusCancelled {
		t.Fatalf("cancelled appointment must stay CANCELLED, got %s", current.Status)
	}
}

func TestGetAppointmentVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(time.Hour)
	f.openSlot(t, at)

	appt, err := f.engine.Book(ctx, "user-a", "prof-1", at)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	for _, actor := range []domain.Actor{
		{UserID: "user-a", Role: domain.RoleUser},
		{UserID: "prof-user", Role: domain.RoleProfessional},
		{UserID: "admin-1", Role: domain.RoleAdmin},
	} {
		got, err := f.engine.Get(ctx, appt.ID, actor)
		if err != nil || got.ID != appt.ID {
			t.Fatalf("%s should see the appointment, got %v/%v", actor.Role, got, err)
		}
	}
	if _, err := f.engine.Get(ctx, appt.ID, domain.Actor{UserID: "user-b", Role: domain.RoleUser}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("stranger should be forbidden, got %v", err)
	}
	if _, err := f.engine.Get(ctx, "no-such-id", domain.Actor{UserID: "user-a", Role: domain.RoleUser}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown appointment should be ErrNotFound, got %v", err)
	}
}

func TestSetAvailabilityAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.now.Add(3 * time.Hour)

	if err := f.engine.SetAvailability(ctx, "prof-1", at, true, domain.Actor{UserID: "user-a", Role: domain.RoleUser}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-owner publishing a slot should be forbidden, got %v", err)
	}
	if err := f.engine.SetAvailability(ctx, "prof-1", at, true, domain.Actor{UserID: "prof-user", Role: domain.RoleProfessional}); err != nil {
		t.Fatalf("SetAvailability failed: %v", err)
	}
	slots, err := f.engine.OpenSlots(ctx, "prof-1", f.now, f.now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("OpenSlots failed: %v", err)
	}
	if len(slots) != 1 || !slots[0].StartTime.Equal(at.UTC()) {
		t.Fatalf("published slot should be listed, got %v", slots)
	}
	if got := f.sink.types(); len(got) != 1 || got[0] != outbox.EventSlotUpdated {
		t.Fatalf("expected a slot updated event, got %v", got)
	}
}

package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

// MemoryLedger keeps slots in memory. Used in tests and single-node setups.
// Claims resolve with a per-slot compare-and-set, so claims on unrelated
// slots never block each other.
type MemoryLedger struct {
	mu            sync.RWMutex
	slots         map[slotKey]*slotState
	professionals map[string]bool
}

type slotKey struct {
	professionalID string
	at             int64 // unix nanos, UTC
}

type slotState struct {
	at   time.Time
	open atomic.Bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		slots:         map[slotKey]*slotState{},
		professionals: map[string]bool{},
	}
}

// AddProfessional registers a professional so that listing for it succeeds
// even before any slots exist.
func (l *MemoryLedger) AddProfessional(professionalID string) {
	l.mu.Lock()
	l.professionals[professionalID] = true
	l.mu.Unlock()
}

func key(professionalID string, at time.Time) slotKey {
	return slotKey{professionalID: professionalID, at: at.UTC().UnixNano()}
}

func (l *MemoryLedger) ListOpenSlots(_ context.Context, professionalID string, from, to time.Time) ([]domain.Slot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.professionals[professionalID] {
		return nil, domain.ErrNotFound
	}

	var out []domain.Slot
	for k, s := range l.slots {
		if k.professionalID != professionalID || !s.open.Load() {
			continue
		}
		if s.at.Before(from) || !s.at.Before(to) {
			continue
		}
		out = append(out, domain.Slot{ProfessionalID: professionalID, StartTime: s.at, Available: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (l *MemoryLedger) Claim(_ context.Context, professionalID string, at time.Time) (Handle, error) {
	l.mu.RLock()
	s := l.slots[key(professionalID, at)]
	l.mu.RUnlock()

	if s == nil || !s.open.CompareAndSwap(true, false) {
		return Handle{}, domain.ErrSlotUnavailable
	}
	return Handle{ProfessionalID: professionalID, StartTime: at}, nil
}

func (l *MemoryLedger) Release(_ context.Context, h Handle) error {
	l.mu.RLock()
	s := l.slots[key(h.ProfessionalID, h.StartTime)]
	l.mu.RUnlock()

	if s == nil {
		return domain.ErrNotFound
	}
	s.open.Store(true)
	return nil
}

func (l *MemoryLedger) SetSlot(_ context.Context, professionalID string, at time.Time, available bool) error {
	k := key(professionalID, at)
	l.mu.Lock()
	defer l.mu.Unlock()

	l.professionals[professionalID] = true
	if s, ok := l.slots[k]; ok {
		s.open.Store(available)
		return nil
	}
	s := &slotState{at: at.UTC()}
	s.open.Store(available)
	l.slots[k] = s
	return nil
}

// Available reports the current flag of a slot; false if the slot is unknown.
func (l *MemoryLedger) Available(professionalID string, at time.Time) bool {
	l.mu.RLock()
	s := l.slots[key(professionalID, at)]
	l.mu.RUnlock()
	return s != nil && s.open.Load()
}

var _ Ledger = (*MemoryLedger)(nil)

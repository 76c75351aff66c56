package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/obiefoma/slotbook/services/booking-service/internal/domain"
)

// MemoryDirectory is an in-memory Directory for tests.
type MemoryDirectory struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	professionals map[string]domain.Professional

	failProfessional error // when set, Professional returns this error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:         map[string]domain.User{},
		professionals: map[string]domain.Professional{},
	}
}

func (d *MemoryDirectory) AddUser(u domain.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) AddProfessional(p domain.Professional) {
	d.mu.Lock()
	d.professionals[p.ID] = p
	d.mu.Unlock()
}

func (d *MemoryDirectory) UserExists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	return ok && u.Active, nil
}

// FailProfessionalsWith makes subsequent Professional calls fail, for tests
// that exercise transient lookup errors.
func (d *MemoryDirectory) FailProfessionalsWith(err error) {
	d.mu.Lock()
	d.failProfessional = err
	d.mu.Unlock()
}

func (d *MemoryDirectory) Professional(_ context.Context, professionalID string) (*domain.Professional, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failProfessional != nil {
		return nil, d.failProfessional
	}
	p, ok := d.professionals[professionalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := p
	return &cp, nil
}

// MemoryAppointments is an in-memory appointment store for tests. The status
// compare-and-set is done under the lock, matching the database semantics.
type MemoryAppointments struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Appointment
	order []string

	failCreate error // when set, Create returns this error
}

func NewMemoryAppointments() *MemoryAppointments {
	return &MemoryAppointments{byID: map[string]*domain.Appointment{}}
}

// FailCreatesWith makes subsequent Create calls fail, for rollback tests.
func (s *MemoryAppointments) FailCreatesWith(err error) {
	s.mu.Lock()
	s.failCreate = err
	s.mu.Unlock()
}

func (s *MemoryAppointments) Create(_ context.Context, a *domain.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	cp := *a
	s.byID[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryAppointments) Get(_ context.Context, id string) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAppointments) TransitionStatus(_ context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = at
	if to == domain.StatusCancelled {
		cancelled := at
		a.CancelledAt = &cancelled
	}
	return true, nil
}

func (s *MemoryAppointments) ListByUser(_ context.Context, userID string) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, id := range s.order {
		if a := s.byID[id]; a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.After(out[j].ScheduledTime) })
	return out, nil
}

func (s *MemoryAppointments) ListAll(_ context.Context, limit int) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for i := len(s.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, *s.byID[s.order[i]])
	}
	return out, nil
}

func (s *MemoryAppointments) ListDueForCompletion(_ context.Context, now time.Time, limit int) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, id := range s.order {
		a := s.byID[id]
		if a.Status == domain.StatusConfirmed && !a.ScheduledTime.After(now) {
			out = append(out, *a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps appointments in a map under a single mutex. It exists for
// tests and the demo deployment mode; nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	events []EventLog
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts: make(map[uuid.UUID]*Appointment),
	}
}

func (s *MemoryStore) Put(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *appt
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.appts[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (s *MemoryStore) GetByProviderReference(ctx context.Context, ref string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, appt := range s.appts {
		if appt.ProviderReference != nil && *appt.ProviderReference == ref {
			cp := *appt
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if !IsForwardTransition(appt.Status, to) {
		return false, nil
	}
	appt.Status = to
	appt.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) SetProviderReference(ctx context.Context, id uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if appt.ProviderReference == nil {
		appt.ProviderReference = &ref
		appt.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Appointment
	for _, appt := range s.appts {
		if appt.Status == StatusPendingPayment && appt.UpdatedAt.Before(cutoff) {
			result = append(result, *appt)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertEvent(ctx context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ev.ID = s.nextID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the recorded event log, used by tests to assert
// on anomalies.
func (s *MemoryStore) Events() []EventLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]EventLog, len(s.events))
	copy(out, s.events)
	return out
}

package calls

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store and AppointmentFinder useful for tests
// and local runs. It is not intended for production use.
type MemoryStore struct {
	mu           sync.Mutex
	calls        map[string]Call // callID -> call
	appointments map[string]Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:        make(map[string]Call),
		appointments: make(map[string]Appointment),
	}
}

func (m *MemoryStore) AddAppointment(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

func (m *MemoryStore) FindAppointment(_ context.Context, appointmentID string) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[appointmentID]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (m *MemoryStore) Create(_ context.Context, c Call) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirrors the partial unique index on active calls per appointment.
	for _, existing := range m.calls {
		if existing.AppointmentID == c.AppointmentID && existing.Status.IsActive() {
			return Call{}, ErrActiveCallExists
		}
	}
	m.calls[c.CallID] = c
	return c, nil
}

func (m *MemoryStore) FindByCallID(_ context.Context, callID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) FindActiveByAppointment(_ context.Context, appointmentID string) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.AppointmentID == appointmentID && c.Status.IsActive() {
			return c, true, nil
		}
	}
	return Call{}, false, nil
}

func (m *MemoryStore) Transition(_ context.Context, callID string, from []Status, u Update) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	if !slices.Contains(from, c.Status) {
		return c, ErrInvalidTransition
	}
	c.Status = u.To
	if u.StartTime != nil {
		c.StartTime = u.StartTime
	}
	if u.EndTime != nil {
		c.EndTime = u.EndTime
	}
	if u.EndReason != "" {
		c.EndReason = u.EndReason
	}
	c.UpdatedAt = u.At
	m.calls[callID] = c
	return c, nil
}

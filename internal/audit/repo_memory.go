package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrDuplicateEvent = errors.New("audit: event already recorded")

// MemoryRepo keeps call trails in process. Used by tests and local runs
// without a database.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	byCall map[string][]int // callID -> positions in events
	ids    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byCall: make(map[string][]int), ids: make(map[string]struct{})}
}

// Append stores e. An id that was already recorded is refused so an event
// can never be overwritten.
func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[e.ID]; dup && e.ID != "" {
		return ErrDuplicateEvent
	}
	r.ids[e.ID] = struct{}{}
	r.byCall[e.CallID] = append(r.byCall[e.CallID], len(r.events))
	r.events = append(r.events, e)
	return nil
}

// ForCall returns a call's events oldest first.
func (r *MemoryRepo) ForCall(_ context.Context, callID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.byCall[callID]))
	for _, i := range r.byCall[callID] {
		out = append(out, r.events[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Events returns every event in insertion order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

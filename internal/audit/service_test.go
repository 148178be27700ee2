package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_AppendRequiresCallAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeCallEnded}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{CallID: "c"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_LogTransition(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogTransition(context.Background(), EventTypeCallAccepted, "call-1", "appt-1", "pat-1", "patient", "accepted"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
	if evs[0].Type != EventTypeCallAccepted || evs[0].ActorUserID != "pat-1" {
		t.Fatalf("unexpected event %+v", evs[0])
	}
}

func TestService_NilRepo(t *testing.T) {
	svc := NewService(nil)
	if err := svc.LogTransition(context.Background(), EventTypeCallEnded, "c", "", "", "", "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_TrailIsPerCallAndOrdered(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	// Appended out of order on purpose.
	for _, e := range []Event{
		{CallID: "call-1", Type: EventTypeCallEnded, CreatedAt: base.Add(2 * time.Minute)},
		{CallID: "call-2", Type: EventTypeCallInitiated, CreatedAt: base},
		{CallID: "call-1", Type: EventTypeCallInitiated, CreatedAt: base},
		{CallID: "call-1", Type: EventTypeCallAccepted, CreatedAt: base.Add(time.Minute)},
	} {
		if err := svc.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	trail, err := svc.Trail(ctx, "call-1")
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	want := []EventType{EventTypeCallInitiated, EventTypeCallAccepted, EventTypeCallEnded}
	if len(trail) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(trail))
	}
	for i, typ := range want {
		if trail[i].Type != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, trail[i].Type)
		}
	}

	empty, err := svc.Trail(ctx, "call-9")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil trail, got %v %v", empty, err)
	}
	if _, err := svc.Trail(ctx, ""); err == nil {
		t.Fatalf("expected error for empty call id")
	}
}

func TestMemoryRepo_RefusesDuplicateID(t *testing.T) {
	repo := NewMemoryRepo()
	e := Event{ID: "ev-1", CallID: "call-1", Type: EventTypeCallInitiated}
	if err := repo.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	e.Type = EventTypeCallEnded
	if err := repo.Append(context.Background(), e); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if evs := repo.Events(); len(evs) != 1 || evs[0].Type != EventTypeCallInitiated {
		t.Fatalf("original event must survive: %+v", evs)
	}
}

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ForCall(ctx context.Context, callID string) ([]Event, error)
}

// Service records call lifecycle audit information.
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogTransition records a status change made by actor (empty for system actions).
func (s *Service) LogTransition(ctx context.Context, typ EventType, callID, appointmentID, actorUserID, actorRole, message string) error {
	return s.Append(ctx, Event{
		CallID:        callID,
		Type:          typ,
		ActorUserID:   actorUserID,
		ActorRole:     actorRole,
		AppointmentID: appointmentID,
		Message:       message,
	})
}

// Trail returns the recorded transitions of one call, oldest first.
func (s *Service) Trail(ctx context.Context, callID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if callID == "" {
		return nil, ErrInvalidEvent
	}
	events, err := s.repo.ForCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

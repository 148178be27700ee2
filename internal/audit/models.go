package audit

import "time"

// Event is an immutable, append-only audit log record of a call lifecycle change.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required.
// - audit is best-effort; do not block call transitions on audit failures.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is empty for system-driven transitions (disconnect, ring timeout).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	AppointmentID string `json:"appointment_id,omitempty" db:"appointment_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated EventType = "call_initiated"
	EventTypeCallAccepted  EventType = "call_accepted"
	EventTypeCallDeclined  EventType = "call_declined"
	EventTypeCallEnded     EventType = "call_ended"
)

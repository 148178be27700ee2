package calls

import (
	"context"
	"time"
)

// Update describes what a transition writes besides the status.
type Update struct {
	To        Status
	StartTime *time.Time
	EndTime   *time.Time
	EndReason string
	At        time.Time
}

// Store persists call records.
//
// Transition is a conditional write: it applies u only while the stored
// status is one of from, and reports ErrInvalidTransition otherwise
// (ErrNotFound if the call does not exist). This is what serialises
// concurrent accept/decline/end requests for the same call.
type Store interface {
	Create(ctx context.Context, c Call) (Call, error)
	FindByCallID(ctx context.Context, callID string) (Call, error)
	FindActiveByAppointment(ctx context.Context, appointmentID string) (Call, bool, error)
	Transition(ctx context.Context, callID string, from []Status, u Update) (Call, error)
}

// AppointmentFinder resolves bookings.
type AppointmentFinder interface {
	FindAppointment(ctx context.Context, appointmentID string) (Appointment, error)
}

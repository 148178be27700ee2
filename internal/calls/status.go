package calls

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusEnded     Status = "ended"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusEnded
}

// IsActive reports whether the call still occupies its appointment.
func (s Status) IsActive() bool {
	return s == StatusInitiated || s == StatusAccepted
}

// Transition events.
const (
	EventAccept      = "accept"
	EventDecline     = "decline"
	EventEnd         = "end"
	EventRingTimeout = "ring_timeout"
)

/*
Transition graph:

	(create) -> [initiated]
	[initiated] --accept--> [accepted]
	[initiated] --decline|ring_timeout--> [declined]
	[initiated|accepted] --end--> [ended]

declined and ended are terminal.
*/
var transitions = fsm.Events{
	{Name: EventAccept, Src: []string{string(StatusInitiated)}, Dst: string(StatusAccepted)},
	{Name: EventDecline, Src: []string{string(StatusInitiated)}, Dst: string(StatusDeclined)},
	{Name: EventRingTimeout, Src: []string{string(StatusInitiated)}, Dst: string(StatusDeclined)},
	{Name: EventEnd, Src: []string{string(StatusInitiated), string(StatusAccepted)}, Dst: string(StatusEnded)},
}

// nextStatus runs event against a machine positioned at from.
func nextStatus(from Status, event string) (Status, error) {
	m := fsm.NewFSM(string(from), transitions, fsm.Callbacks{})
	if err := m.Event(context.Background(), event); err != nil {
		var invalid fsm.InvalidEventError
		var unknown fsm.UnknownEventError
		if errors.As(err, &invalid) || errors.As(err, &unknown) {
			return from, ErrInvalidTransition
		}
		return from, err
	}
	return Status(m.Current()), nil
}

// sources lists the statuses event may fire from; used as the expected
// prior state of the conditional write.
func sources(event string) []Status {
	for _, e := range transitions {
		if e.Name != event {
			continue
		}
		out := make([]Status, len(e.Src))
		for i, s := range e.Src {
			out[i] = Status(s)
		}
		return out
	}
	return nil
}

func destination(event string) Status {
	for _, e := range transitions {
		if e.Name == event {
			return Status(e.Dst)
		}
	}
	return ""
}

package calls

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/rbac"

	"github.com/google/uuid"
)

// MediaController is the slice of the media registry the state machine drives.
// Once CleanupCall has run for a call, GetOrCreateRoutingContext must refuse it.
type MediaController interface {
	GetOrCreateRoutingContext(callID string) (media.RoutingContextInfo, error)
	CleanupCall(callID string)
}

// Auditor records transitions; failures are logged and ignored.
type Auditor interface {
	LogTransition(ctx context.Context, typ audit.EventType, callID, appointmentID, actorUserID, actorRole, message string) error
}

type TransitionRecorder interface {
	CallTransition(status string)
}

type Options struct {
	Limiter Limiter
	Audit   Auditor
	Metrics TransitionRecorder
	Logger  *slog.Logger
	// RingTimeout of zero disables automatic decline of unanswered calls.
	RingTimeout time.Duration
	Clock       func() time.Time
}

// Orchestrator validates call transitions against the persisted record and
// drives media setup and teardown.
type Orchestrator struct {
	store   Store
	appts   AppointmentFinder
	media   MediaController
	limiter Limiter
	audit   Auditor
	metrics TransitionRecorder
	log     *slog.Logger
	clock   func() time.Time

	ringTimeout   time.Duration
	notifyMu      sync.RWMutex
	onRingTimeout func(Call)

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func NewOrchestrator(store Store, appts AppointmentFinder, mc MediaController, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		appts:       appts,
		media:       mc,
		limiter:     opts.Limiter,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		clock:       opts.Clock,
		ringTimeout: opts.RingTimeout,
		timers:      make(map[string]*time.Timer),
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// OnRingTimeout registers the callback told about calls declined for lack of an answer.
func (o *Orchestrator) OnRingTimeout(fn func(Call)) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.onRingTimeout = fn
}

// Find returns a call without any authorization check.
func (o *Orchestrator) Find(ctx context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrMissingCallID
	}
	return o.store.FindByCallID(ctx, callID)
}

// Authorize returns the call if actor is one of its participants.
func (o *Orchestrator) Authorize(ctx context.Context, actor auth.Identity, callID string) (Call, error) {
	c, err := o.Find(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if !c.IsParticipant(actor.UserID) {
		return Call{}, ErrNotParticipant
	}
	return c, nil
}

// Initiate creates a ringing call for an audio appointment owned by the doctor.
func (o *Orchestrator) Initiate(ctx context.Context, actor auth.Identity, appointmentID string) (Call, error) {
	if appointmentID == "" {
		return Call{}, ErrMissingAppointment
	}
	if actor.Role != rbac.RoleDoctor {
		return Call{}, ErrDoctorOnly
	}

	appt, err := o.appts.FindAppointment(ctx, appointmentID)
	if err != nil {
		return Call{}, err
	}
	if appt.DoctorID != actor.UserID {
		return Call{}, ErrNotYourAppointment
	}
	if appt.ConsultationMode != ConsultationModeAudio {
		return Call{}, ErrNotAudioAppointment
	}

	if _, ok, err := o.store.FindActiveByAppointment(ctx, appointmentID); err != nil {
		return Call{}, err
	} else if ok {
		return Call{}, ErrActiveCallExists
	}

	if err := o.acquireSlot(ctx, appt.DoctorID); err != nil {
		return Call{}, err
	}

	now := o.clock().UTC()
	c, err := o.store.Create(ctx, Call{
		ID:            uuid.NewString(),
		CallID:        uuid.NewString(),
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Status:        StatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		o.releaseSlot(ctx, appt.DoctorID)
		return Call{}, err
	}

	o.recorded(ctx, c, audit.EventTypeCallInitiated, actor, "call initiated")
	o.armRingTimer(c.CallID)
	return c, nil
}

// Accept moves a ringing call to accepted. Only the named patient may accept,
// and only while the call is still exactly initiated. If the call is ended
// before its media is set up, Accept reports the media error.
func (o *Orchestrator) Accept(ctx context.Context, actor auth.Identity, callID string) (Call, error) {
	c, err := o.Find(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if actor.UserID != c.PatientID {
		return Call{}, ErrNotPatient
	}

	now := o.clock().UTC()
	c, err = o.transition(ctx, c, EventAccept, Update{StartTime: &now, At: now})
	if err != nil {
		return Call{}, err
	}

	o.disarmRingTimer(c.CallID)
	o.recorded(ctx, c, audit.EventTypeCallAccepted, actor, "call accepted")
	if _, err := o.media.GetOrCreateRoutingContext(c.CallID); err != nil {
		o.log.Info("call ended before media setup", "call_id", c.CallID, "err", err)
		return Call{}, err
	}
	return c, nil
}

// Decline rejects a ringing call. Declining a call that is already declined
// or ended succeeds without changes (changed == false).
func (o *Orchestrator) Decline(ctx context.Context, actor auth.Identity, callID string) (Call, bool, error) {
	c, err := o.Find(ctx, callID)
	if err != nil {
		return Call{}, false, err
	}
	if actor.UserID != c.PatientID {
		return Call{}, false, ErrNotPatient
	}
	if c.Status.IsTerminal() {
		return c, false, nil
	}

	now := o.clock().UTC()
	next, err := o.transition(ctx, c, EventDecline, Update{EndReason: ReasonDeclinedByPatient, At: now})
	if err != nil {
		if next.Status.IsTerminal() && errors.Is(err, ErrInvalidTransition) {
			return next, false, nil
		}
		return Call{}, false, err
	}

	o.finish(ctx, next)
	o.recorded(ctx, next, audit.EventTypeCallDeclined, actor, "call declined")
	return next, true, nil
}

// End hangs up a call. Ending a call that is already terminal succeeds
// without changes (changed == false).
func (o *Orchestrator) End(ctx context.Context, actor auth.Identity, callID string) (Call, bool, error) {
	c, err := o.Find(ctx, callID)
	if err != nil {
		return Call{}, false, err
	}
	if !c.IsParticipant(actor.UserID) {
		return Call{}, false, ErrNotParticipant
	}
	return o.end(ctx, c, actor, ReasonEndedByParticipant)
}

// Abandon ends a still-active call on behalf of the system, e.g. when a
// participant's socket drops.
func (o *Orchestrator) Abandon(ctx context.Context, callID, reason string) (Call, bool, error) {
	c, err := o.Find(ctx, callID)
	if err != nil {
		return Call{}, false, err
	}
	return o.end(ctx, c, auth.Identity{}, reason)
}

func (o *Orchestrator) end(ctx context.Context, c Call, actor auth.Identity, reason string) (Call, bool, error) {
	if c.Status.IsTerminal() {
		return c, false, nil
	}

	now := o.clock().UTC()
	next, err := o.transition(ctx, c, EventEnd, Update{EndTime: &now, EndReason: reason, At: now})
	if err != nil {
		if next.Status.IsTerminal() && errors.Is(err, ErrInvalidTransition) {
			return next, false, nil
		}
		return Call{}, false, err
	}

	o.finish(ctx, next)
	o.recorded(ctx, next, audit.EventTypeCallEnded, actor, reason)
	return next, true, nil
}

// transition checks event against the status just read, then commits it
// with a conditional write. On a lost race the stored call is returned
// along with ErrInvalidTransition.
func (o *Orchestrator) transition(ctx context.Context, c Call, event string, u Update) (Call, error) {
	to, err := nextStatus(c.Status, event)
	if err != nil {
		return c, err
	}
	u.To = to

	next, err := o.store.Transition(ctx, c.CallID, sources(event), u)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			o.log.Info("call transition lost race", "call_id", c.CallID, "event", event, "status", next.Status)
		}
		return next, err
	}
	return next, nil
}

// finish releases everything a call held once it reaches a terminal state.
// Only the winner of the terminal transition calls it, so it runs once per call.
func (o *Orchestrator) finish(ctx context.Context, c Call) {
	o.disarmRingTimer(c.CallID)
	o.media.CleanupCall(c.CallID)
	o.releaseSlot(ctx, c.DoctorID)
}

func (o *Orchestrator) acquireSlot(ctx context.Context, doctorID string) error {
	if o.limiter == nil {
		return nil
	}
	ok, err := o.limiter.Acquire(ctx, doctorID)
	if err != nil {
		// Fail open: a cache outage must not block consultations.
		o.log.Warn("call cap check failed", "doctor_id", doctorID, "err", err)
		return nil
	}
	if !ok {
		return ErrCallCapReached
	}
	return nil
}

func (o *Orchestrator) releaseSlot(ctx context.Context, doctorID string) {
	if o.limiter == nil {
		return
	}
	if err := o.limiter.Release(context.WithoutCancel(ctx), doctorID); err != nil {
		o.log.Warn("call cap release failed", "doctor_id", doctorID, "err", err)
	}
}

func (o *Orchestrator) recorded(ctx context.Context, c Call, typ audit.EventType, actor auth.Identity, message string) {
	if o.metrics != nil {
		o.metrics.CallTransition(c.Status.String())
	}
	o.log.Info("call transition", "call_id", c.CallID, "status", c.Status, "actor_user_id", actor.UserID, "reason", c.EndReason)
	if o.audit == nil {
		return
	}
	if err := o.audit.LogTransition(context.WithoutCancel(ctx), typ, c.CallID, c.AppointmentID, actor.UserID, actor.Role, message); err != nil {
		o.log.Warn("audit append failed", "call_id", c.CallID, "err", err)
	}
}

func (o *Orchestrator) armRingTimer(callID string) {
	if o.ringTimeout <= 0 {
		return
	}
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	o.timers[callID] = time.AfterFunc(o.ringTimeout, func() { o.ringExpired(callID) })
}

func (o *Orchestrator) disarmRingTimer(callID string) {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	if t, ok := o.timers[callID]; ok {
		t.Stop()
		delete(o.timers, callID)
	}
}

func (o *Orchestrator) ringExpired(callID string) {
	o.timersMu.Lock()
	delete(o.timers, callID)
	o.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := o.store.FindByCallID(ctx, callID)
	if err != nil {
		o.log.Warn("ring timeout lookup failed", "call_id", callID, "err", err)
		return
	}
	if c.Status != StatusInitiated {
		return
	}
	next, err := o.transition(ctx, c, EventRingTimeout, Update{EndReason: ReasonNoAnswer, At: o.clock().UTC()})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			o.log.Warn("ring timeout transition failed", "call_id", callID, "err", err)
		}
		return
	}

	o.finish(ctx, next)
	o.recorded(ctx, next, audit.EventTypeCallDeclined, auth.Identity{}, ReasonNoAnswer)

	o.notifyMu.RLock()
	fn := o.onRingTimeout
	o.notifyMu.RUnlock()
	if fn != nil {
		fn(next)
	}
}

// Stop cancels pending ring timers.
func (o *Orchestrator) Stop() {
	o.timersMu.Lock()
	defer o.timersMu.Unlock()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
}

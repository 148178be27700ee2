package signaling

import (
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/rbac"
)

func personalRoom(id auth.Identity) string { return rbac.PersonalRoom(id.Role, id.UserID) }

func roleRoom(id auth.Identity) string { return rbac.RoleRoom(id.Role) }

// callEvent is the payload of every call:* notification.
type callEvent struct {
	CallID        string         `json:"callId"`
	AppointmentID string         `json:"appointmentId"`
	DoctorID      string         `json:"doctorId"`
	PatientID     string         `json:"patientId"`
	Status        calls.Status   `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	From          *auth.Identity `json:"from,omitempty"`
	// TargetUserID is set on copies sent to a role room so receivers can
	// drop events meant for someone else.
	TargetUserID string `json:"targetUserId,omitempty"`
}

func newCallEvent(call calls.Call, from auth.Identity) callEvent {
	e := callEvent{
		CallID:        call.CallID,
		AppointmentID: call.AppointmentID,
		DoctorID:      call.DoctorID,
		PatientID:     call.PatientID,
		Status:        call.Status,
		Reason:        call.EndReason,
	}
	if from.UserID != "" {
		e.From = &from
	}
	return e
}

// notifyUser emits event twice: to the user's personal room, and to their
// role room tagged with targetUserId. The second copy reaches a client whose
// personal room join has not happened yet; clients discard duplicates.
func (g *Gateway) notifyUser(role, userID, event string, payload callEvent) {
	target := auth.Identity{UserID: userID, Role: role}
	personal, shared := personalRoom(target), roleRoom(target)

	g.log.Debug("signaling: notify",
		"event", event,
		"call_id", payload.CallID,
		"personal_room", personal,
		"personal_members", g.hub.RoomSize(personal),
		"role_room", shared,
		"role_members", g.hub.RoomSize(shared),
	)

	payload.TargetUserID = ""
	g.hub.Emit(personal, event, payload, nil)
	payload.TargetUserID = userID
	g.hub.Emit(shared, event, payload, nil)
}

// broadcastEnd reaches both participants through every room they could be in.
func (g *Gateway) broadcastEnd(call calls.Call, event string, from auth.Identity) {
	payload := newCallEvent(call, from)
	g.notifyUser(rbac.RoleDoctor, call.DoctorID, event, payload)
	g.notifyUser(rbac.RolePatient, call.PatientID, event, payload)

	room := CallRoom(call.CallID)
	g.log.Debug("signaling: notify call room", "event", event, "room", room, "members", g.hub.RoomSize(room))
	g.hub.Emit(room, event, payload, nil)
}

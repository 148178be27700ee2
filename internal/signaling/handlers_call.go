package signaling

import (
	"context"
	"encoding/json"

	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/rbac"
)

type appointmentRequest struct {
	AppointmentID string `json:"appointmentId"`
}

type callRequest struct {
	CallID string `json:"callId"`
}

type callAck struct {
	Call calls.Call `json:"call"`
}

type roomAck struct {
	CallID string       `json:"callId"`
	Status calls.Status `json:"status,omitempty"`
}

func decodeCallID(data json.RawMessage) (string, error) {
	var req callRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.CallID == "" {
		return "", calls.ErrMissingCallID
	}
	return req.CallID, nil
}

func (g *Gateway) handleInitiate(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req appointmentRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	call, err := g.calls.Initiate(ctx, c.Identity, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	g.hub.Join(c, CallRoom(call.CallID))
	g.notifyUser(rbac.RolePatient, call.PatientID, EventCallInvite, newCallEvent(call, c.Identity))
	return callAck{Call: call}, nil
}

func (g *Gateway) handleAccept(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	call, err := g.calls.Accept(ctx, c.Identity, callID)
	if err != nil {
		return nil, err
	}

	g.hub.Join(c, CallRoom(call.CallID))
	g.notifyUser(rbac.RoleDoctor, call.DoctorID, EventCallAccepted, newCallEvent(call, c.Identity))
	return callAck{Call: call}, nil
}

func (g *Gateway) handleDecline(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	call, changed, err := g.calls.Decline(ctx, c.Identity, callID)
	if err != nil {
		return nil, err
	}

	if changed {
		g.notifyUser(rbac.RoleDoctor, call.DoctorID, EventCallDeclined, newCallEvent(call, c.Identity))
	}
	return callAck{Call: call}, nil
}

func (g *Gateway) handleEnd(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	call, changed, err := g.calls.End(ctx, c.Identity, callID)
	if err != nil {
		return nil, err
	}

	if changed {
		g.broadcastEnd(call, EventCallEnded, c.Identity)
	}
	g.hub.Leave(c, CallRoom(call.CallID))
	return callAck{Call: call}, nil
}

// activeCall authorizes the caller and rejects calls that already finished.
func (g *Gateway) activeCall(ctx context.Context, c *Client, callID string) (calls.Call, error) {
	call, err := g.calls.Authorize(ctx, c.Identity, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if call.Status.IsTerminal() {
		return calls.Call{}, ErrCallNotActive
	}
	return call, nil
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	call, err := g.activeCall(ctx, c, callID)
	if err != nil {
		return nil, err
	}

	g.hub.Join(c, CallRoom(call.CallID))
	return roomAck{CallID: call.CallID, Status: call.Status}, nil
}

// handleJoined marks local media setup as complete. The doctor hears about
// the patient's readiness through call:patientJoined.
func (g *Gateway) handleJoined(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	call, err := g.activeCall(ctx, c, callID)
	if err != nil {
		return nil, err
	}

	g.hub.Join(c, CallRoom(call.CallID))
	if c.Identity.UserID == call.PatientID {
		g.notifyUser(rbac.RoleDoctor, call.DoctorID, EventCallPatientJoined, newCallEvent(call, c.Identity))
	}
	return roomAck{CallID: call.CallID, Status: call.Status}, nil
}

func (g *Gateway) handleLeave(_ context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	g.hub.Leave(c, CallRoom(callID))
	return roomAck{CallID: callID}, nil
}

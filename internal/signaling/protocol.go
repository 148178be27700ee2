package signaling

import (
	"encoding/json"

	"telehealth-platform/internal/apperr"
)

// Inbound is a client request. ID is echoed back in the acknowledgement;
// requests without an ID get no acknowledgement.
type Inbound struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers exactly one Inbound. Either Data or Error is set.
type Ack struct {
	Ack   string `json:"ack"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Outbound is a server-pushed event.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client -> server events.
const (
	EventCallInitiate = "call:initiate"
	EventCallAccept   = "call:accept"
	EventCallDecline  = "call:decline"
	EventCallEnd      = "call:end"
	EventCallJoinRoom = "call:joinRoom"
	EventCallJoined   = "call:joined"
	EventCallLeave    = "call:leave"

	EventGetRtpCapabilities = "mediasoup:getRtpCapabilities"
	EventCreateTransport    = "mediasoup:createWebRtcTransport"
	EventConnectTransport   = "mediasoup:connectTransport"
	EventProduce            = "mediasoup:produce"
	EventConsume            = "mediasoup:consume"
	EventResumeConsumer     = "mediasoup:resumeConsumer"
	EventGetProducers       = "mediasoup:getProducers"
)

// Server -> client events.
const (
	EventConnectionReady   = "connection:ready"
	EventCallInvite        = "call:invite"
	EventCallAccepted      = "call:accepted"
	EventCallDeclined      = "call:declined"
	EventCallEnded         = "call:ended"
	EventCallPatientJoined = "call:patientJoined"
	EventCallError         = "call:error"
	EventNewProducer       = "mediasoup:newProducer"
	EventProtocolError     = "error"
)

var (
	ErrUnknownEvent     = apperr.Validation("unknown event")
	ErrMalformedMessage = apperr.Validation("malformed message")
	ErrInvalidPayload   = apperr.Validation("invalid payload")
	ErrCallNotActive    = apperr.New(apperr.KindInvalidStateTransition, "call is not active")
	ErrAudioOnly        = apperr.Validation("only audio streams are supported")
)

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: data})
}

func encodeAck(id string, data any, err error) ([]byte, error) {
	a := Ack{Ack: id, Data: data}
	if err != nil {
		a.Data = nil
		a.Error = apperr.PublicMessage(err)
	}
	return json.Marshal(a)
}

// decode unmarshals a request payload. An absent payload decodes as {}.
func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(ErrInvalidPayload, err)
	}
	return nil
}

// errorPayload is the body of call:error and protocol error events.
type errorPayload struct {
	Event  string `json:"event,omitempty"`
	CallID string `json:"callId,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error"`
}

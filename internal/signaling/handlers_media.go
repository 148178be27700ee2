package signaling

import (
	"context"
	"encoding/json"

	"telehealth-platform/internal/apperr"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/media"
)

type createTransportRequest struct {
	CallID  string                  `json:"callId"`
	Options *media.TransportOptions `json:"options,omitempty"`
}

type connectTransportRequest struct {
	CallID         string               `json:"callId,omitempty"`
	TransportID    string               `json:"transportId"`
	DtlsParameters media.DtlsParameters `json:"dtlsParameters"`
}

type produceRequest struct {
	CallID        string              `json:"callId,omitempty"`
	TransportID   string              `json:"transportId"`
	Kind          string              `json:"kind"`
	RtpParameters media.RtpParameters `json:"rtpParameters"`
}

type consumeRequest struct {
	CallID          string                `json:"callId,omitempty"`
	TransportID     string                `json:"transportId"`
	ProducerID      string                `json:"producerId"`
	RtpCapabilities media.RtpCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerRequest struct {
	ConsumerID string `json:"consumerId"`
}

type newProducerEvent struct {
	CallID     string         `json:"callId"`
	ProducerID string         `json:"producerId"`
	Kind       string         `json:"kind"`
	From       *auth.Identity `json:"from,omitempty"`
}

var (
	errMissingTransportID = apperr.Validation("transportId is required")
	errMissingProducerID  = apperr.Validation("producerId is required")
	errMissingConsumerID  = apperr.Validation("consumerId is required")
)

var defaultTransportOptions = media.TransportOptions{EnableUDP: true, EnableTCP: true, PreferUDP: true}

func (g *Gateway) handleGetRtpCapabilities(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	if _, err := g.activeCall(ctx, c, callID); err != nil {
		return nil, err
	}
	return g.media.RtpCapabilities(callID)
}

func (g *Gateway) handleCreateTransport(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req createTransportRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if _, err := g.activeCall(ctx, c, req.CallID); err != nil {
		return nil, err
	}
	opts := defaultTransportOptions
	if req.Options != nil {
		opts = *req.Options
	}
	return g.media.CreateTransport(req.CallID, opts)
}

// authorizeTransport finds the call a transport serves, from the registry's
// reverse index or else the client's hint, and checks the caller is part of it.
func (g *Gateway) authorizeTransport(ctx context.Context, c *Client, transportID, callIDHint string) (string, error) {
	if transportID == "" {
		return "", errMissingTransportID
	}
	callID, ok := g.media.CallForTransport(transportID)
	if !ok {
		callID = callIDHint
	}
	if callID == "" {
		return "", media.ErrTransportNotFound
	}
	if _, err := g.calls.Authorize(ctx, c.Identity, callID); err != nil {
		return "", err
	}
	return callID, nil
}

func (g *Gateway) handleConnectTransport(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req connectTransportRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if _, err := g.authorizeTransport(ctx, c, req.TransportID, req.CallID); err != nil {
		return nil, err
	}
	if err := g.media.ConnectTransport(req.TransportID, req.DtlsParameters); err != nil {
		return nil, err
	}
	return map[string]bool{"connected": true}, nil
}

func (g *Gateway) handleProduce(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req produceRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.Kind != media.KindAudio {
		return nil, ErrAudioOnly
	}
	transportCall, err := g.authorizeTransport(ctx, c, req.TransportID, req.CallID)
	if err != nil {
		return nil, err
	}
	p, err := g.media.Produce(req.TransportID, req.Kind, req.RtpParameters)
	if err != nil {
		return nil, err
	}

	callID := g.producerCall(c, transportCall)
	room := CallRoom(callID)
	g.log.Debug("signaling: announce producer", "room", room, "members", g.hub.RoomSize(room), "producer_id", p.ID)
	g.hub.Emit(room, EventNewProducer, newProducerEvent{
		CallID:     callID,
		ProducerID: p.ID,
		Kind:       p.Kind,
		From:       &c.Identity,
	}, c)
	return p, nil
}

// producerCall picks the call room the sender currently occupies, falling
// back to the call the transport belongs to.
func (g *Gateway) producerCall(c *Client, transportCall string) string {
	rooms := g.hub.CallRooms(c)
	for _, id := range rooms {
		if id == transportCall {
			return id
		}
	}
	if len(rooms) > 0 {
		return rooms[0]
	}
	return transportCall
}

func (g *Gateway) handleConsume(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req consumeRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.ProducerID == "" {
		return nil, errMissingProducerID
	}
	if _, err := g.authorizeTransport(ctx, c, req.TransportID, req.CallID); err != nil {
		return nil, err
	}
	return g.media.Consume(req.TransportID, req.ProducerID, req.RtpCapabilities, req.CallID)
}

func (g *Gateway) handleResumeConsumer(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req resumeConsumerRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.ConsumerID == "" {
		return nil, errMissingConsumerID
	}
	callID, ok := g.media.CallForConsumer(req.ConsumerID)
	if !ok {
		return nil, media.ErrConsumerNotFound
	}
	if _, err := g.calls.Authorize(ctx, c.Identity, callID); err != nil {
		return nil, err
	}
	if err := g.media.ResumeConsumer(req.ConsumerID); err != nil {
		return nil, err
	}
	return map[string]bool{"resumed": true}, nil
}

func (g *Gateway) handleGetProducers(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	callID, err := decodeCallID(data)
	if err != nil {
		return nil, err
	}
	if _, err := g.calls.Authorize(ctx, c.Identity, callID); err != nil {
		return nil, err
	}
	return g.media.ListProducers(callID), nil
}

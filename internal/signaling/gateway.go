package signaling

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"telehealth-platform/internal/apperr"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/config"
	"telehealth-platform/internal/media"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

// CallService is the call state machine as seen by the gateway.
type CallService interface {
	Initiate(ctx context.Context, actor auth.Identity, appointmentID string) (calls.Call, error)
	Accept(ctx context.Context, actor auth.Identity, callID string) (calls.Call, error)
	Decline(ctx context.Context, actor auth.Identity, callID string) (calls.Call, bool, error)
	End(ctx context.Context, actor auth.Identity, callID string) (calls.Call, bool, error)
	Abandon(ctx context.Context, callID, reason string) (calls.Call, bool, error)
	Authorize(ctx context.Context, actor auth.Identity, callID string) (calls.Call, error)
}

// MediaRouter is the SFU registry as seen by the gateway. It refuses to
// allocate for calls it has already cleaned up.
type MediaRouter interface {
	RtpCapabilities(callID string) (media.RtpCapabilities, error)
	CreateTransport(callID string, opts media.TransportOptions) (media.TransportDescriptor, error)
	ConnectTransport(transportID string, dtls media.DtlsParameters) error
	Produce(transportID, kind string, params media.RtpParameters) (media.ProducerDescriptor, error)
	Consume(transportID, producerID string, caps media.RtpCapabilities, callIDHint string) (media.ConsumerDescriptor, error)
	ResumeConsumer(consumerID string) error
	ListProducers(callID string) []media.ProducerInfo
	CallForTransport(transportID string) (string, bool)
	CallForConsumer(consumerID string) (string, bool)
}

// Recorder receives gateway metrics. A nil *metrics.Collector satisfies it.
type Recorder interface {
	SignalingMessage(event, result string)
	ConnectionOpened()
	ConnectionClosed()
}

type nopRecorder struct{}

func (nopRecorder) SignalingMessage(string, string) {}
func (nopRecorder) ConnectionOpened() {}
func (nopRecorder) ConnectionClosed() {}

type Config struct {
	ICEServers     []config.ICEServer
	MessageTimeout time.Duration
	PingInterval   time.Duration
	ReadLimitBytes int64
}

func (c Config) withDefaults() Config {
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = 64 << 10
	}
	if c.ICEServers == nil {
		c.ICEServers = []config.ICEServer{}
	}
	return c
}

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// Gateway authenticates sockets, dispatches their messages and fans events
// out to rooms.
type Gateway struct {
	hub     *Hub
	auth    Authenticator
	calls   CallService
	media   MediaRouter
	metrics Recorder
	log     *slog.Logger
	cfg     Config

	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
	closing  atomic.Bool
}

func NewGateway(authn Authenticator, cs CallService, mr MediaRouter, cfg Config, metrics Recorder, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	g := &Gateway{
		hub:     NewHub(log),
		auth:    authn,
		calls:   cs,
		media:   mr,
		metrics: metrics,
		log:     log,
		cfg:     cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the web app origin; the bearer token is the gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	g.handlers = map[string]handlerFunc{
		EventCallInitiate: g.handleInitiate,
		EventCallAccept:   g.handleAccept,
		EventCallDecline:  g.handleDecline,
		EventCallEnd:      g.handleEnd,
		EventCallJoinRoom: g.handleJoinRoom,
		EventCallJoined:   g.handleJoined,
		EventCallLeave:    g.handleLeave,

		EventGetRtpCapabilities: g.handleGetRtpCapabilities,
		EventCreateTransport:    g.handleCreateTransport,
		EventConnectTransport:   g.handleConnectTransport,
		EventProduce:            g.handleProduce,
		EventConsume:            g.handleConsume,
		EventResumeConsumer:     g.handleResumeConsumer,
		EventGetProducers:       g.handleGetProducers,
	}
	return g
}

// Hub exposes room state for diagnostics.
func (g *Gateway) Hub() *Hub { return g.hub }

// HandleConnect authenticates the request and only then upgrades it.
// Rejected requests get HTTP 401 with the reason and never join a room.
func (g *Gateway) HandleConnect(c *gin.Context) {
	if g.closing.Load() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
		return
	}
	id, err := g.auth.Resolve(c.Request.Context(), auth.BearerToken(c.Request))
	if err != nil {
		status := http.StatusUnauthorized
		if apperr.KindOf(err) != apperr.KindAuthentication {
			status = apperr.HTTPStatus(err)
			g.log.Error("signaling: resolve identity failed", "err", err)
		} else {
			g.log.Info("signaling: connection rejected", "reason", apperr.PublicMessage(err), "remote", c.ClientIP())
		}
		c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		g.log.Info("signaling: upgrade failed", "user_id", id.UserID, "err", err)
		return
	}

	client := newClient(uuid.NewString(), id, conn, g.log)
	g.attach(client)

	pongWait := g.cfg.PingInterval * 2
	go client.writePump(g.cfg.PingInterval)
	go func() {
		defer g.detach(context.Background(), client, calls.ReasonParticipantDisconnect)
		client.readPump(context.Background(), g.cfg.ReadLimitBytes, pongWait, func(ctx context.Context, raw []byte) {
			g.handle(ctx, client, raw)
		})
	}()
}

// attach registers the client, joins its personal and role rooms and tells
// it the connection is usable.
func (g *Gateway) attach(c *Client) {
	g.hub.Register(c)
	g.hub.Join(c, personalRoom(c.Identity))
	g.hub.Join(c, roleRoom(c.Identity))
	g.metrics.ConnectionOpened()
	c.log.Info("signaling: connected")

	c.emit(EventConnectionReady, connectionReady{
		UserID:     c.Identity.UserID,
		Role:       c.Identity.Role,
		ICEServers: g.cfg.ICEServers,
	})
}

// Close ends every call a connected socket still holds and disconnects all
// clients. Connections attempted afterwards get 503.
func (g *Gateway) Close(ctx context.Context) {
	g.closing.Store(true)
	clients := g.hub.Clients()
	for _, c := range clients {
		g.detach(ctx, c, calls.ReasonServerShutdown)
	}
	g.log.Info("signaling: gateway closed", "clients", len(clients))
}

// detach abandons every call the socket was still in.
func (g *Gateway) detach(ctx context.Context, c *Client, reason string) {
	rooms := g.hub.Unregister(c)
	if rooms == nil {
		return
	}
	g.metrics.ConnectionClosed()
	c.log.Info("signaling: disconnected", "rooms", rooms)

	for _, room := range rooms {
		callID, ok := callIDFromRoom(room)
		if !ok {
			continue
		}
		g.abandon(ctx, c, callID, reason)
	}
}

func (g *Gateway) abandon(ctx context.Context, c *Client, callID, reason string) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.MessageTimeout)
	defer cancel()

	call, changed, err := g.calls.Abandon(ctx, callID, reason)
	if err != nil {
		c.log.Warn("signaling: abandon call failed", "call_id", callID, "err", err)
		return
	}
	if changed {
		g.broadcastEnd(call, EventCallEnded, auth.Identity{})
	}
}

type connectionReady struct {
	UserID     string             `json:"userId"`
	Role       string             `json:"role"`
	ICEServers []config.ICEServer `json:"iceServers"`
}

// handle decodes and dispatches one frame. Failures are acknowledged to the
// sender and never close the socket.
func (g *Gateway) handle(ctx context.Context, c *Client, raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
		g.metrics.SignalingMessage("invalid", "error")
		c.emit(EventProtocolError, errorPayload{Kind: string(apperr.KindValidation), Error: ErrMalformedMessage.Message})
		return
	}

	h, ok := g.handlers[msg.Event]
	if !ok {
		g.metrics.SignalingMessage("unknown", "error")
		c.log.Info("signaling: unknown event", "event", msg.Event)
		c.ack(msg.ID, nil, ErrUnknownEvent)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.MessageTimeout)
	defer cancel()

	start := time.Now()
	res, err := g.invoke(ctx, h, c, msg)
	if err != nil {
		g.fail(c, msg, err)
		return
	}
	g.metrics.SignalingMessage(msg.Event, "ok")
	c.log.Debug("signaling: handled", "event", msg.Event, "elapsed", time.Since(start))
	c.ack(msg.ID, res, nil)
}

func (g *Gateway) invoke(ctx context.Context, h handlerFunc, c *Client, msg Inbound) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("signaling: handler panic", "event", msg.Event, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, apperr.New(apperr.KindInternal, "handler panic")
		}
	}()
	return h(ctx, c, msg.Data)
}

func (g *Gateway) fail(c *Client, msg Inbound, err error) {
	kind := apperr.KindOf(err)
	g.metrics.SignalingMessage(msg.Event, string(kind))

	var ref struct {
		CallID string `json:"callId"`
	}
	_ = json.Unmarshal(msg.Data, &ref)

	if kind == apperr.KindInternal {
		c.log.Error("signaling: handler failed", "event", msg.Event, "call_id", ref.CallID, "err", err)
	} else {
		c.log.Info("signaling: request rejected", "event", msg.Event, "call_id", ref.CallID, "kind", kind, "err", err)
	}

	c.ack(msg.ID, nil, err)

	if kind == apperr.KindAuthorization || kind == apperr.KindInvalidStateTransition {
		c.emit(EventCallError, errorPayload{
			Event:  msg.Event,
			CallID: ref.CallID,
			Kind:   string(kind),
			Error:  apperr.PublicMessage(err),
		})
	}
}

// NotifyRingTimeout tells both sides that an unanswered call was dropped.
func (g *Gateway) NotifyRingTimeout(call calls.Call) {
	g.broadcastEnd(call, EventCallDeclined, auth.Identity{})
}

// Package media owns the per-call SFU resources: routing contexts,
// transports, producers and consumers.
//
// Ownership is tracked by the registry itself through explicit parent and
// child id sets. A transport's pointer to its routing context is cleared as
// soon as the context starts closing, so every lookup that must survive
// teardown goes through the transportCalls index instead.
package media

import (
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	resourceRoutingContext = "routing_context"
	resourceTransport      = "transport"
	resourceProducer       = "producer"
	resourceConsumer       = "consumer"
)

// closedCallTTL bounds how long a cleaned-up call keeps refusing new resources.
const closedCallTTL = time.Hour

// Observer is notified when resources are created or destroyed.
type Observer interface {
	ResourceOpened(kind string)
	ResourceClosed(kind string)
}

// ListenConfig is the network setup read once at start.
type ListenConfig struct {
	ListenIP    string
	AnnouncedIP string
	MinPort     int
	MaxPort     int
}

type routingContext struct {
	id         string
	callID     string
	codecs     []RtpCodecCapability
	transports map[string]struct{}
}

type transport struct {
	id     string
	router *routingContext // nil once the owning context starts closing
	port   int

	ice        IceParameters
	candidates []IceCandidate
	remoteDtls *DtlsParameters

	producerID string
	consumers  map[string]struct{}
}

type producer struct {
	id          string
	kind        string
	transportID string
	codec       RtpCodecCapability
	consumers   map[string]struct{}
}

type consumer struct {
	id          string
	producerID  string
	transportID string
	kind        string
	rtp         RtpParameters
	paused      bool
}

// Registry is the single process-wide store of SFU resources.
// Every method takes the lock once, so each operation is atomic with
// respect to the others and updates all indices together.
type Registry struct {
	mu sync.Mutex

	contexts       map[string]*routingContext // callID -> context
	transports     map[string]*transport
	transportCalls map[string]string // transportID -> callID
	producers      map[string]*producer
	consumers      map[string]*consumer
	closedCalls    map[string]time.Time // callID -> cleanup time

	listen      ListenConfig
	ports       *portAllocator
	fingerprint DtlsFingerprint

	observer Observer
	log      *slog.Logger
	now      func() time.Time
}

type Option func(*Registry)

func WithObserver(o Observer) Option { return func(r *Registry) { r.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

func NewRegistry(listen ListenConfig, opts ...Option) (*Registry, error) {
	fp, err := localFingerprint()
	if err != nil {
		return nil, err
	}
	if listen.ListenIP == "" {
		listen.ListenIP = "0.0.0.0"
	}
	if listen.MinPort == 0 && listen.MaxPort == 0 {
		listen.MinPort, listen.MaxPort = 40000, 49999
	}

	r := &Registry{
		contexts:       make(map[string]*routingContext),
		transports:     make(map[string]*transport),
		transportCalls: make(map[string]string),
		producers:      make(map[string]*producer),
		consumers:      make(map[string]*consumer),
		closedCalls:    make(map[string]time.Time),
		listen:         listen,
		ports:          newPortAllocator(listen.MinPort, listen.MaxPort),
		fingerprint:    fp,
		log:            slog.Default(),
		now:            time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// GetOrCreateRoutingContext returns the call's context, allocating it on first use.
// A call that has been cleaned up gets ErrCallClosed.
func (r *Registry) GetOrCreateRoutingContext(callID string) (RoutingContextInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, err := r.routingContextLocked(callID)
	if err != nil {
		return RoutingContextInfo{}, err
	}
	return r.contextInfo(rc), nil
}

// RtpCapabilities returns the codec profile clients load into their device.
func (r *Registry) RtpCapabilities(callID string) (RtpCapabilities, error) {
	info, err := r.GetOrCreateRoutingContext(callID)
	if err != nil {
		return RtpCapabilities{}, err
	}
	return info.RtpCapabilities, nil
}

func (r *Registry) routingContextLocked(callID string) (*routingContext, error) {
	if rc, ok := r.contexts[callID]; ok {
		return rc, nil
	}
	if _, ok := r.closedCalls[callID]; ok {
		return nil, ErrCallClosed
	}
	rc := &routingContext{
		id:         uuid.NewString(),
		callID:     callID,
		codecs:     audioCodecs(),
		transports: make(map[string]struct{}),
	}
	r.contexts[callID] = rc
	r.opened(resourceRoutingContext)
	r.log.Debug("routing context created", "call_id", callID, "routing_context_id", rc.id)
	return rc, nil
}

func (r *Registry) contextInfo(rc *routingContext) RoutingContextInfo {
	codecs := make([]RtpCodecCapability, len(rc.codecs))
	copy(codecs, rc.codecs)
	return RoutingContextInfo{
		ID:     rc.id,
		CallID: rc.callID,
		RtpCapabilities: RtpCapabilities{
			Codecs:           codecs,
			HeaderExtensions: audioHeaderExtensions(),
		},
	}
}

// CreateTransport allocates a transport inside the call's routing context.
func (r *Registry) CreateTransport(callID string, opts TransportOptions) (TransportDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, err := r.routingContextLocked(callID)
	if err != nil {
		return TransportDescriptor{}, err
	}
	port, err := r.ports.acquire()
	if err != nil {
		return TransportDescriptor{}, err
	}

	t := &transport{
		id:     uuid.NewString(),
		router: rc,
		port:   port,
		ice: IceParameters{
			UsernameFragment: randomToken(16),
			Password:         randomToken(32),
			IceLite:          true,
		},
		consumers: make(map[string]struct{}),
	}
	t.candidates = r.candidates(port, opts)

	r.transports[t.id] = t
	rc.transports[t.id] = struct{}{}
	r.transportCalls[t.id] = callID
	r.opened(resourceTransport)

	r.log.Debug("transport created", "call_id", callID, "transport_id", t.id, "port", port)
	return TransportDescriptor{
		ID:            t.id,
		IceParameters: t.ice,
		IceCandidates: append([]IceCandidate(nil), t.candidates...),
		DtlsParameters: DtlsParameters{
			Role:         "auto",
			Fingerprints: []DtlsFingerprint{r.fingerprint},
		},
	}, nil
}

func (r *Registry) candidates(port int, opts TransportOptions) []IceCandidate {
	if !opts.EnableUDP && !opts.EnableTCP {
		opts = TransportOptions{EnableUDP: true, EnableTCP: true, PreferUDP: true}
	}
	ip := r.listen.AnnouncedIP
	if ip == "" {
		ip = r.listen.ListenIP
	}

	udpPriority, tcpPriority := uint32(1076302079), uint32(1076302079)
	if opts.PreferUDP {
		tcpPriority = 1076276479
	} else if opts.EnableTCP {
		udpPriority = 1076276479
	}

	var out []IceCandidate
	if opts.EnableUDP {
		out = append(out, IceCandidate{Foundation: "udpcandidate", Priority: udpPriority, IP: ip, Protocol: "udp", Port: port, Type: "host"})
	}
	if opts.EnableTCP {
		out = append(out, IceCandidate{Foundation: "tcpcandidate", Priority: tcpPriority, IP: ip, Protocol: "tcp", Port: port, Type: "host", TCPType: "passive"})
	}
	return out
}

// ConnectTransport records the client's DTLS parameters.
func (r *Registry) ConnectTransport(transportID string, dtls DtlsParameters) error {
	if err := validateRemoteDtls(dtls); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transports[transportID]
	if !ok {
		return ErrTransportNotFound
	}
	t.remoteDtls = &dtls
	return nil
}

// Produce binds an inbound stream to a transport.
func (r *Registry) Produce(transportID, kind string, params RtpParameters) (ProducerDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transports[transportID]
	if !ok {
		return ProducerDescriptor{}, ErrTransportNotFound
	}
	if t.producerID != "" {
		return ProducerDescriptor{}, ErrProducerExists
	}
	rc := r.ownerLocked(t, "")
	if rc == nil {
		r.closeTransportLocked(t)
		return ProducerDescriptor{}, ErrStaleTransport
	}
	codec, ok := supportedCodec(rc.codecs, kind, params)
	if !ok {
		return ProducerDescriptor{}, ErrUnsupportedCodec
	}

	p := &producer{
		id:          uuid.NewString(),
		kind:        kind,
		transportID: t.id,
		codec:       codec,
		consumers:   make(map[string]struct{}),
	}
	r.producers[p.id] = p
	t.producerID = p.id
	r.opened(resourceProducer)

	r.log.Debug("producer created", "call_id", rc.callID, "transport_id", t.id, "producer_id", p.id)
	return ProducerDescriptor{ID: p.id, Kind: p.kind}, nil
}

// Consume creates a paused outbound stream of producerID on transportID.
//
// The owning routing context is resolved from the transport's own pointer,
// then the transportCalls index. callIDHint is only consulted for a
// transport the index no longer knows. A transport none of these can place
// is purged and reported stale.
func (r *Registry) Consume(transportID, producerID string, caps RtpCapabilities, callIDHint string) (ConsumerDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transports[transportID]
	if !ok {
		return ConsumerDescriptor{}, ErrTransportNotFound
	}
	rc := r.ownerLocked(t, callIDHint)
	if rc == nil {
		r.log.Warn("purging stale transport", "transport_id", transportID, "call_id_hint", callIDHint)
		r.closeTransportLocked(t)
		return ConsumerDescriptor{}, ErrStaleTransport
	}

	p, ok := r.producers[producerID]
	if !ok || r.transportCalls[p.transportID] != rc.callID {
		return ConsumerDescriptor{}, ErrProducerNotFound
	}

	remote, ok := canConsume(p.codec, caps)
	if !ok {
		return ConsumerDescriptor{}, ErrIncompatibleCapabilities
	}

	c := &consumer{
		id:          uuid.NewString(),
		producerID:  p.id,
		transportID: t.id,
		kind:        p.kind,
		paused:      true,
		rtp: RtpParameters{
			MID: "0",
			Codecs: []RtpCodecParameters{{
				MimeType:    p.codec.MimeType,
				PayloadType: payloadType(remote, p.codec),
				ClockRate:   p.codec.ClockRate,
				Channels:    p.codec.Channels,
				Parameters:  p.codec.Parameters,
			}},
			Encodings: []RtpEncodingParameters{{SSRC: rand.Uint32()}},
			Rtcp:      RtcpParameters{CNAME: p.id[:8], ReducedSize: true},
		},
	}
	r.consumers[c.id] = c
	t.consumers[c.id] = struct{}{}
	p.consumers[c.id] = struct{}{}
	r.opened(resourceConsumer)

	r.log.Debug("consumer created", "call_id", rc.callID, "transport_id", t.id, "producer_id", p.id, "consumer_id", c.id)
	return ConsumerDescriptor{
		ID:            c.id,
		ProducerID:    p.id,
		Kind:          c.kind,
		RtpParameters: c.rtp,
		Paused:        c.paused,
	}, nil
}

func payloadType(remote, local RtpCodecCapability) int {
	if remote.PreferredPayloadType > 0 {
		return remote.PreferredPayloadType
	}
	return local.PreferredPayloadType
}

// ownerLocked resolves the routing context owning t. The index wins over
// the hint; a hint naming another call is ignored.
func (r *Registry) ownerLocked(t *transport, callIDHint string) *routingContext {
	if t.router != nil {
		return t.router
	}
	if callID, ok := r.transportCalls[t.id]; ok {
		if callIDHint != "" && callIDHint != callID {
			r.log.Warn("call id hint disagrees with transport index", "transport_id", t.id, "call_id", callID, "call_id_hint", callIDHint)
		}
		return r.contexts[callID]
	}
	if callIDHint != "" {
		return r.contexts[callIDHint]
	}
	return nil
}

// ResumeConsumer starts forwarding media to the receiver.
func (r *Registry) ResumeConsumer(consumerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consumers[consumerID]
	if !ok {
		return ErrConsumerNotFound
	}
	c.paused = false
	return nil
}

// ListProducers returns the streams already flowing in a call.
func (r *Registry) ListProducers(callID string) []ProducerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, ok := r.contexts[callID]
	if !ok {
		return []ProducerInfo{}
	}
	out := make([]ProducerInfo, 0, len(rc.transports))
	for tid := range rc.transports {
		t := r.transports[tid]
		if t == nil || t.producerID == "" {
			continue
		}
		if p := r.producers[t.producerID]; p != nil {
			out = append(out, ProducerInfo{ProducerID: p.id, Kind: p.kind})
		}
	}
	return out
}

// CallForTransport answers which call a transport belongs to, even while
// the call's routing context is closing.
func (r *Registry) CallForTransport(transportID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	callID, ok := r.transportCalls[transportID]
	return callID, ok
}

// CallForConsumer answers which call a consumer's receiving transport belongs to.
func (r *Registry) CallForConsumer(consumerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[consumerID]
	if !ok {
		return "", false
	}
	callID, ok := r.transportCalls[c.transportID]
	return callID, ok
}

// CloseTransport destroys a transport and everything bound to it. Unknown ids are ignored.
func (r *Registry) CloseTransport(transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.transports[transportID]; ok {
		r.closeTransportLocked(t)
	}
}

// CloseRoutingContext destroys the call's context and cascades to its transports.
func (r *Registry) CloseRoutingContext(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeRoutingContextLocked(callID)
}

// CleanupCall releases every resource of a call. Calling it for a call
// with nothing allocated, or twice, is a no-op. Afterwards the call is
// closed: GetOrCreateRoutingContext and CreateTransport refuse it.
func (r *Registry) CleanupCall(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.closedCalls[callID] = now
	for id, at := range r.closedCalls {
		if now.Sub(at) > closedCallTTL {
			delete(r.closedCalls, id)
		}
	}

	if rc, ok := r.contexts[callID]; ok {
		for tid := range rc.transports {
			if t := r.transports[tid]; t != nil && t.producerID != "" {
				if p := r.producers[t.producerID]; p != nil {
					r.closeProducerLocked(p)
				}
			}
		}
	}
	r.closeRoutingContextLocked(callID)

	// Sweep transports that lost both their context pointer and set membership.
	for tid, cid := range r.transportCalls {
		if cid != callID {
			continue
		}
		if t, ok := r.transports[tid]; ok {
			r.closeTransportLocked(t)
		} else {
			delete(r.transportCalls, tid)
		}
	}
}

func (r *Registry) closeRoutingContextLocked(callID string) {
	rc, ok := r.contexts[callID]
	if !ok {
		return
	}
	// Detach first, as the media engine does, then tear down.
	for tid := range rc.transports {
		if t := r.transports[tid]; t != nil {
			t.router = nil
		}
	}
	for tid := range rc.transports {
		if t := r.transports[tid]; t != nil {
			r.closeTransportLocked(t)
		}
	}
	delete(r.contexts, callID)
	r.closed(resourceRoutingContext)
	r.log.Debug("routing context closed", "call_id", callID, "routing_context_id", rc.id)
}

func (r *Registry) closeTransportLocked(t *transport) {
	if t.producerID != "" {
		if p := r.producers[t.producerID]; p != nil {
			r.closeProducerLocked(p)
		}
	}
	for cid := range t.consumers {
		if c := r.consumers[cid]; c != nil {
			r.closeConsumerLocked(c)
		}
	}

	rc := t.router
	if rc == nil {
		rc = r.contexts[r.transportCalls[t.id]]
	}
	if rc != nil {
		delete(rc.transports, t.id)
	}
	t.router = nil

	delete(r.transportCalls, t.id)
	delete(r.transports, t.id)
	r.ports.release(t.port)
	r.closed(resourceTransport)
}

func (r *Registry) closeProducerLocked(p *producer) {
	for cid := range p.consumers {
		if c := r.consumers[cid]; c != nil {
			r.closeConsumerLocked(c)
		}
	}
	if t := r.transports[p.transportID]; t != nil && t.producerID == p.id {
		t.producerID = ""
	}
	delete(r.producers, p.id)
	r.closed(resourceProducer)
}

func (r *Registry) closeConsumerLocked(c *consumer) {
	if p := r.producers[c.producerID]; p != nil {
		delete(p.consumers, c.id)
	}
	if t := r.transports[c.transportID]; t != nil {
		delete(t.consumers, c.id)
	}
	delete(r.consumers, c.id)
	r.closed(resourceConsumer)
}

// Stats reports current counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		RoutingContexts: len(r.contexts),
		Transports:      len(r.transports),
		ReverseIndex:    len(r.transportCalls),
		Producers:       len(r.producers),
		Consumers:       len(r.consumers),
	}
}

func (r *Registry) opened(kind string) {
	if r.observer != nil {
		r.observer.ResourceOpened(kind)
	}
}

func (r *Registry) closed(kind string) {
	if r.observer != nil {
		r.observer.ResourceClosed(kind)
	}
}

func randomToken(n int) string {
	s := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	return s[:n]
}

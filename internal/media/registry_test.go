package media

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(ListenConfig{ListenIP: "127.0.0.1", AnnouncedIP: "203.0.113.5", MinPort: 40000, MaxPort: 40009})
	require.NoError(t, err)
	return r
}

func opusParams() RtpParameters {
	return RtpParameters{Codecs: []RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}}}
}

func opusCaps() RtpCapabilities {
	return RtpCapabilities{Codecs: []RtpCodecCapability{{Kind: KindAudio, MimeType: "audio/OPUS", PreferredPayloadType: 111, ClockRate: 48000, Channels: 2}}}
}

// setupCall creates a sending and a receiving transport with one producer.
func setupCall(t *testing.T, r *Registry, callID string) (sendID, recvID, producerID string) {
	t.Helper()
	send, err := r.CreateTransport(callID, TransportOptions{})
	require.NoError(t, err)
	recv, err := r.CreateTransport(callID, TransportOptions{})
	require.NoError(t, err)
	p, err := r.Produce(send.ID, KindAudio, opusParams())
	require.NoError(t, err)
	return send.ID, recv.ID, p.ID
}

func assertEmpty(t *testing.T, r *Registry) {
	t.Helper()
	assert.Equal(t, Stats{}, r.Stats())
	assert.Equal(t, 0, r.ports.used())
}

func TestGetOrCreateRoutingContext_Idempotent(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.GetOrCreateRoutingContext("call-1")
	require.NoError(t, err)
	b, err := r.GetOrCreateRoutingContext("call-1")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 1, r.Stats().RoutingContexts)
	require.Len(t, a.RtpCapabilities.Codecs, 1)
	codec := a.RtpCapabilities.Codecs[0]
	assert.Equal(t, "audio/opus", codec.MimeType)
	assert.Equal(t, 48000, codec.ClockRate)
	assert.Equal(t, 2, codec.Channels)
}

func TestCreateTransport_RecordsBothIndices(t *testing.T) {
	r := newTestRegistry(t)

	td, err := r.CreateTransport("call-1", TransportOptions{EnableUDP: true})
	require.NoError(t, err)

	assert.NotEmpty(t, td.IceParameters.UsernameFragment)
	assert.NotEmpty(t, td.IceParameters.Password)
	require.Len(t, td.IceCandidates, 1)
	assert.Equal(t, "udp", td.IceCandidates[0].Protocol)
	assert.Equal(t, "203.0.113.5", td.IceCandidates[0].IP)
	require.Len(t, td.DtlsParameters.Fingerprints, 1)
	assert.Equal(t, "sha-256", td.DtlsParameters.Fingerprints[0].Algorithm)

	callID, ok := r.CallForTransport(td.ID)
	assert.True(t, ok)
	assert.Equal(t, "call-1", callID)

	r.mu.Lock()
	_, inSet := r.contexts["call-1"].transports[td.ID]
	r.mu.Unlock()
	assert.True(t, inSet)
}

func TestCreateTransport_DefaultsOfferBothProtocols(t *testing.T) {
	r := newTestRegistry(t)
	td, err := r.CreateTransport("call-1", TransportOptions{})
	require.NoError(t, err)
	require.Len(t, td.IceCandidates, 2)
	assert.Greater(t, td.IceCandidates[0].Priority, td.IceCandidates[1].Priority)
}

func TestCreateTransport_PortExhaustion(t *testing.T) {
	r, err := NewRegistry(ListenConfig{ListenIP: "127.0.0.1", MinPort: 40000, MaxPort: 40000})
	require.NoError(t, err)

	first, err := r.CreateTransport("call-1", TransportOptions{})
	require.NoError(t, err)
	_, err = r.CreateTransport("call-1", TransportOptions{})
	assert.True(t, errors.Is(err, ErrNoPortsAvailable))

	r.CloseTransport(first.ID)
	_, err = r.CreateTransport("call-1", TransportOptions{})
	assert.NoError(t, err)
}

func TestConnectTransport(t *testing.T) {
	r := newTestRegistry(t)
	td, err := r.CreateTransport("call-1", TransportOptions{})
	require.NoError(t, err)

	good := DtlsParameters{Role: "client", Fingerprints: []DtlsFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}}}
	assert.NoError(t, r.ConnectTransport(td.ID, good))
	assert.True(t, errors.Is(r.ConnectTransport("nope", good), ErrTransportNotFound))
	assert.True(t, errors.Is(r.ConnectTransport(td.ID, DtlsParameters{}), ErrInvalidDtlsParameters))

	badAlgo := DtlsParameters{Fingerprints: []DtlsFingerprint{{Algorithm: "crc-32", Value: "AB"}}}
	assert.True(t, errors.Is(r.ConnectTransport(td.ID, badAlgo), ErrInvalidDtlsParameters))
}

func TestProduce(t *testing.T) {
	r := newTestRegistry(t)
	td, err := r.CreateTransport("call-1", TransportOptions{})
	require.NoError(t, err)

	_, err = r.Produce("nope", KindAudio, opusParams())
	assert.True(t, errors.Is(err, ErrTransportNotFound))

	pcmu := RtpParameters{Codecs: []RtpCodecParameters{{MimeType: "audio/PCMU", PayloadType: 0, ClockRate: 8000}}}
	_, err = r.Produce(td.ID, KindAudio, pcmu)
	assert.True(t, errors.Is(err, ErrUnsupportedCodec))

	p, err := r.Produce(td.ID, KindAudio, opusParams())
	require.NoError(t, err)
	assert.Equal(t, KindAudio, p.Kind)

	_, err = r.Produce(td.ID, KindAudio, opusParams())
	assert.True(t, errors.Is(err, ErrProducerExists))

	assert.Equal(t, []ProducerInfo{{ProducerID: p.ID, Kind: KindAudio}}, r.ListProducers("call-1"))
	assert.Empty(t, r.ListProducers("other"))
}

func TestConsume_StartsPaused(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")

	c, err := r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)
	assert.True(t, c.Paused)
	assert.Equal(t, producerID, c.ProducerID)
	require.Len(t, c.RtpParameters.Codecs, 1)
	assert.Equal(t, 111, c.RtpParameters.Codecs[0].PayloadType)

	require.NoError(t, r.ResumeConsumer(c.ID))
	r.mu.Lock()
	assert.False(t, r.consumers[c.ID].paused)
	r.mu.Unlock()

	assert.True(t, errors.Is(r.ResumeConsumer("nope"), ErrConsumerNotFound))
}

func TestConsume_IncompatibleCapabilitiesCreatesNothing(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")

	mono := RtpCapabilities{Codecs: []RtpCodecCapability{{Kind: KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 1}}}
	_, err := r.Consume(recvID, producerID, mono, "call-1")
	assert.True(t, errors.Is(err, ErrIncompatibleCapabilities))

	_, err = r.Consume(recvID, producerID, RtpCapabilities{}, "call-1")
	assert.True(t, errors.Is(err, ErrIncompatibleCapabilities))

	assert.Equal(t, 0, r.Stats().Consumers)
}

func TestConsume_ProducerFromAnotherCallIsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, _, producerA := setupCall(t, r, "call-a")
	_, recvB, _ := setupCall(t, r, "call-b")

	_, err := r.Consume(recvB, producerA, opusCaps(), "call-b")
	assert.True(t, errors.Is(err, ErrProducerNotFound))
}

func TestConsume_NulledBackReferenceResolvesViaHint(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")

	r.mu.Lock()
	r.transports[recvID].router = nil
	r.mu.Unlock()

	c, err := r.Consume(recvID, producerID, opusCaps(), "call-1")
	require.NoError(t, err)
	assert.True(t, c.Paused)
}

func TestConsume_IndexWinsOverDisagreeingHint(t *testing.T) {
	r := newTestRegistry(t)
	_, recvA, producerA := setupCall(t, r, "call-a")
	_, _, producerB := setupCall(t, r, "call-b")

	r.mu.Lock()
	r.transports[recvA].router = nil
	r.mu.Unlock()

	_, err := r.Consume(recvA, producerB, opusCaps(), "call-b")
	assert.True(t, errors.Is(err, ErrProducerNotFound))

	c, err := r.Consume(recvA, producerA, opusCaps(), "call-b")
	require.NoError(t, err)
	callID, ok := r.CallForConsumer(c.ID)
	require.True(t, ok)
	assert.Equal(t, "call-a", callID)
}

func TestConsume_StaleTransportIsPurged(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")

	// Context gone while the transport entry lingers.
	r.mu.Lock()
	r.transports[recvID].router = nil
	delete(r.contexts, "call-1")
	r.mu.Unlock()

	var err error
	require.NotPanics(t, func() {
		_, err = r.Consume(recvID, producerID, opusCaps(), "call-1")
	})
	assert.True(t, errors.Is(err, ErrStaleTransport))

	_, ok := r.CallForTransport(recvID)
	assert.False(t, ok)
	r.mu.Lock()
	_, still := r.transports[recvID]
	r.mu.Unlock()
	assert.False(t, still)
}

func TestCloseTransport_Cascades(t *testing.T) {
	r := newTestRegistry(t)
	sendID, recvID, producerID := setupCall(t, r, "call-1")
	c, err := r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)

	r.CloseTransport(sendID)

	_, ok := r.CallForTransport(sendID)
	assert.False(t, ok)
	assert.Empty(t, r.ListProducers("call-1"))
	assert.True(t, errors.Is(r.ResumeConsumer(c.ID), ErrConsumerNotFound))

	r.mu.Lock()
	_, inSet := r.contexts["call-1"].transports[sendID]
	_, recvInSet := r.contexts["call-1"].transports[recvID]
	r.mu.Unlock()
	assert.False(t, inSet)
	assert.True(t, recvInSet)

	st := r.Stats()
	assert.Equal(t, 1, st.Transports)
	assert.Equal(t, 1, st.ReverseIndex)
	assert.Equal(t, 0, st.Producers)
	assert.Equal(t, 0, st.Consumers)

	r.CloseTransport(sendID)
}

func TestCloseReceivingTransport_RemovesItsConsumers(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")
	_, err := r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)

	r.CloseTransport(recvID)

	r.mu.Lock()
	assert.Empty(t, r.producers[producerID].consumers)
	r.mu.Unlock()
	assert.Equal(t, 0, r.Stats().Consumers)
}

func TestCleanupCall_IdempotentAndComplete(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")
	_, err := r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)
	_, _, _ = setupCall(t, r, "call-2")

	r.CleanupCall("call-1")
	st := r.Stats()
	assert.Equal(t, 1, st.RoutingContexts)
	assert.Equal(t, 2, st.Transports)
	assert.Equal(t, 2, st.ReverseIndex)

	require.NotPanics(t, func() { r.CleanupCall("call-1") })
	require.NotPanics(t, func() { r.CleanupCall("never-allocated") })

	r.CleanupCall("call-2")
	assertEmpty(t, r)
}

func TestCleanupCall_SweepsOrphanedReverseEntries(t *testing.T) {
	r := newTestRegistry(t)
	sendID, _, _ := setupCall(t, r, "call-1")

	// Transport dropped out of its context's set but is still indexed.
	r.mu.Lock()
	delete(r.contexts["call-1"].transports, sendID)
	r.transports[sendID].router = nil
	r.mu.Unlock()

	r.CleanupCall("call-1")
	assertEmpty(t, r)
}

func TestCloseRoutingContext_Cascades(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")
	_, err := r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)

	r.CloseRoutingContext("call-1")
	assertEmpty(t, r)
	r.CloseRoutingContext("call-1")
}

type countingObserver struct{ open, closed map[string]int }

func (o *countingObserver) ResourceOpened(kind string) { o.open[kind]++ }
func (o *countingObserver) ResourceClosed(kind string) { o.closed[kind]++ }

func TestObserverBalanced(t *testing.T) {
	obs := &countingObserver{open: map[string]int{}, closed: map[string]int{}}
	r, err := NewRegistry(ListenConfig{ListenIP: "127.0.0.1"}, WithObserver(obs))
	require.NoError(t, err)

	_, recvID, producerID := setupCall(t, r, "call-1")
	_, err = r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)
	r.CleanupCall("call-1")

	assert.Equal(t, obs.open, obs.closed)
	assert.Equal(t, 2, obs.open[resourceTransport])
}

func TestCallForConsumer(t *testing.T) {
	r := newTestRegistry(t)
	_, recvID, producerID := setupCall(t, r, "call-1")
	c, err := r.Consume(recvID, producerID, opusCaps(), "")
	require.NoError(t, err)

	callID, ok := r.CallForConsumer(c.ID)
	require.True(t, ok)
	assert.Equal(t, "call-1", callID)

	r.CleanupCall("call-1")
	_, ok = r.CallForConsumer(c.ID)
	assert.False(t, ok)
	_, ok = r.CallForConsumer("nope")
	assert.False(t, ok)
}

func TestCleanupCall_RefusesLaterAllocation(t *testing.T) {
	r := newTestRegistry(t)
	setupCall(t, r, "call-1")
	r.CleanupCall("call-1")

	_, err := r.GetOrCreateRoutingContext("call-1")
	assert.True(t, errors.Is(err, ErrCallClosed))
	_, err = r.RtpCapabilities("call-1")
	assert.True(t, errors.Is(err, ErrCallClosed))
	_, err = r.CreateTransport("call-1", TransportOptions{})
	assert.True(t, errors.Is(err, ErrCallClosed))
	assertEmpty(t, r)

	// A call cleaned up before anything was allocated is closed as well.
	r.CleanupCall("call-2")
	_, err = r.CreateTransport("call-2", TransportOptions{})
	assert.True(t, errors.Is(err, ErrCallClosed))
	assertEmpty(t, r)

	_, err = r.GetOrCreateRoutingContext("call-3")
	assert.NoError(t, err)
}

func TestCleanupCall_ClosedMarkersExpire(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.CleanupCall("call-old")
	now = now.Add(closedCallTTL + time.Minute)
	r.CleanupCall("call-new")

	r.mu.Lock()
	_, oldKept := r.closedCalls["call-old"]
	_, newKept := r.closedCalls["call-new"]
	r.mu.Unlock()
	assert.False(t, oldKept)
	assert.True(t, newKept)
}

package media

import "telehealth-platform/internal/apperr"

var (
	ErrTransportNotFound        = apperr.NotFound("transport not found")
	ErrProducerNotFound         = apperr.NotFound("producer not found")
	ErrConsumerNotFound         = apperr.NotFound("consumer not found")
	ErrStaleTransport           = apperr.New(apperr.KindStaleTransport, "transport is no longer attached to a call")
	ErrIncompatibleCapabilities = apperr.New(apperr.KindIncompatibleCapabilities, "cannot consume producer with given rtp capabilities")
	ErrUnsupportedCodec         = apperr.New(apperr.KindIncompatibleCapabilities, "producer codec not supported by routing context")
	ErrProducerExists           = apperr.Validation("transport already has a producer")
	ErrInvalidDtlsParameters    = apperr.Validation("invalid dtls parameters")
	ErrNoPortsAvailable         = apperr.New(apperr.KindUnavailable, "no media ports available")
)

// ErrCallClosed is returned for calls whose media has already been cleaned up.
var ErrCallClosed = apperr.New(apperr.KindInvalidStateTransition, "call has ended")

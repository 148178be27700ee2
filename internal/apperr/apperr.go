// Package apperr classifies failures so transports (websocket acks, HTTP)
// can map them without knowing which package produced them.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindAuthentication           Kind = "authentication"
	KindValidation               Kind = "validation"
	KindAuthorization            Kind = "authorization"
	KindNotFound                 Kind = "not_found"
	KindInvalidStateTransition   Kind = "invalid_state_transition"
	KindIncompatibleCapabilities Kind = "incompatible_capabilities"
	KindStaleTransport           Kind = "stale_transport"
	KindUnavailable              Kind = "unavailable"
	KindInternal                 Kind = "internal"
)

// Error is a classified failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so package
// sentinels keep working after Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches cause to a copy of sentinel.
func Wrap(sentinel *Error, cause error) *Error {
	if cause == nil {
		return sentinel
	}
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

func Validation(message string) *Error    { return New(KindValidation, message) }
func Authorization(message string) *Error { return New(KindAuthorization, message) }
func NotFound(message string) *Error      { return New(KindNotFound, message) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is what a client may see. Unclassified errors are hidden.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a failure to a response code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindValidation, KindIncompatibleCapabilities:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidStateTransition, KindStaleTransport:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

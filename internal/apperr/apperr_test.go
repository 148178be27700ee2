package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapKeepsSentinelIdentity(t *testing.T) {
	sentinel := NotFound("call not found")
	err := fmt.Errorf("lookup: %w", Wrap(sentinel, errors.New("no rows")))

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found, got %s", KindOf(err))
	}
	if PublicMessage(err) != "call not found" {
		t.Fatalf("unexpected public message %q", PublicMessage(err))
	}
}

func TestUnclassifiedErrorsAreHidden(t *testing.T) {
	err := errors.New("pq: connection refused")
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal")
	}
	if PublicMessage(err) != "internal error" {
		t.Fatalf("expected generic message")
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindAuthentication:         http.StatusUnauthorized,
		KindValidation:             http.StatusBadRequest,
		KindAuthorization:          http.StatusForbidden,
		KindNotFound:               http.StatusNotFound,
		KindInvalidStateTransition: http.StatusConflict,
		KindUnavailable:            http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		if got := HTTPStatus(New(kind, "x")); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

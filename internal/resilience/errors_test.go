package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request body"), false},
		{"explicit transient", NewTransientError(errors.New("x"), 0), true},
		{"wrapped transient", eris.Wrap(NewTransientError(errors.New("x"), 503), "search"), true},
		{"status 429", statusErr{429}, true},
		{"status 503 wrapped", eris.Wrap(statusErr{503}, "perplexity"), true},
		{"status 401", statusErr{401}, false},
		{"network timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"connection reset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"tls text", errors.New("net/http: TLS handshake timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	code, ok := HTTPStatus(eris.Wrap(statusErr{418}, "wrapped"))
	if !ok || code != 418 {
		t.Errorf("expected 418, got %d %v", code, ok)
	}
	if _, ok := HTTPStatus(errors.New("none")); ok {
		t.Error("expected no status")
	}
	code, ok = HTTPStatus(NewTransientError(errors.New("x"), 502))
	if !ok || code != 502 {
		t.Errorf("expected 502 from TransientError, got %d", code)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be permanent", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("expected inner message, got %q", te.Error())
	}
}

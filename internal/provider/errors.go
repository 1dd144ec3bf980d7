package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/answer-router/internal/resilience"
)

// Kind classifies a provider failure for the retry policy.
type Kind string

// Failure kinds.
const (
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
	KindMalformed   Kind = "malformed"
	KindUnavailable Kind = "unavailable"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable reports a provider that cannot be called at all, typically
// because its credentials are missing.
func Unavailable(id, reason string) error {
	return &Error{Kind: KindUnavailable, Provider: id, Err: eris.New(reason)}
}

// Malformed reports a response the provider returned but that cannot be used.
func Malformed(id, reason string) error {
	return &Error{Kind: KindMalformed, Provider: id, Err: eris.New(reason)}
}

// Classify wraps err from provider id into an *Error, picking the kind from
// deadlines and the upstream HTTP status.
func Classify(id string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: kindFor(err), Provider: id, Err: err}
}

// KindOf returns the failure kind of err.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return kindFor(err)
}

func kindFor(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if code, ok := resilience.HTTPStatus(err); ok {
		switch code {
		case http.StatusTooManyRequests:
			return KindRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindUnavailable
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return KindTimeout
		}
	}
	return KindUpstream
}

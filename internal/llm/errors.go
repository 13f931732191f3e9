package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies generation failures so callers can pick a message.
type ErrorKind int

const (
	Unavailable ErrorKind = iota
	AuthFailure
	RateLimited
	Timeout
	MalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case AuthFailure:
		return "auth_failure"
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unavailable"
	}
}

// GenerationError is returned by every Provider method.
type GenerationError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a GenerationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == kind
}

// KindOf returns the kind of a GenerationError, or Unavailable.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Unavailable
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return AuthFailure
	case code == http.StatusTooManyRequests:
		return RateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return Timeout
	default:
		return Unavailable
	}
}

func statusError(provider string, code int, err error) *GenerationError {
	return &GenerationError{Kind: kindForStatus(code), Provider: provider, StatusCode: code, Err: err}
}

func malformed(provider string, err error) *GenerationError {
	return &GenerationError{Kind: MalformedResponse, Provider: provider, Err: err}
}

func missingKey(provider string) *GenerationError {
	return &GenerationError{Kind: AuthFailure, Provider: provider, Err: errors.New("API key not configured")}
}

// classify turns a transport-level error into a GenerationError.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GenerationError{Kind: Timeout, Provider: provider, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &GenerationError{Kind: Timeout, Provider: provider, Err: err}
	}
	return &GenerationError{Kind: Unavailable, Provider: provider, Err: err}
}

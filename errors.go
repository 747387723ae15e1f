package mcpipe

import (
	"errors"
	"strings"
)

// ErrorKind classifies the failures reported by the client.
// The set is closed: every error returned by this package is an *Error with one of these kinds.
type ErrorKind uint8

const (
	// KindConnectTimeout: the connection was not established within Config.ConnectTimeout.
	KindConnectTimeout ErrorKind = iota + 1

	// KindConnect: the connection could not be established (refused, DNS failure, authentication rejected).
	KindConnect

	// KindClosed: the connection is no longer usable.
	// I/O errors, protocol errors, peer close, request timeouts and Shutdown all end up here.
	// This is the only kind RetryingClient retries.
	KindClosed

	// KindProtocol: the response stream could not be parsed.
	// It is never delivered on its own: it is the cause (Err) of the KindClosed failure
	// that every pending request receives.
	KindProtocol

	// KindRequestTimeout: a caller-imposed wait on a Future expired.
	// The request itself stays in the pipeline and may still complete.
	KindRequestTimeout

	// KindInvalidRequest: the request could not be serialized (empty key, key too long...).
	// Nothing was written and the connection is untouched.
	KindInvalidRequest

	// KindUnavailable: a BreakerClient refused the request because its circuit is open.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect timeout"
	case KindConnect:
		return "connect failed"
	case KindClosed:
		return "connection closed"
	case KindProtocol:
		return "protocol error"
	case KindRequestTimeout:
		return "request timeout"
	case KindInvalidRequest:
		return "invalid request"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by the client and its decorators.
//
// Reason is a human-readable explanation of what happened (e.g. "connection closed by peer").
// Err is the underlying cause, if any, and is available through errors.Unwrap.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("mcpipe: ")
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of the same kind.
// This lets callers write errors.Is(err, ErrClosed) regardless of the reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable returns true for failures that say nothing about the request itself,
// only about the connection it was sent on.
func (e *Error) Retryable() bool {
	return e.Kind == KindClosed
}

// Sentinels, one per kind. Use errors.Is to match them.
var (
	ErrConnectTimeout = &Error{Kind: KindConnectTimeout}
	ErrConnect        = &Error{Kind: KindConnect}
	ErrClosed         = &Error{Kind: KindClosed}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrRequestTimeout = &Error{Kind: KindRequestTimeout}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest}
	ErrUnavailable    = &Error{Kind: KindUnavailable}
)

// IsRetryable returns true if err is a closed-connection failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Reason returns the reason carried by err, or an empty string if err is not an *Error.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func closedError(reason string, cause error) *Error {
	return &Error{Kind: KindClosed, Reason: reason, Err: cause}
}

func protocolFailure(cause error) *Error {
	return closedError("protocol error", &Error{Kind: KindProtocol, Err: cause})
}

package httputil

import (
	"fmt"
)

// FailureKind tells how a gateway call failed.
type FailureKind int

const (
	// FailureOffline means the request was never sent because the client is offline.
	FailureOffline FailureKind = iota + 1
	// FailureTransport means no response was received.
	FailureTransport
	// FailureTimeout means the call exceeded its deadline.
	FailureTimeout
	// FailureStatus means the backend answered with a status >= 400.
	FailureStatus
	// FailureDecode means a 2xx body could not be decoded.
	FailureDecode
)

func (k FailureKind) String() string {
	switch k {
	case FailureOffline:
		return "offline"
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	case FailureStatus:
		return "status"
	case FailureDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Failure is the single error type returned by the gateway.
type Failure struct {
	Kind       FailureKind
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureStatus:
		return fmt.Sprintf("httputil: %s %s: status %d", f.Method, f.Path, f.StatusCode)
	case FailureOffline:
		return fmt.Sprintf("httputil: %s %s: offline", f.Method, f.Path)
	}
	if f.Err != nil {
		return fmt.Sprintf("httputil: %s %s: %s: %v", f.Method, f.Path, f.Kind, f.Err)
	}
	return fmt.Sprintf("httputil: %s %s: %s", f.Method, f.Path, f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// HasResponse reports whether the backend produced a response.
func (f *Failure) HasResponse() bool {
	return f.Kind == FailureStatus || f.Kind == FailureDecode
}

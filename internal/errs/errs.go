// Package errs implements the error taxonomy from spec §7. Transient
// per-frame errors never propagate past their component boundary — they
// become drop counters — so most constructors here exist to be logged or
// counted, not bubbled up across a frame boundary. Session-scope errors
// (capture restart exhaustion, encoder fatal failure, control-channel
// disconnect) propagate to the managing service via these typed wrappers.
package errs

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind classifies an error per the taxonomy in spec §7.
type Kind int

const (
	Protocol Kind = iota
	Capture
	Encoding
	Transport
	ResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case Capture:
		return "capture"
	case Encoding:
		return "encoding"
	case Transport:
		return "transport"
	case ResourceExhausted:
		return "resource_exhaustion"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with an eris-wrapped cause so callers retain a
// stack trace without the core ever panicking across a frame boundary.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string { return e.cause.Error() }
func (e *Error) Unwrap() error { return e.cause }

func new(kind Kind, msg string) error {
	return &Error{Kind: kind, cause: eris.New(msg)}
}

// Wrap attaches kind to an existing error, preserving its eris stack.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: eris.Wrap(err, msg)}
}

// ProtocolError builds a malformed-wire-data / unexpected-state error.
func ProtocolError(msg string) error { return new(Protocol, msg) }

// CaptureError builds a source-start/target-resolution/stall error.
func CaptureError(msg string) error { return new(Capture, msg) }

// EncodingError builds a session-creation/property-set/submit error.
func EncodingError(msg string) error { return new(Encoding, msg) }

// TransportError builds a send-failed/control-channel-disconnected error.
func TransportError(msg string) error { return new(Transport, msg) }

// ResourceExhaustion builds a pool-exhausted/in-flight-limit error.
func ResourceExhaustion(msg string) error { return new(ResourceExhausted, msg) }

// Unsupported builds a protocol-kind error for an operation the active
// configuration cannot perform (e.g. an unsupported pixel format).
func Unsupported(msg string) error { return new(Protocol, msg) }

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

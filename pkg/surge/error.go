package surge

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an Error by where in the session lifecycle it
// originated, matching the error categories a caller's ErrorSink needs to
// branch on.
type Kind int

const (
	// KindInternal covers executor-level panics and anything that does
	// not map to one of the named protocol error kinds below.
	KindInternal Kind = iota
	// KindAcceptError is reported when Listener.Accept fails.
	KindAcceptError
	// KindReadError is reported when an HTTP or WebSocket read fails.
	KindReadError
	// KindWriteError is reported when a write fails.
	KindWriteError
	// KindCloseError is reported when writing the WebSocket close frame
	// fails.
	KindCloseError
	// KindTimerError is reported when a liveness timer wait fails for a
	// reason other than cancellation.
	KindTimerError
	// KindPingError is reported when a liveness ping write fails.
	KindPingError
	// KindHandshakeError is reported when a WebSocket accept/handshake
	// fails; the session is never registered in this case.
	KindHandshakeError
	// KindBufferFull is returned synchronously from Send when a
	// session's write list is already at capacity.
	KindBufferFull
	// KindUnknownService is returned when a service sub-router lookup
	// misses.
	KindUnknownService
	// KindDuplicateService names registering a service under a name
	// already in use. ServiceRouter.AddService does not return it; it
	// replaces the existing registration.
	KindDuplicateService
)

// String renders the Kind the way it is named in the design's error
// category table.
func (k Kind) String() string {
	switch k {
	case KindAcceptError:
		return "AcceptError"
	case KindReadError:
		return "ReadError"
	case KindWriteError:
		return "WriteError"
	case KindCloseError:
		return "CloseError"
	case KindTimerError:
		return "TimerError"
	case KindPingError:
		return "PingError"
	case KindHandshakeError:
		return "HandshakeError"
	case KindBufferFull:
		return "BufferFull"
	case KindUnknownService:
		return "UnknownService"
	case KindDuplicateService:
		return "DuplicateService"
	default:
		return "InternalError"
	}
}

// Error is the concrete error type reported through ErrorSink and
// returned from synchronous calls like WSSession.Send.
//
// TraceID is a correlation id attached so a single failure can be
// followed across the accept log, the session's own on_error callback,
// and the error sink, the way a request id threads through blaze's
// middleware stack. It is not the session Identifier — per the framework's
// design notes, identifiers must stay a monotonic counter, never a UUID,
// to avoid implying any relationship with a specific connection attempt.
type Error struct {
	Kind    Kind
	Message string
	TraceID string
	cause   error
}

// NewError constructs an Error of the given Kind with a fresh TraceID.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, TraceID: uuid.NewString()}
}

func (e *Error) withCause(cause error) *Error {
	e.cause = cause
	return e
}

// WithCause attaches an underlying error, typically the return value of a
// failed syscall or library call.
func (e *Error) WithCause(cause error) *Error {
	return e.withCause(cause)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

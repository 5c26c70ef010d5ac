package surge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WithCauseUnwraps(t *testing.T) {
	cause := errors.New("underlying failure")
	err := NewError(KindReadError, "read failed").WithCause(cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ReadError")
	assert.Contains(t, err.Error(), "read failed")
	assert.Contains(t, err.Error(), "underlying failure")
}

func TestError_TraceIDsAreDistinct(t *testing.T) {
	a := NewError(KindInternal, "a")
	b := NewError(KindInternal, "b")

	assert.NotEmpty(t, a.TraceID)
	assert.NotEqual(t, a.TraceID, b.TraceID)
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindAcceptError:       "AcceptError",
		KindReadError:         "ReadError",
		KindWriteError:        "WriteError",
		KindCloseError:        "CloseError",
		KindTimerError:        "TimerError",
		KindPingError:         "PingError",
		KindHandshakeError:    "HandshakeError",
		KindBufferFull:        "BufferFull",
		KindUnknownService:    "UnknownService",
		KindDuplicateService:  "DuplicateService",
		KindInternal:          "InternalError",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

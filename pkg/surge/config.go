package surge

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the options recognized by the framework, matching the
// table in the specification's external-interfaces section.
//
// Default Values:
//   - ThreadCount: 1
//   - PingInterval: 15s (closes after two missed intervals)
//   - MaxReadMessageSize: 16 MiB
//   - ResponseQueueLimit: 64
//   - WriteListLimit: 64
//
// Use DefaultConfig as a starting point and override only what differs.
type Config struct {
	// Address is the bind IP (v4 or v6). Required.
	Address string `validate:"required"`

	// Port is the TCP port to listen on. Required, must be in range.
	Port int `validate:"required,min=1,max=65535"`

	// ThreadCount sizes the Executor's worker pool.
	ThreadCount int `validate:"min=1"`

	// PingInterval is the WebSocket liveness interval; a session that
	// misses two consecutive intervals with no activity is closed.
	PingInterval time.Duration `validate:"min=0"`

	// MaxReadMessageSize caps a single WebSocket frame's payload size.
	MaxReadMessageSize int64 `validate:"min=1"`

	// ResponseQueueLimit bounds the per-HTTP-session pipelined response
	// queue.
	ResponseQueueLimit int `validate:"min=1"`

	// WriteListLimit bounds the per-WebSocket-session outbound write
	// list.
	WriteListLimit int `validate:"min=1"`

	// RequestTimeout bounds how long an HTTP session waits for the next
	// pipelined request before its liveness timer closes it. Defaults to
	// PingInterval when zero.
	RequestTimeout time.Duration

	// Metrics, if non-nil, receives counters for sessions, errors, and
	// back-pressure events. Optional.
	Metrics *Metrics

	// Logger receives structured log records. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the framework's documented
// defaults. Address and Port are left for the caller to fill in.
func DefaultConfig() *Config {
	return &Config{
		ThreadCount:        1,
		PingInterval:       15 * time.Second,
		MaxReadMessageSize: 16 * 1024 * 1024,
		ResponseQueueLimit: 64,
		WriteListLimit:     64,
	}
}

var configValidator = validator.New()

// Validate rejects configurations that can never work: a zero port, a
// non-positive ThreadCount, or a zero-size message/queue/write-list
// limit. Wraps go-playground/validator the same way the teacher's
// Validator type does for request bodies, applied here to the framework's
// own options instead.
func (c *Config) Validate() error {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = c.PingInterval
	}
	if err := configValidator.Struct(c); err != nil {
		return NewError(KindInternal, "invalid configuration").WithCause(err)
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

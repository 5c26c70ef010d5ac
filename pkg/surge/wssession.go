package surge

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
)

// Frame kinds a WSSession can send or receive, matching the WebSocket
// wire types the handler deals in.
const (
	FrameText   = websocket.TextMessage
	FrameBinary = websocket.BinaryMessage
)

const controlWriteWait = 10 * time.Second

type writeItem struct {
	kind    int
	payload *Buffer
}

// WSSession is the WebSocket session state machine described in spec §4.4.
// The same type serves both server and client roles — the only
// difference between them is how the underlying *websocket.Conn came to
// exist (server: RFC 6455 handshake answered in-process; client: dialed
// out via Dialer), never the state machine that drives it afterward.
//
// All socket operations run on ioStrand; all user-handler callbacks run
// on handlerStrand, so a handler never observes two calls for the same
// session concurrently and never observes them from within a socket
// completion.
type WSSession struct {
	id       Identifier
	resource string

	conn *websocket.Conn

	ioStrand      *strand
	handlerStrand *strand

	handler WSHandler
	config  *Config
	logger  *slog.Logger
	metrics *Metrics
	registry *Registry

	pingTimer   *livenessTimer
	pingCounter atomic.Uint64
	waitOnPong  atomic.Bool
	isOpen      atomic.Bool

	writeMu     sync.Mutex
	writeList   []writeItem
	pendingClose *string

	eraseOnce sync.Once
	workGuard *WorkGuard
}

func newWSSession(conn *websocket.Conn, resource string, handler WSHandler, config *Config, e *Executor, registry *Registry, metrics *Metrics) *WSSession {
	return &WSSession{
		id:            nextIdentifier(),
		resource:      resource,
		conn:          conn,
		ioStrand:      newStrand(e),
		handlerStrand: newStrand(e),
		handler:       handler,
		config:        config,
		logger:        config.logger(),
		metrics:       metrics,
		registry:      registry,
		workGuard:     e.HoldWork(),
	}
}

// ID returns the session's Identifier.
func (s *WSSession) ID() Identifier { return s.id }

// Resource returns the request target the session was opened against.
func (s *WSSession) Resource() string { return s.resource }

// start installs the control-frame callbacks, arms the liveness timer,
// opens the session, and starts the dedicated read goroutine.
func (s *WSSession) start() {
	s.conn.SetReadLimit(s.config.MaxReadMessageSize)

	s.conn.SetPingHandler(func(appData string) error {
		s.activity()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	s.conn.SetPongHandler(func(string) error {
		s.activity()
		return nil
	})
	s.conn.SetCloseHandler(func(code int, text string) error {
		s.activity()
		return nil
	})

	s.isOpen.Store(true)
	s.metrics.sessionOpened()
	s.pingTimer = newLivenessTimer(s.config.PingInterval, s.onPingTimeout)

	s.handlerStrand.post(func() { s.handler.OnOpen(s.id, s.resource) })
	go s.readLoop()
}

// activity clears wait-on-pong and re-arms the liveness timer. Called on
// every inbound control frame and every successful data read.
func (s *WSSession) activity() {
	s.waitOnPong.Store(false)
	if s.pingTimer != nil {
		s.pingTimer.restart(s.config.PingInterval, s.onPingTimeout)
	}
}

// readLoop owns the session's blocking reads on a dedicated goroutine of
// its own, outside the Executor's worker pool. conn.ReadMessage blocks
// for as long as the peer stays idle — often a whole PingInterval or
// more — and the pool has no way to reclaim a worker mid-call; routing
// the read through ioStrand the way every other operation runs would let
// one idle or slow connection pin a worker for its entire lifetime and,
// at the framework's default ThreadCount of 1, stall every other
// session's reads, writes, and timers behind it. Everything that touches
// shared session state still runs on ioStrand/handlerStrand exactly as
// before; only the blocking syscall itself moved off the pool.
func (s *WSSession) readLoop() {
	for {
		if !s.isOpen.Load() {
			return
		}
		s.pingTimer.restart(s.config.PingInterval, s.onPingTimeout)

		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			done := make(chan struct{})
			s.ioStrand.post(func() {
				s.handleReadError(err)
				close(done)
			})
			<-done
			return
		}

		done := make(chan struct{})
		s.ioStrand.post(func() {
			s.handleFrame(mt, data)
			close(done)
		})
		<-done
	}
}

// handleFrame runs on ioStrand: it records activity and hands the
// payload to the handler strand, never blocking on the handler itself.
func (s *WSSession) handleFrame(mt int, data []byte) {
	s.activity()

	switch mt {
	case websocket.TextMessage:
		buf := AdoptBuffer(data)
		s.handlerStrand.post(func() { s.handler.OnText(s.id, s.resource, buf.Bytes()) })
	case websocket.BinaryMessage:
		buf := AdoptBuffer(data)
		s.handlerStrand.post(func() { s.handler.OnBinary(s.id, s.resource, buf.Bytes()) })
	default:
		// control frames are handled by the installed handlers in start
		// and never reach here.
	}
}

func (s *WSSession) handleReadError(err error) {
	if !s.isOpen.Load() || errors.Is(err, net.ErrClosed) {
		return // cancelled: a sibling path is already tearing down
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		// Peer sent an orderly close frame.
		s.erase()
		return
	}

	s.report(KindReadError, "read", err)
	// Unlike an async reactor, a blocked goroutine read on a broken
	// connection has no "ignore further completions" primitive to fall
	// back on: retrying the read here would busy-loop on the same
	// error. Scheduling the close and tearing the session down directly
	// reaches the same end state spec.md describes (session erased
	// after an orderly close attempt) without that loop.
	s.scheduleClose("read error")
	s.erase()
}

// Send enqueues a frame for the given kind and buffer. If the write list
// is already at capacity, BufferFull is returned synchronously — the
// caller's send attempt fails immediately rather than blocking or
// silently dropping.
func (s *WSSession) Send(kind int, buf *Buffer) error {
	s.writeMu.Lock()
	if !s.isOpen.Load() {
		s.writeMu.Unlock()
		if s.pingTimer != nil {
			s.pingTimer.stop()
		}
		return nil
	}
	if s.pendingClose != nil {
		s.writeMu.Unlock()
		return nil // a close is already scheduled; drop the message
	}
	if len(s.writeList) >= s.config.WriteListLimit {
		s.writeMu.Unlock()
		s.metrics.writeListFull()
		return NewError(KindBufferFull, "write list full")
	}
	wasEmpty := len(s.writeList) == 0
	s.writeList = append(s.writeList, writeItem{kind: kind, payload: buf.Retain()})
	s.writeMu.Unlock()

	if wasEmpty {
		s.ioStrand.post(s.doWrite)
	}
	return nil
}

// Close schedules an outbound close frame with the given reason. The
// first call's reason wins; subsequent calls (including the second call
// of an idempotent double-close) are no-ops.
func (s *WSSession) Close(reason string) {
	s.ioStrand.post(func() { s.scheduleClose(reason) })
}

func (s *WSSession) scheduleClose(reason string) {
	s.writeMu.Lock()
	already := s.pendingClose != nil
	if !already {
		s.pendingClose = &reason
	}
	startWrite := !already && len(s.writeList) == 0
	s.writeMu.Unlock()

	if startWrite {
		s.ioStrand.post(s.doWrite)
	}
}

// doWrite writes the head of the write list, or — once the list has
// drained and a close reason is pending — issues the close frame.
func (s *WSSession) doWrite() {
	s.writeMu.Lock()
	if len(s.writeList) == 0 {
		reason := s.pendingClose
		s.writeMu.Unlock()
		if reason != nil {
			s.issueClose(*reason)
		}
		return
	}
	item := s.writeList[0]
	s.writeMu.Unlock()

	err := s.conn.WriteMessage(item.kind, item.payload.Bytes())
	item.payload.Release()
	if err != nil {
		s.report(KindWriteError, "write", err)
		s.erase()
		return
	}

	s.writeMu.Lock()
	s.writeList = s.writeList[1:]
	more := len(s.writeList) > 0 || s.pendingClose != nil
	s.writeMu.Unlock()

	if more {
		s.ioStrand.post(s.doWrite)
	}
}

func (s *WSSession) issueClose(reason string) {
	if len(reason) > 123 {
		reason = reason[:123]
	}
	err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(controlWriteWait))
	if err != nil {
		s.report(KindCloseError, "close", err)
	}
	if s.pingTimer != nil {
		s.pingTimer.stop()
	}
	s.erase()
}

// onPingTimeout implements the liveness protocol: send a ping if one
// isn't already outstanding, or force-close the socket if a previous
// ping went unanswered through a full second interval.
func (s *WSSession) onPingTimeout() {
	if !s.isOpen.Load() {
		return
	}
	if !s.waitOnPong.Load() {
		s.waitOnPong.Store(true)
		s.pingTimer.restart(s.config.PingInterval, s.onPingTimeout)

		n := s.pingCounter.Add(1)
		payload := []byte(strconv.FormatUint(n, 10))
		s.ioStrand.post(func() {
			if err := s.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(controlWriteWait)); err != nil {
				s.report(KindPingError, "ping", err)
				s.metrics.pingFailure()
				s.scheduleClose("ping error")
			}
		})
		return
	}

	// No pong (or any control frame) arrived within the second interval.
	s.erase()
}

func (s *WSSession) report(kind Kind, location string, err error) {
	s.logger.Debug("websocket "+location+" error", "err", err)
	wrapped := NewError(kind, location).WithCause(err)
	s.handlerStrand.post(func() { s.handler.OnError(s.id, s.resource, location, wrapped) })
}

// erase tears the session down exactly once: closes the socket, stops
// the timer, fires OnClose, releases the work guard, and removes the
// session from its registry.
func (s *WSSession) erase() {
	s.eraseOnce.Do(func() {
		s.isOpen.Store(false)
		if s.pingTimer != nil {
			s.pingTimer.stop()
		}
		_ = s.conn.Close()
		s.handlerStrand.post(func() { s.handler.OnClose(s.id, s.resource) })
		s.metrics.sessionClosed()
		s.workGuard.Release()
		if s.registry != nil {
			s.registry.asyncErase(s.id)
		}
	})
}

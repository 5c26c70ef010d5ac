package surge

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
)

// httpSession is the per-connection HTTP pipeline state machine:
// reading -> dispatched -> writing, repeated for each pipelined request,
// with an orthogonal liveness timer that closes the connection on
// expiry.
//
// Invariants (see spec §3):
//   - at most one read in flight (enforced by a dedicated per-session
//     read goroutine that never issues a second read until the first is
//     fully parsed and handed to ioStrand)
//   - responses are written in FIFO order (slice-backed queue)
//   - when the queue is full, no new read is issued until a write
//     completes
type httpSession struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	ioStrand *strand

	handler   HTTPHandler
	wsHandler WSHandler
	router    *ServiceRouter
	config    *Config
	logger    *slog.Logger

	onUpgrade func(conn net.Conn, br *bufio.Reader, bw *bufio.Writer, req *Request, handler WSHandler)

	timer *livenessTimer

	// readSignal gates the read goroutine between requests: buffered to
	// 1, primed with a token so the first read proceeds immediately, and
	// refilled by allowNextRead once the response queue has room again.
	readSignal chan struct{}
	closeOnce  sync.Once
	closed     chan struct{}

	mu          sync.Mutex
	queue       []*Response
	writing     bool
	pausedReads bool

	eraseOnce sync.Once
	eraseFn   func()
	workGuard *WorkGuard

	closedByTimer atomic.Bool
	upgraded      atomic.Bool
}

func newHTTPSession(conn net.Conn, e *Executor, handler HTTPHandler, wsHandler WSHandler, router *ServiceRouter, config *Config) *httpSession {
	s := &httpSession{
		conn:       conn,
		br:         bufio.NewReader(conn),
		bw:         bufio.NewWriter(conn),
		ioStrand:   newStrand(e),
		handler:    handler,
		wsHandler:  wsHandler,
		router:     router,
		config:     config,
		logger:     config.logger(),
		workGuard:  e.HoldWork(),
		readSignal: make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
	s.readSignal <- struct{}{}
	return s
}

// start arms the liveness timer and starts the dedicated read goroutine.
func (s *httpSession) start() {
	s.armTimer()
	go s.readLoop()
}

func (s *httpSession) armTimer() {
	s.timer = newLivenessTimer(s.config.RequestTimeout, func() {
		s.ioStrand.post(s.onTimer)
	})
}

func (s *httpSession) onTimer() {
	s.closedByTimer.Store(true)
	s.erase()
}

// readLoop runs req.Read on a goroutine of its own, outside the
// Executor's worker pool. A pipelined client can leave the connection
// idle between requests for as long as RequestTimeout allows, and
// req.Read blocks for the whole wait; posting that blocking call onto
// ioStrand the way the rest of the session's work runs would pin
// whichever pool worker picked it up for the connection's entire
// lifetime, starving every other session sharing the pool (the default
// ThreadCount is 1). Parsing a request and deciding what happens next
// still happens on ioStrand, exactly as before, via handleRequest.
func (s *httpSession) readLoop() {
	for {
		select {
		case <-s.readSignal:
		case <-s.closed:
			return
		}

		req := &fasthttp.Request{}
		err := req.Read(s.br)
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
			s.handleRequest(req)
			close(done)
		})
		<-done
	}
}

// allowNextRead wakes the read goroutine for its next request. Posting
// to the buffered channel is a no-op if a token is already waiting.
func (s *httpSession) allowNextRead() {
	select {
	case s.readSignal <- struct{}{}:
	default:
	}
}

// stopReadLoop releases the read goroutine, either because the session
// is being torn down or because the connection was handed off to the
// WebSocket layer.
func (s *httpSession) stopReadLoop() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *httpSession) handleReadError(err error) {
	if s.closedByTimer.Load() || errors.Is(err, net.ErrClosed) {
		return // cancelled: a sibling path is already tearing down
	}
	if err == io.EOF {
		s.erase() // clean close, peer sent FIN
		return
	}
	s.logger.Debug("http read error", "err", err)
	s.erase()
}

// handleRequest runs on ioStrand: it dispatches the parsed request to
// the handler and decides whether the read goroutine may proceed to the
// next request immediately or must wait for the response queue to drain.
func (s *httpSession) handleRequest(req *fasthttp.Request) {
	s.timer.restart(s.config.RequestTimeout, func() { s.ioStrand.post(s.onTimer) })

	wrapped := &Request{raw: req}
	if wrapped.IsUpgrade() && s.wsHandler != nil {
		s.handleUpgrade(wrapped)
		return
	}

	var once sync.Once
	sink := ResponseSink(func(resp *Response) {
		called := false
		once.Do(func() {
			called = true
			s.enqueue(resp)
		})
		if !called {
			s.logger.Error("response sink invoked more than once; response ignored", "path", wrapped.Path())
		}
	})
	s.handler.Handle(wrapped, sink)

	if s.queueLen() < s.config.ResponseQueueLimit {
		s.allowNextRead()
	} else {
		s.mu.Lock()
		s.pausedReads = true
		s.mu.Unlock()
		s.config.Metrics.responseQueueFull()
	}
}

func (s *httpSession) handleUpgrade(req *Request) {
	handler := s.wsHandler
	if s.router != nil {
		resolved, err := s.router.Resolve(req.Path())
		if err != nil {
			resp := BadRequest(err.Error())
			_ = resp.raw.Write(s.bw)
			_ = s.bw.Flush()
			s.erase()
			return
		}
		handler = resolved
	}

	if err := writeUpgradeResponse(s.bw, req.raw); err != nil {
		s.logger.Debug("websocket handshake write failed", "err", err)
		s.erase()
		return
	}

	s.upgraded.Store(true)
	conn, br, bw := s.conn, s.br, s.bw
	s.timer.stop()
	// Ownership of the socket transfers to the WebSocket layer; release
	// our own work guard and read goroutine without closing the
	// connection.
	s.workGuard.Release()
	s.stopReadLoop()
	s.onUpgrade(conn, br, bw, req, handler)
}

func (s *httpSession) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// enqueue appends resp to the response queue and starts writing if it is
// the only item.
func (s *httpSession) enqueue(resp *Response) {
	s.mu.Lock()
	s.queue = append(s.queue, resp)
	start := !s.writing
	if start {
		s.writing = true
	}
	s.mu.Unlock()

	if start {
		s.ioStrand.post(s.doWrite)
	}
}

// doWrite writes the response at the head of the queue, then closes the
// connection if the response demanded it; otherwise it resumes paused
// reads (the queue now has room again) and continues with the next queued
// response, if any.
func (s *httpSession) doWrite() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.writing = false
		s.mu.Unlock()
		return
	}
	resp := s.queue[0]
	s.mu.Unlock()

	resp.SetHeader("Server", ServerHeader)
	err := resp.raw.Write(s.bw)
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		s.logger.Debug("http write error", "err", err)
		s.erase()
		return
	}

	s.mu.Lock()
	s.queue = s.queue[1:]
	s.mu.Unlock()

	if resp.closeAfter {
		_ = closeWrite(s.conn)
		s.erase()
		return
	}

	s.mu.Lock()
	more := len(s.queue) > 0
	if !more {
		s.writing = false
	}
	resumeReads := s.pausedReads
	s.pausedReads = false
	s.mu.Unlock()

	if resumeReads {
		s.allowNextRead()
	}
	if more {
		s.ioStrand.post(s.doWrite)
	}
}

func (s *httpSession) erase() {
	s.eraseOnce.Do(func() {
		s.timer.stop()
		_ = s.conn.Close()
		s.workGuard.Release()
		s.stopReadLoop()
		if s.eraseFn != nil {
			s.eraseFn()
		}
	})
}

// closeWrite half-closes the write side of conn if it supports it,
// matching the spec's shutdown_send semantics for a connection-closing
// response.
func closeWrite(conn net.Conn) error {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return conn.Close()
}

package surge

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"strconv"

	"github.com/fasthttp/websocket"
)

// Listener binds a TCP endpoint, accepts incoming connections, and
// constructs an HTTP session for each one.
type Listener struct {
	ln net.Listener
	e  *Executor

	httpHandler HTTPHandler
	wsHandler   WSHandler
	router      *ServiceRouter
	registry    *Registry
	config      *Config
	logger      *slog.Logger
	sink        ErrorSink

	workGuard *WorkGuard
}

// NewListener binds address:port and returns a Listener ready to Run.
func NewListener(e *Executor, registry *Registry, config *Config, httpHandler HTTPHandler, wsHandler WSHandler, router *ServiceRouter, sink ErrorSink) (*Listener, error) {
	if sink == nil {
		sink = NopErrorSink{}
	}
	addr := net.JoinHostPort(config.Address, strconv.Itoa(config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, NewError(KindAcceptError, "bind failed").WithCause(err)
	}
	return &Listener{
		ln:          ln,
		e:           e,
		httpHandler: httpHandler,
		wsHandler:   wsHandler,
		router:      router,
		registry:    registry,
		config:      config,
		logger:      config.logger(),
		sink:        sink,
		workGuard:   e.HoldWork(),
	}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Run drives the accept loop: on success, construct and start an HTTP
// session; on a fatal error (e.g. the listener was closed), stop
// accepting; on any other error, report and keep accepting.
func (l *Listener) Run() {
	defer l.workGuard.Release()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Debug("accept error", "err", err)
			l.sink.OnAcceptError(NewError(KindAcceptError, "accept failed").WithCause(err))
			l.config.Metrics.acceptError()
			if isFatalAcceptError(err) {
				return
			}
			continue
		}
		l.acceptConnection(conn)
	}
}

func (l *Listener) acceptConnection(conn net.Conn) {
	session := newHTTPSession(conn, l.e, l.httpHandler, l.wsHandler, l.router, l.config)
	session.onUpgrade = func(rawConn net.Conn, br *bufio.Reader, bw *bufio.Writer, req *Request, handler WSHandler) {
		l.completeUpgrade(newBufferedConn(rawConn, br), handler, req)
	}
	session.start()
}

// wsBufferSize is the read/write buffer size handed to websocket.NewConn.
// The framing layer buffers frames itself; this only sizes its internal
// scratch buffer, so a modest fixed size is sufficient regardless of
// MaxReadMessageSize.
const wsBufferSize = 4096

func (l *Listener) completeUpgrade(conn net.Conn, handler WSHandler, req *Request) {
	wsConn := websocket.NewConn(conn, true, wsBufferSize, wsBufferSize)
	l.registry.emplaceServer(wsConn, req.Path(), handler, l.config, l.config.Metrics)
}

// Close stops accepting new connections. In-flight HTTP and WebSocket
// sessions are unaffected; use Registry.Shutdown for those.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func isFatalAcceptError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "accept" && (opErr.Err != nil && !isTemporary(opErr.Err))
	}
	return false
}

func isTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}

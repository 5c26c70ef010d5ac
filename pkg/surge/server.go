package surge

import (
	"context"
	"log/slog"
	"net"
)

// Server wires an Executor, Listener, Registry, and optional ServiceRouter
// together into the single embeddable unit an application constructs: the
// entry point described informally throughout spec §2 and §4, but never
// named there as one type, since the original design treats "wire these
// pieces together" as the embedding application's own job. Surfacing it
// here is the one addition this package makes beyond the component list.
type Server struct {
	config   *Config
	executor *Executor
	registry *Registry
	router   *ServiceRouter
	dialer   *Dialer
	listener *Listener

	httpHandler HTTPHandler
	wsHandler   WSHandler
	sink        ErrorSink
	logger      *slog.Logger
}

// ServerOption customizes a Server at construction time.
type ServerOption func(*Server)

// WithHTTPHandler installs the handler plain (non-upgrade) HTTP requests
// are dispatched to. Without one, every non-upgrade request gets a 404.
func WithHTTPHandler(h HTTPHandler) ServerOption {
	return func(s *Server) { s.httpHandler = h }
}

// WithWSHandler installs the WebSocket handler used when no ServiceRouter
// is configured. With a router installed, it is not used as a fallback:
// an upgrade for a resource the router does not know is answered with
// 400 Bad Request.
func WithWSHandler(h WSHandler) ServerOption {
	return func(s *Server) { s.wsHandler = h }
}

// WithServiceRouter installs a ServiceRouter so upgrade requests are
// dispatched by resource path to distinct handlers instead of a single
// WSHandler.
func WithServiceRouter(r *ServiceRouter) ServerOption {
	return func(s *Server) { s.router = r }
}

// WithErrorSink installs the sink that receives accept errors and
// internal panics.
func WithErrorSink(sink ErrorSink) ServerOption {
	return func(s *Server) { s.sink = sink }
}

// NewServer validates config and constructs a Server ready to Run. The
// underlying listener socket is not bound until Run is called.
func NewServer(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.logger()

	s := &Server{
		config:      config,
		wsHandler:   NopWSHandler{},
		httpHandler: HTTPHandlerFunc(notFoundHandler),
		sink:        NopErrorSink{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.executor = NewExecutor(config.ThreadCount, s.sink, logger)
	s.registry = NewRegistry(s.executor)
	s.dialer = NewDialer(s.executor, s.registry, config, s.sink)
	return s, nil
}

func notFoundHandler(req *Request, sink ResponseSink) {
	sink(NotFound("no handler registered for " + req.Path()))
}

// Run binds the configured address:port and begins accepting
// connections. It blocks the calling goroutine until the listener is
// closed; callers that want a non-blocking start should run it in its
// own goroutine.
func (s *Server) Run() error {
	ln, err := NewListener(s.executor, s.registry, s.config, s.httpHandler, s.wsHandler, s.router, s.sink)
	if err != nil {
		return err
	}
	s.listener = ln
	ln.Run()
	return nil
}

// SetServiceRouter installs or replaces the ServiceRouter used to
// dispatch upgrade requests by resource path. Safe to call any time
// before Run; takes effect on the next call to Run.
func (s *Server) SetServiceRouter(r *ServiceRouter) { s.router = r }

// SetWSHandler installs or replaces the WebSocket handler used when no
// ServiceRouter is configured; a router miss does not fall back to it.
func (s *Server) SetWSHandler(h WSHandler) { s.wsHandler = h }

// SetHTTPHandler installs or replaces the handler for non-upgrade HTTP
// requests.
func (s *Server) SetHTTPHandler(h HTTPHandler) { s.httpHandler = h }

// Addr returns the bound local address, or nil until Run has bound the
// listener.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry returns the session registry, for broadcasting or inspecting
// session counts from outside the accept loop.
func (s *Server) Registry() *Registry { return s.registry }

// Dialer returns the client connector sharing this server's executor and
// registry.
func (s *Server) Dialer() *Dialer { return s.dialer }

// Executor returns the worker pool backing this server, for posting
// application work onto the same pool sessions run on.
func (s *Server) Executor() *Executor { return s.executor }

// Shutdown stops accepting new connections, closes every live session,
// and blocks until the registry is empty and the executor's workers have
// exited, or ctx is done, whichever comes first. It does not wait for
// plain HTTP sessions' work guards.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.registry.Shutdown()

	done := make(chan struct{})
	go func() {
		s.registry.Block()
		s.executor.Stop()
		s.executor.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

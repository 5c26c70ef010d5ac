package surge

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/fasthttp/websocket"
	"golang.org/x/sync/errgroup"
)

// Dialer is the Client Connector from spec §4.6: it resolves a
// WebSocket URL to one or more candidate endpoints, races dials against
// them, performs the client-side RFC 6455 handshake, and wires the
// result into a WSSession the same state machine a server-accepted
// session runs.
type Dialer struct {
	e        *Executor
	registry *Registry
	config   *Config
	sink     ErrorSink

	wsDialer *websocket.Dialer
}

// NewDialer builds a Dialer sharing e's worker pool and registry so
// client-role sessions participate in the same broadcast and shutdown
// sweeps as server-role ones.
func NewDialer(e *Executor, registry *Registry, config *Config, sink ErrorSink) *Dialer {
	if sink == nil {
		sink = NopErrorSink{}
	}
	return &Dialer{
		e:        e,
		registry: registry,
		config:   config,
		sink:     sink,
		wsDialer: &websocket.Dialer{
			ReadBufferSize:   wsBufferSize,
			WriteBufferSize:  wsBufferSize,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Connect resolves target (a ws:// or wss:// URL), dials every resolved
// address concurrently with the handshake included — the first to
// complete wins, the rest are cancelled or closed — and returns a running
// client-role WSSession bound to handler. Addresses are not tried one
// after another in resolver order.
//
// Resolution itself is sequential (net.DefaultResolver.LookupHost
// already returns addresses in the order the system resolver prefers);
// what races is the connection attempt against each of them, via
// errgroup so the first success cancels the others instead of waiting
// out a dead address's full dial timeout.
func (d *Dialer) Connect(ctx context.Context, target string, handler WSHandler) (*WSSession, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, NewError(KindHandshakeError, "invalid target url").WithCause(err)
	}

	host := u.Hostname()
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, NewError(KindHandshakeError, "resolve failed").WithCause(err)
	}
	if len(addrs) == 0 {
		addrs = []string{host}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type dialResult struct {
		conn *websocket.Conn
		resp *http.Response
	}
	results := make(chan dialResult, 1)

	g, gctx := errgroup.WithContext(raceCtx)
	for _, addr := range addrs {
		addr := addr
		dialURL := *u
		dialURL.Host = net.JoinHostPort(addr, u.Port())
		g.Go(func() error {
			conn, resp, err := d.wsDialer.DialContext(gctx, dialURL.String(), nil)
			if err != nil {
				return nil // a sibling endpoint may still succeed
			}
			select {
			case results <- dialResult{conn: conn, resp: resp}:
				cancel()
			default:
				_ = conn.Close()
			}
			return nil
		})
	}

	waitDone := make(chan struct{})
	go func() { _ = g.Wait(); close(waitDone) }()

	var res dialResult
	select {
	case res = <-results:
	case <-waitDone:
		// Every attempt has returned; one of them may still have
		// delivered a connection before this case was chosen.
		select {
		case res = <-results:
		default:
			return nil, NewError(KindHandshakeError, "all endpoints failed").WithCause(ctx.Err())
		}
	case <-ctx.Done():
		return nil, NewError(KindHandshakeError, "connect cancelled").WithCause(ctx.Err())
	}

	if res.resp != nil && res.resp.Body != nil {
		_ = res.resp.Body.Close()
	}
	session := newWSSession(res.conn, u.Path, handler, d.config, d.e, d.registry, d.config.Metrics)
	d.registry.adopt(session)
	session.start()
	return session, nil
}

package surge

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort asks the OS for an ephemeral port and immediately releases it.
// Config.Validate requires Port >= 1, so tests can't bind port 0 directly
// through the server the way a raw net.Listen could.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestServer_RunServesHTTP(t *testing.T) {
	config := DefaultConfig()
	config.Address = "127.0.0.1"
	config.Port = freePort(t)
	config.PingInterval = time.Hour

	handler := newRecordingHandler()
	server, err := NewServer(config,
		WithWSHandler(handler),
		WithHTTPHandler(HTTPHandlerFunc(func(req *Request, sink ResponseSink) {
			sink(NewResponse(200, "text/plain", []byte("ok:"+req.Path())))
		})),
	)
	require.NoError(t, err)

	go func() { _ = server.Run() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	require.Eventually(t, func() bool { return server.Addr() != nil }, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + server.Addr().String() + "/hello")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	resp.Body.Close()
}

func TestDialer_ConnectsToRunningServer(t *testing.T) {
	config := DefaultConfig()
	config.Address = "127.0.0.1"
	config.Port = freePort(t)
	config.PingInterval = time.Hour

	serverHandler := newRecordingHandler()
	server, err := NewServer(config, WithWSHandler(serverHandler))
	require.NoError(t, err)

	go func() { _ = server.Run() }()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()
	require.Eventually(t, func() bool { return server.Addr() != nil }, time.Second, 5*time.Millisecond)

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	url := "ws://" + server.Addr().String() + "/chat"
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-serverHandler.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the client's upgrade")
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	select {
	case text := <-serverHandler.texts:
		assert.Equal(t, "hi", text)
	case <-time.After(time.Second):
		t.Fatal("server never received the client's message")
	}
}

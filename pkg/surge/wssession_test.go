package surge

import (
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairedSessions wires a WSSession over one end of an in-memory net.Pipe,
// leaving the other end wrapped as a plain client-role *websocket.Conn
// the test can read from / write to directly — standing in for the real
// peer a TCP socket would connect, without needing an actual listener.
func pairedSessions(t *testing.T, e *Executor, registry *Registry, handler WSHandler, config *Config) (*WSSession, *websocket.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()

	serverConn := websocket.NewConn(serverSide, true, wsBufferSize, wsBufferSize)
	clientConn := websocket.NewConn(clientSide, false, wsBufferSize, wsBufferSize)

	session := registry.emplaceServer(serverConn, "/chat", handler, config, config.Metrics)
	require.NotNil(t, session)

	return session, clientConn
}

type recordingHandler struct {
	NopWSHandler
	opened chan Identifier
	texts  chan string
	closed chan Identifier
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opened: make(chan Identifier, 8),
		texts:  make(chan string, 8),
		closed: make(chan Identifier, 8),
	}
}

func (h *recordingHandler) OnOpen(id Identifier, resource string)  { h.opened <- id }
func (h *recordingHandler) OnClose(id Identifier, resource string) { h.closed <- id }
func (h *recordingHandler) OnText(id Identifier, resource string, data []byte) {
	h.texts <- string(data)
}

func testConfig() *Config {
	c := DefaultConfig()
	c.Address = "127.0.0.1"
	c.Port = 9999
	c.PingInterval = time.Hour // effectively disabled for these tests
	return c
}

func TestWSSession_OpenAndEcho(t *testing.T) {
	e := NewExecutor(2, nil, nil)
	defer e.Stop()
	registry := NewRegistry(e)
	handler := newRecordingHandler()
	config := testConfig()

	session, client := pairedSessions(t, e, registry, handler, config)
	defer client.Close()

	select {
	case id := <-handler.opened:
		assert.Equal(t, session.ID(), id)
	case <-time.After(time.Second):
		t.Fatal("OnOpen never fired")
	}

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ping")))

	select {
	case text := <-handler.texts:
		assert.Equal(t, "ping", text)
	case <-time.After(time.Second):
		t.Fatal("OnText never fired")
	}

	require.NoError(t, session.Send(FrameText, NewBufferFromString("pong")))

	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "pong", string(data))
}

func TestWSSession_SendFailsWhenWriteListFull(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()
	registry := NewRegistry(e)
	handler := newRecordingHandler()
	config := testConfig()
	config.WriteListLimit = 1

	session, client := pairedSessions(t, e, registry, handler, config)
	defer client.Close()

	<-handler.opened

	// net.Pipe is unbuffered: the first Send's write blocks until client
	// reads it, so the item stays counted in the write list the whole
	// time. With WriteListLimit 1, the very next Send must observe the
	// list already full.
	require.NoError(t, session.Send(FrameText, NewBufferFromString("x")))

	var secondErr error
	require.Eventually(t, func() bool {
		secondErr = session.Send(FrameText, NewBufferFromString("y"))
		return secondErr != nil
	}, time.Second, time.Millisecond)

	var surgeErr *Error
	require.ErrorAs(t, secondErr, &surgeErr)
	assert.Equal(t, KindBufferFull, surgeErr.Kind)
}

func TestWSSession_CloseErasesFromRegistry(t *testing.T) {
	e := NewExecutor(2, nil, nil)
	defer e.Stop()
	registry := NewRegistry(e)
	handler := newRecordingHandler()
	config := testConfig()

	session, client := pairedSessions(t, e, registry, handler, config)
	defer client.Close()

	<-handler.opened
	require.Equal(t, 1, registry.Count())

	// net.Pipe is unbuffered: the close frame write only completes once
	// the client side reads it.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	session.Close("bye")

	select {
	case id := <-handler.closed:
		assert.Equal(t, session.ID(), id)
	case <-time.After(time.Second):
		t.Fatal("OnClose never fired")
	}

	assert.Eventually(t, func() bool { return registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

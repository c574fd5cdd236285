package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHub runs a hub for the duration of the test.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	go hub.Run(context.Background())
	t.Cleanup(func() { hub.Shutdown(time.Second) })
	return hub
}

func newRelayServer(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	hub := startHub(t)
	srv := httptest.NewServer(NewHandler(hub, opts, testLogger()))
	t.Cleanup(srv.Close)
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, header http.Header) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

// =========================================================================
// RELAY OVER REAL CONNECTIONS
// =========================================================================

func TestRelay_BroadcastIncludesSender(t *testing.T) {
	hub, srv := newRelayServer(t, Options{MaxMessageSize: 4096})
	alice := dial(t, srv, hub, nil)
	bob := dial(t, srv, hub, nil)
	carol := dial(t, srv, hub, nil)

	payload := `{"user":"alice","text":"hi"}`
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":`+payload+`}`)))

	want := `{"event":"message","data":` + payload + `}`
	for _, c := range []*websocket.Conn{alice, bob, carol} {
		assert.Equal(t, want, readFrame(t, c))
	}
}

func TestRelay_DataIsForwardedVerbatim(t *testing.T) {
	hub, srv := newRelayServer(t, Options{MaxMessageSize: 4096})
	sender := dial(t, srv, hub, nil)
	receiver := dial(t, srv, hub, nil)

	payload := `{ "text" : "x", "image":"https://cdn.example.com/uploads/a.png", "n": [1, 2.50] }`
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"data":`+payload+`,"event":"message"}`)))

	assert.Equal(t, `{"event":"message","data":`+payload+`}`, readFrame(t, receiver))
}

func TestRelay_DropsUnknownAndMalformedFrames(t *testing.T) {
	hub, srv := newRelayServer(t, Options{MaxMessageSize: 4096})
	sender := dial(t, srv, hub, nil)
	receiver := dial(t, srv, hub, nil)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing","data":"alice"}`)))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":"after"}`)))

	assert.Equal(t, `{"event":"message","data":"after"}`, readFrame(t, receiver))
	assert.Equal(t, 2, hub.ClientCount(), "bad frames must not disconnect the sender")
}

func TestRelay_MissingDataBecomesNull(t *testing.T) {
	hub, srv := newRelayServer(t, Options{MaxMessageSize: 4096})
	c := dial(t, srv, hub, nil)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"message"}`)))
	assert.Equal(t, `{"event":"message","data":null}`, readFrame(t, c))
}

func TestRelay_OversizedFrameDisconnects(t *testing.T) {
	hub, srv := newRelayServer(t, Options{MaxMessageSize: 64})
	c := dial(t, srv, hub, nil)

	big := `{"event":"message","data":"` + strings.Repeat("x", 128) + `"}`
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(big)))

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelay_DisconnectUnsubscribes(t *testing.T) {
	hub, srv := newRelayServer(t, Options{MaxMessageSize: 4096})
	c := dial(t, srv, hub, nil)
	dial(t, srv, hub, nil)
	require.Equal(t, 2, hub.ClientCount())

	c.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// =========================================================================
// ORIGIN CHECKS
// =========================================================================

func TestHandler_Origins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string // "" sends no Origin header; "self" uses the server URL
		wantOK  bool
	}{
		{"no origin header", nil, "", true},
		{"same origin by default", nil, "self", true},
		{"foreign origin by default", nil, "https://evil.example.com", false},
		{"listed origin", []string{"https://chat.example.com"}, "https://CHAT.example.com", true},
		{"unlisted origin", []string{"https://chat.example.com"}, "https://evil.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newRelayServer(t, Options{AllowedOrigins: tt.allowed, MaxMessageSize: 4096})

			header := http.Header{}
			switch tt.origin {
			case "":
			case "self":
				header.Set("Origin", srv.URL)
			default:
				header.Set("Origin", tt.origin)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			if tt.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

// =========================================================================
// HUB UNIT TESTS (no network)
// =========================================================================

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := startHub(t)

	slow := newClient(nil, hub, "slow", 1, testLogger())
	fast := newClient(nil, hub, "fast", 8, testLogger())
	require.True(t, hub.Subscribe(slow))
	require.True(t, hub.Subscribe(fast))

	hub.Publish([]byte("one"))
	hub.Publish([]byte("two"))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "one", string(<-slow.send))
	_, open := <-slow.send
	assert.False(t, open, "dropped client's channel must be closed")

	assert.Equal(t, "one", string(<-fast.send))
	assert.Equal(t, "two", string(<-fast.send))
}

func TestHub_UnsubscribeTwiceIsNoop(t *testing.T) {
	hub := startHub(t)
	c := newClient(nil, hub, "c", 1, testLogger())

	require.True(t, hub.Subscribe(c))
	hub.Unsubscribe(c)
	hub.Unsubscribe(c)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ShutdownClosesSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run(context.Background())

	c := newClient(nil, hub, "c", 1, testLogger())
	require.True(t, hub.Subscribe(c))

	require.NoError(t, hub.Shutdown(time.Second))

	_, open := <-c.send
	assert.False(t, open)
	assert.False(t, hub.Subscribe(newClient(nil, hub, "late", 1, testLogger())))

	// Publishing after shutdown must not block.
	hub.Publish([]byte("ignored"))
	assert.False(t, hub.spawn(func() {}))
}

func TestHub_RunStopsOnContextCancel(t *testing.T) {
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cancel()
	select {
	case <-hub.stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestMessageFrame(t *testing.T) {
	assert.Equal(t, `{"event":"message","data":{"a":1}}`, string(messageFrame([]byte(`{"a":1}`))))
	assert.Equal(t, `{"event":"message","data":null}`, string(messageFrame(nil)))
}

package internal

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/session"
)

type testServer struct {
	*httptest.Server
	hub         *Hub
	metrics     *Metrics
	coordinator *session.Coordinator
}

func newTestServer(t *testing.T, opts ServerOptions) *testServer {
	t.Helper()
	metrics := NewMetrics()
	hub := NewHub(metrics, zerolog.Nop())
	coordinator := session.NewCoordinator(hub, session.Config{Logger: zerolog.Nop(), Observer: metrics})
	opts.Coordinator = coordinator
	opts.Hub = hub
	opts.Metrics = metrics
	opts.Logger = zerolog.Nop()
	server := NewServer(opts)
	ts := httptest.NewServer(server.Routes("/join"))
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
	})
	return &testServer{Server: ts, hub: hub, metrics: metrics, coordinator: coordinator}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/join"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func (ts *testServer) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	encoded, err := session.EncodeFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, encoded))
}

// readUntil reads frames until one named event arrives and decodes its data.
func readUntil(t *testing.T, conn *websocket.Conn, event string, dst any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		frame, err := session.DecodeFrame(payload)
		require.NoError(t, err)
		if frame.Event != event {
			continue
		}
		if dst != nil {
			require.NoError(t, json.Unmarshal(frame.Data, dst))
		}
		return
	}
}

func join(t *testing.T, conn *websocket.Conn, username, room string) {
	t.Helper()
	sendFrame(t, conn, session.EventJoin, session.JoinPayload{Username: username, Room: room})
	readUntil(t, conn, session.EventRoomMessages, nil)
}

func TestWebsocketRoomBroadcast(t *testing.T) {
	ts := newTestServer(t, ServerOptions{})
	alice := ts.dial(t)
	bob := ts.dial(t)
	join(t, alice, "alice", "")
	join(t, bob, "bob", "")

	sendFrame(t, alice, session.EventSend, session.SendPayload{Text: "hello bob"})

	var got session.Message
	readUntil(t, bob, session.EventReceiveMessage, &got)
	require.Equal(t, "alice", got.Sender)
	require.Equal(t, "hello bob", got.Text)
	require.Equal(t, session.DefaultRoom, got.Room)
	require.NotEmpty(t, got.ID)

	var users []session.Session
	status, body := ts.get(t, "/api/users")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 2)

	var rooms []session.RoomSummary
	status, body = ts.get(t, "/api/rooms")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Len(t, rooms, 1)
	require.Equal(t, session.DefaultRoom, rooms[0].Name)
	require.Equal(t, 2, rooms[0].UserCount)

	var msgs []session.Message
	status, body = ts.get(t, "/api/messages")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, got.ID, msgs[0].ID)
}

func TestWebsocketCloseReportsDisconnect(t *testing.T) {
	ts := newTestServer(t, ServerOptions{})
	alice := ts.dial(t)
	bob := ts.dial(t)
	join(t, alice, "alice", "lobby")
	join(t, bob, "bob", "lobby")

	require.NoError(t, bob.Close())

	var left session.UserEvent
	readUntil(t, alice, session.EventUserLeft, &left)
	require.Equal(t, "bob", left.Username)
	require.Equal(t, "lobby", left.Room)

	require.Eventually(t, func() bool {
		return len(ts.coordinator.Snapshot().Users) == 1 && ts.hub.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketInvalidFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t, ServerOptions{})
	conn := ts.dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	sendFrame(t, conn, session.EventJoin, session.JoinPayload{})
	join(t, conn, "carol", "")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.invalidPayloads.WithLabelValues(session.EventJoin)) == 1 &&
			testutil.ToFloat64(ts.metrics.events.WithLabelValues(session.EventJoin)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRoomExists(t *testing.T) {
	ts := newTestServer(t, ServerOptions{})
	join(t, ts.dial(t), "alice", "books")

	status, _ := ts.get(t, "/exists?room=books")
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.get(t, "/exists?room=films")
	require.Equal(t, http.StatusNotFound, status)
	status, _ = ts.get(t, "/exists")
	require.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndIndex(t *testing.T) {
	ts := newTestServer(t, ServerOptions{Persistence: "sqlite"})
	ts.dial(t)
	require.Eventually(t, func() bool { return ts.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	var health healthResponse
	status, body := ts.get(t, "/health")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "sqlite", health.Persistence)
	require.Equal(t, 1, health.Connections)

	var index indexResponse
	status, body = ts.get(t, "/")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &index))
	require.Equal(t, "/api/rooms", index.Endpoints["rooms"])

	status, _ = ts.get(t, "/nope")
	require.Equal(t, http.StatusNotFound, status)
}

func TestAPIRequiresGet(t *testing.T) {
	ts := newTestServer(t, ServerOptions{})
	resp, err := http.Post(ts.URL+"/api/messages", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
}

func TestAPIRateLimit(t *testing.T) {
	ts := newTestServer(t, ServerOptions{APILimiter: NewRateLimiter(2, time.Minute)})
	for i := 0; i < 2; i++ {
		status, _ := ts.get(t, "/api/rooms")
		require.Equal(t, http.StatusOK, status)
	}
	status, body := ts.get(t, "/api/rooms")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Contains(t, string(body), "too many requests")

	status, _ = ts.get(t, "/health")
	require.Equal(t, http.StatusOK, status)
}

func TestConnectionRateLimit(t *testing.T) {
	ts := newTestServer(t, ServerOptions{ConnLimiter: NewRateLimiter(1, time.Minute)})
	ts.dial(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/join"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, ServerOptions{})
	join(t, ts.dial(t), "alice", "")

	require.Eventually(t, func() bool {
		status, body := ts.get(t, "/metrics")
		text := string(body)
		return status == http.StatusOK &&
			strings.Contains(text, "chatrelay_ws_connections 1") &&
			strings.Contains(text, "chatrelay_sessions 1") &&
			strings.Contains(text, `chatrelay_events_total{event="join"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
}

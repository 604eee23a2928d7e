package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submission-observer/src/helpers"
	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------

func managerLogger() *logger.Logger {
	return logger.NewLogger("ERROR", "ManagerTest")
}

// -----------------------------------------------------------------------------

type fakeCreds struct {
	token string
}

func (f *fakeCreds) Get() (string, error) { return f.token, nil }
func (f *fakeCreds) Available() bool      { return f.token != "" }

// -----------------------------------------------------------------------------

// wsHarness is a test pub/sub endpoint: it records the handshake cookies and
// subscribe commands of every session and can push frames to the newest one.
type wsHarness struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	cookies  []string
	sessions []*websocket.Conn
	commands chan models.MSubscribeCommand
}

func newWsHarness() *wsHarness {
	return &wsHarness{
		commands: make(chan models.MSubscribeCommand, 32),
	}
}

func (h *wsHarness) handler(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.cookies = append(h.cookies, r.Header.Get("Cookie"))
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.sessions = append(h.sessions, conn)
	h.mu.Unlock()

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd models.MSubscribeCommand
			if json.Unmarshal(raw, &cmd) == nil {
				h.commands <- cmd
			}
		}
	}()
}

func (h *wsHarness) sessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *wsHarness) latestSession() *websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) == 0 {
		return nil
	}
	return h.sessions[len(h.sessions)-1]
}

func (h *wsHarness) awaitCommands(t *testing.T, n int) []models.MSubscribeCommand {
	t.Helper()
	var cmds []models.MSubscribeCommand
	for len(cmds) < n {
		select {
		case cmd := <-h.commands:
			cmds = append(cmds, cmd)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %d commands, got %d", n, len(cmds))
		}
	}
	return cmds
}

// -----------------------------------------------------------------------------

func newTestManager(baseURL string, creds *fakeCreds, fanout *Fanout) *ConnectionManager {
	cfg := &models.MConfig{
		Server: models.MServerConfig{BaseURL: baseURL},
		Realtime: models.MRealtimeConfig{
			WebsocketPath:         "/websocket/tracker/websocket",
			ReconnectDelaySeconds: 1,
			MaxReportedReconnects: 20,
			ETATickMillis:         500,
		},
	}
	return NewConnectionManager(cfg, creds, fanout, managerLogger())
}

// -----------------------------------------------------------------------------

func TestDeriveEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://lms.example.edu", "ws://lms.example.edu/websocket/tracker/websocket"},
		{"https://lms.example.edu", "wss://lms.example.edu/websocket/tracker/websocket"},
		{"https://lms.example.edu/", "wss://lms.example.edu/websocket/tracker/websocket"},
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/websocket/tracker/websocket"},
	}

	for _, tt := range tests {
		got, err := DeriveEndpoint(tt.base, "/websocket/tracker/websocket")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := DeriveEndpoint("ftp://lms.example.edu", "/ws")
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestConnect_WithoutCredential(t *testing.T) {
	m := newTestManager("http://127.0.0.1:1", &fakeCreds{token: ""}, NewFanout(managerLogger()))

	err := m.Connect(context.Background())
	require.Error(t, err)

	var authErr *helpers.AuthenticationMissingError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, m.IsConnected())
}

// -----------------------------------------------------------------------------

func TestConnect_HandshakeFailure(t *testing.T) {
	// Nothing listens here
	m := newTestManager("http://127.0.0.1:1", &fakeCreds{token: "tok"}, NewFanout(managerLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := m.Connect(ctx)
	require.Error(t, err)

	var transportErr *helpers.TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Equal(t, StateDisconnected, m.State())
}

// -----------------------------------------------------------------------------

func TestConnect_AutoSubscribesPersonalTopics(t *testing.T) {
	harness := newWsHarness()
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket/tracker/websocket", harness.handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newTestManager(srv.URL, &fakeCreds{token: "session-token"}, NewFanout(managerLogger()))

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	assert.True(t, m.IsConnected())
	assert.Equal(t, StateConnected, m.State())

	// The credential travels as a cookie, never in the URL
	assert.True(t, strings.Contains(harness.cookies[0], "jwt=session-token"))

	cmds := harness.awaitCommands(t, 3)
	var topics []string
	for _, cmd := range cmds {
		assert.Equal(t, "subscribe", cmd.Command)
		topics = append(topics, cmd.Topic)
	}
	assert.ElementsMatch(t, PersonalTopics(), topics)
	assert.Equal(t, 3, m.SubscriptionCount())

	// Connect again must be a no-op, not a second session
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, harness.sessionCount())
}

// -----------------------------------------------------------------------------

func TestConnect_InboundEventReachesFanout(t *testing.T) {
	harness := newWsHarness()
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket/tracker/websocket", harness.handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fanout := NewFanout(managerLogger())
	received := make(chan models.MSubmission, 1)
	fanout.OnNewSubmission(func(s models.MSubmission) { received <- s })

	m := newTestManager(srv.URL, &fakeCreds{token: "tok"}, fanout)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	harness.awaitCommands(t, 3)

	frame := models.MTopicFrame{
		Topic:   TopicPersonalSubmissions,
		Payload: json.RawMessage(`{"id": 12, "participationId": 4}`),
	}
	require.NoError(t, harness.latestSession().WriteJSON(frame))

	select {
	case sub := <-received:
		assert.Equal(t, int64(12), sub.ID)
		assert.Equal(t, int64(4), sub.ParticipationID)
	case <-time.After(3 * time.Second):
		t.Fatal("submission event never reached the fanout")
	}
}

// -----------------------------------------------------------------------------

func TestConnect_UndecodableMessageIsDroppedNotFatal(t *testing.T) {
	harness := newWsHarness()
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket/tracker/websocket", harness.handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fanout := NewFanout(managerLogger())
	received := make(chan models.MSubmission, 1)
	fanout.OnNewSubmission(func(s models.MSubmission) { received <- s })

	m := newTestManager(srv.URL, &fakeCreds{token: "tok"}, fanout)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	harness.awaitCommands(t, 3)

	session := harness.latestSession()
	require.NoError(t, session.WriteMessage(websocket.TextMessage, []byte("garbage")))
	require.NoError(t, session.WriteJSON(models.MTopicFrame{
		Topic:   TopicPersonalSubmissions,
		Payload: json.RawMessage(`{"id": 20}`),
	}))

	// The channel survives the bad message and delivers the next one
	select {
	case sub := <-received:
		assert.Equal(t, int64(20), sub.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("channel did not survive the undecodable message")
	}
	assert.Equal(t, int64(1), m.DecodeFailures())
}

// -----------------------------------------------------------------------------

func TestReconnect_RecreatesSubscriptions(t *testing.T) {
	harness := newWsHarness()
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket/tracker/websocket", harness.handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fanout := NewFanout(managerLogger())
	errs := make(chan error, 4)
	fanout.OnError(func(err error) { errs <- err })

	m := newTestManager(srv.URL, &fakeCreds{token: "tok"}, fanout)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	harness.awaitCommands(t, 3)

	// Kill the transport server-side
	harness.latestSession().Close()

	select {
	case err := <-errs:
		var transportErr *helpers.TransportError
		assert.ErrorAs(t, err, &transportErr)
	case <-time.After(3 * time.Second):
		t.Fatal("connection loss was never surfaced")
	}

	// The reconnect loop must open a fresh session and resubscribe everything
	cmds := harness.awaitCommands(t, 3)
	var topics []string
	for _, cmd := range cmds {
		topics = append(topics, cmd.Topic)
	}
	assert.ElementsMatch(t, PersonalTopics(), topics)

	require.Eventually(t, m.IsConnected, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 2, harness.sessionCount())
	assert.Equal(t, 3, m.SubscriptionCount())
}

// -----------------------------------------------------------------------------

func TestDisconnect_IsIdempotent(t *testing.T) {
	m := newTestManager("http://127.0.0.1:1", &fakeCreds{token: "tok"}, NewFanout(managerLogger()))

	// Never connected: still safe
	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())
}

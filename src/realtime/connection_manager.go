package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"submission-observer/src/helpers"
	"submission-observer/src/interfaces"
	"submission-observer/src/logger"
	"submission-observer/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB for larger JSON messages

	outboundQueueSize = 16
)

// -----------------------------------------------------------------------------
// Connection state
// -----------------------------------------------------------------------------

// ConnState is the single authoritative connection state. There is exactly one
// source of truth: the old split between a manager-side flag and a
// transport-side flag is collapsed into this enum plus a non-nil conn check.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "DISCONNECTED"
	}
}

// -----------------------------------------------------------------------------
// Connection Manager
// -----------------------------------------------------------------------------

// ConnectionManager owns the single logical publish/subscribe connection to
// the server's realtime endpoint: connect, keepalive, reconnect with fixed
// delay and clean teardown. After every successful (re)connect it
// auto-subscribes the three personal topics, because subscriptions do not
// survive a disconnect.
type ConnectionManager struct {
	Config      *models.MConfig
	Credentials interfaces.ICredentialSource
	Logger      *logger.Logger
	Fanout      *Fanout
	Registry    *SubscriptionRegistry

	mu       sync.Mutex
	state    ConnState
	conn     *websocket.Conn
	outbound chan models.MSubscribeCommand // Per-connection control frame queue
	connDone chan struct{}                 // Closed when the current connection is torn down
	stopCh   chan struct{}                 // Closed by Disconnect, recreated by Connect

	reconnects int
	capWarned  bool

	decodeFailures int64 // Atomic

	wg sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewConnectionManager(cfg *models.MConfig, creds interfaces.ICredentialSource, fanout *Fanout, log *logger.Logger) *ConnectionManager {
	m := &ConnectionManager{
		Config:      cfg,
		Credentials: creds,
		Logger:      log,
		Fanout:      fanout,
		state:       StateDisconnected,
	}

	// The registry is only ever driven while m.mu is held, so its connected
	// probe reads the fields directly instead of taking the lock again.
	m.Registry = NewSubscriptionRegistry(log, m.sendCommandLocked, func() bool {
		return m.state == StateConnected && m.conn != nil
	})

	return m
}

// -----------------------------------------------------------------------------
// Endpoint derivation
// -----------------------------------------------------------------------------

// DeriveEndpoint transforms the configured HTTP(S) base URL into its WS(S)
// equivalent and appends the fixed websocket sub-path.
func DeriveEndpoint(baseURL, wsPath string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL '%s': %w", baseURL, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme '%s' in base URL", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + wsPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// -----------------------------------------------------------------------------
// Connect
// -----------------------------------------------------------------------------

// Connect opens the connection and subscribes the personal topics. No-op when
// already connected. Fails synchronously only for pre-flight problems (missing
// credential, bad configuration) or the initial handshake; once connected, all
// later transport failures are surfaced through the error listeners and the
// reconnect loop.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting, StateReconnecting:
		// An attempt is already in flight
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	token, err := m.Credentials.Get()
	if err != nil || token == "" {
		m.setState(StateDisconnected)
		return helpers.NewAuthenticationMissing("no session credential available")
	}

	endpoint, err := DeriveEndpoint(m.Config.Server.BaseURL, m.Config.Realtime.WebsocketPath)
	if err != nil {
		m.setState(StateDisconnected)
		return helpers.NewConfigurationError("cannot derive realtime endpoint", err)
	}

	conn, err := m.dial(ctx, endpoint, token)
	if err != nil {
		m.setState(StateDisconnected)
		return helpers.NewTransportError("websocket handshake failed", err)
	}

	m.mu.Lock()
	// Re-validate after the handshake await: Disconnect may have raced us.
	select {
	case <-stopCh:
		m.state = StateDisconnected
		m.mu.Unlock()
		conn.Close()
		return nil
	default:
	}

	m.attachLocked(conn)
	m.autoSubscribeLocked()
	m.mu.Unlock()

	m.Logger.Info("Connected to %s", endpoint)
	return nil
}

// -----------------------------------------------------------------------------

// dial performs the websocket handshake. The credential travels as a
// connection-level Cookie header, never as a URL query parameter, so it cannot
// leak into logs or proxies.
func (m *ConnectionManager) dial(ctx context.Context, endpoint, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Cookie", "jwt="+token)

	dialer := websocket.Dialer{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// -----------------------------------------------------------------------------

// attachLocked installs a freshly dialed connection and starts its pumps.
// Caller holds m.mu.
func (m *ConnectionManager) attachLocked(conn *websocket.Conn) {
	m.conn = conn
	m.outbound = make(chan models.MSubscribeCommand, outboundQueueSize)
	m.connDone = make(chan struct{})
	m.state = StateConnected
	m.reconnects = 0
	m.capWarned = false

	m.wg.Add(2)
	go m.readPump(conn)
	go m.writePump(conn, m.outbound, m.connDone)
}

// -----------------------------------------------------------------------------

// autoSubscribeLocked subscribes the three personal topics in fixed order.
// Caller holds m.mu.
func (m *ConnectionManager) autoSubscribeLocked() {
	for _, topic := range PersonalTopics() {
		if err := m.Registry.Subscribe(topic); err != nil {
			m.Logger.Error("Auto-subscribe to '%s' failed: %v", topic, err)
		}
	}
}

// -----------------------------------------------------------------------------
// Disconnect
// -----------------------------------------------------------------------------

// Disconnect unsubscribes everything, tears down the transport and resets to
// Disconnected. Always safe to call, including when never connected.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()

	if m.stopCh != nil {
		select {
		case <-m.stopCh:
		default:
			close(m.stopCh)
		}
	}

	// Best-effort unsubscribe frames while the transport may still be alive
	m.Registry.UnsubscribeAll()

	if m.connDone != nil {
		select {
		case <-m.connDone:
		default:
			close(m.connDone)
		}
		m.connDone = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.outbound = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.wg.Wait()
	m.Logger.Info("Disconnected")
}

// -----------------------------------------------------------------------------
// Predicates and counters
// -----------------------------------------------------------------------------

// IsConnected is true only when the state machine says Connected AND a live
// transport is attached. A transport can drop silently, so both must hold.
func (m *ConnectionManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.conn != nil
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// -----------------------------------------------------------------------------

// ReconnectAttempts returns the current reconnect counter. It increments on
// every drop and failed redial and resets to zero on a successful connect.
func (m *ConnectionManager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) DecodeFailures() int64 {
	return atomic.LoadInt64(&m.decodeFailures)
}

// -----------------------------------------------------------------------------

// SubscribedTopics returns the active topics in subscription order.
func (m *ConnectionManager) SubscribedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Registry.Topics()
}

// -----------------------------------------------------------------------------

// SubscriptionCount returns the number of active subscriptions.
func (m *ConnectionManager) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Registry.Count()
}

// -----------------------------------------------------------------------------

// Subscribe adds a topic subscription beyond the auto-subscribed ones.
func (m *ConnectionManager) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Registry.Subscribe(topic)
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) setState(s ConnState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------

// sendCommandLocked queues one control frame for the write pump. Caller holds
// m.mu (all registry access is serialized by the manager).
func (m *ConnectionManager) sendCommandLocked(cmd models.MSubscribeCommand) error {
	if m.conn == nil || m.outbound == nil {
		return helpers.NewTransportError("no active connection", nil)
	}

	select {
	case m.outbound <- cmd:
		return nil
	default:
		return helpers.NewTransportError("outbound queue full", nil)
	}
}

// -----------------------------------------------------------------------------
// readPump - decodes inbound messages and acts as the connection watchdog
// -----------------------------------------------------------------------------

func (m *ConnectionManager) readPump(conn *websocket.Conn) {
	defer m.wg.Done()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleConnectionLoss(conn, err)
			return
		}
		m.handleMessage(message)
	}
}

// -----------------------------------------------------------------------------

// handleMessage decodes one raw message and fans it out. A malformed payload
// is counted, logged and dropped; the channel stays open.
func (m *ConnectionManager) handleMessage(raw []byte) {
	event, err := DecodeMessage(raw)
	if err != nil {
		atomic.AddInt64(&m.decodeFailures, 1)
		m.Logger.Warning("Dropping undecodable message: %v", err)
		return
	}
	m.Fanout.Dispatch(event)
}

// -----------------------------------------------------------------------------
// writePump - sends control frames and keepalive pings
// -----------------------------------------------------------------------------

func (m *ConnectionManager) writePump(conn *websocket.Conn, outbound <-chan models.MSubscribeCommand, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.wg.Done()
	}()

	for {
		select {
		case cmd := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(cmd); err != nil {
				m.Logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Reconnection
// -----------------------------------------------------------------------------

// handleConnectionLoss reacts to a read failure on the current connection:
// deliberate shutdown exits quietly, anything else invalidates the
// subscriptions and starts the reconnect loop.
func (m *ConnectionManager) handleConnectionLoss(conn *websocket.Conn, cause error) {
	m.mu.Lock()

	if m.conn != conn {
		// Stale pump from an already-replaced connection
		m.mu.Unlock()
		return
	}

	select {
	case <-m.stopCh:
		// Deliberate Disconnect
		m.mu.Unlock()
		return
	default:
	}

	m.Logger.Warning("Connection lost: %v", cause)
	m.state = StateReconnecting
	m.reconnects++
	m.Registry.InvalidateAll()

	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	m.conn.Close()
	m.conn = nil
	m.outbound = nil
	stopCh := m.stopCh
	m.mu.Unlock()

	m.Fanout.DispatchError(helpers.NewTransportError("connection lost", cause))
	m.warnIfCapCrossed()

	go m.reconnectLoop(stopCh)
}

// -----------------------------------------------------------------------------

// reconnectLoop redials with a fixed delay until it succeeds or Disconnect is
// called. On success the personal topics are recreated: subscriptions never
// survive a drop.
func (m *ConnectionManager) reconnectLoop(stopCh <-chan struct{}) {
	delay := time.Duration(m.Config.Realtime.ReconnectDelaySeconds) * time.Second

	for {
		select {
		case <-time.After(delay):
		case <-stopCh:
			return
		}

		token, err := m.Credentials.Get()
		if err != nil || token == "" {
			m.Logger.Warning("Reconnect deferred: no credential available")
			m.bumpReconnects()
			continue
		}

		endpoint, err := DeriveEndpoint(m.Config.Server.BaseURL, m.Config.Realtime.WebsocketPath)
		if err != nil {
			m.Logger.Error("Reconnect aborted: %v", err)
			m.setState(StateDisconnected)
			return
		}

		conn, err := m.dial(context.Background(), endpoint, token)
		if err != nil {
			m.Logger.Info("Reconnect attempt failed: %v", err)
			m.bumpReconnects()
			continue
		}

		m.mu.Lock()
		select {
		case <-stopCh:
			m.mu.Unlock()
			conn.Close()
			return
		default:
		}

		m.attachLocked(conn)
		m.autoSubscribeLocked()
		count := m.Registry.Count()
		m.mu.Unlock()

		m.Logger.Info("Reconnected, resubscribed to %d topics", count)
		return
	}
}

// -----------------------------------------------------------------------------

func (m *ConnectionManager) bumpReconnects() {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
	m.warnIfCapCrossed()
}

// -----------------------------------------------------------------------------

// warnIfCapCrossed emits a single user-facing warning when the reconnect
// counter crosses the configured maximum. The cap is reporting-only: the
// retry loop itself keeps going.
func (m *ConnectionManager) warnIfCapCrossed() {
	m.mu.Lock()
	crossed := m.reconnects > m.Config.Realtime.MaxReportedReconnects && !m.capWarned
	if crossed {
		m.capWarned = true
	}
	attempts := m.reconnects
	m.mu.Unlock()

	if crossed {
		m.Logger.Error("Reconnect attempts exceeded the configured maximum (%d)", m.Config.Realtime.MaxReportedReconnects)
		m.Fanout.DispatchError(helpers.NewTransportError(
			fmt.Sprintf("still disconnected after %d reconnect attempts", attempts), nil))
	}
}

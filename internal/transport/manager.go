// Package transport keeps the realtime websocket of the signed-in user and
// fans inbound events out to subscribers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

var ErrNotConnected = errors.New("transport: not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Manager owns at most one realtime connection. It is shared by reference
// between the presence, messaging, call and notification components.
//
// Event handlers run on the connection's reader goroutine in arrival order.
// They may Emit or Post, but must not call Connect or Disconnect.
type Manager struct {
	socketURL string
	token     string
	dialer    Dialer

	connectMu sync.Mutex // serializes Connect and Disconnect

	mu   sync.Mutex
	conn *connection

	handlersMu sync.Mutex
	handlers   map[string]*event.Feed[json.RawMessage]

	states event.Feed[State]
	errors event.Feed[error]
}

func NewManager(socketURL, token string, dialer Dialer) *Manager {
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}
	return &Manager{
		socketURL: socketURL,
		token:     token,
		dialer:    dialer,
		handlers:  make(map[string]*event.Feed[json.RawMessage]),
	}
}

// Connect opens the connection for userID and announces it with a join
// event. Calling it again for the connected user does nothing; calling it
// for another user replaces the current connection.
func (m *Manager) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("transport: empty user id")
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	old := m.conn
	m.mu.Unlock()

	if old != nil {
		alive := old.ctx.Err() == nil
		if alive && old.userID == userID {
			return nil
		}
		if alive {
			old.stop("replaced")
		}
		<-old.done
	}

	target, err := m.socketTarget(userID)
	if err != nil {
		return err
	}

	m.states.Publish(StateConnecting)

	header := http.Header{}
	if m.token != "" {
		header.Set("token", m.token)
	}

	ws, err := m.dialer.Dial(ctx, target, header)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", m.socketURL, err)
		m.errors.Publish(err)
		m.states.Publish(StateDisconnected)
		return err
	}

	join, err := newFrame(models.EventJoin, models.JoinPayload{UserID: userID})
	if err != nil {
		ws.Close()
		return err
	}
	if err := ws.WriteJSON(join); err != nil {
		ws.Close()
		err = fmt.Errorf("join: %w", err)
		m.errors.Publish(err)
		m.states.Publish(StateDisconnected)
		return err
	}

	c := newConnection(ws, userID)
	m.mu.Lock()
	m.conn = c
	m.mu.Unlock()

	m.states.Publish(StateConnected)

	go m.run(c)

	return nil
}

func (m *Manager) run(c *connection) {
	defer close(c.done)

	err := c.handle(m.dispatch)

	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	m.mu.Unlock()

	reason := c.stopReason()
	if err != nil {
		slog.Error("realtime connection lost", "user_id", c.userID, "error", err)
		m.errors.Publish(err)
		reason = err.Error()
	}
	if reason == "" {
		reason = "connection closed"
	}

	data, _ := json.Marshal(models.DisconnectPayload{Reason: reason})
	m.dispatch(models.Frame{Event: models.EventDisconnect, Data: data})
	m.states.Publish(StateDisconnected)
}

// Disconnect closes the current connection and waits until the disconnect
// event has been delivered. It is a no-op when nothing is connected.
func (m *Manager) Disconnect() {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()

	if c == nil {
		return
	}
	c.stop("client disconnect")
	<-c.done
}

func (m *Manager) IsConnected() bool {
	return m.current() != nil
}

// UserID returns the user of the live connection, or an empty string.
func (m *Manager) UserID() string {
	if c := m.current(); c != nil {
		return c.userID
	}
	return ""
}

// Emit sends an event and waits until it is written to the socket.
func (m *Manager) Emit(ctx context.Context, name string, data any) error {
	c := m.current()
	if c == nil {
		return ErrNotConnected
	}
	frame, err := newFrame(name, data)
	if err != nil {
		return err
	}
	return c.write(ctx, frame)
}

// Post queues an event for writing without waiting for the result.
func (m *Manager) Post(name string, data any) error {
	c := m.current()
	if c == nil {
		return ErrNotConnected
	}
	frame, err := newFrame(name, data)
	if err != nil {
		return err
	}
	return c.post(frame)
}

// On subscribes fn to inbound events with the given name.
func (m *Manager) On(name string, fn func(json.RawMessage)) func() {
	m.handlersMu.Lock()
	feed, ok := m.handlers[name]
	if !ok {
		feed = &event.Feed[json.RawMessage]{}
		m.handlers[name] = feed
	}
	m.handlersMu.Unlock()

	return feed.Subscribe(fn)
}

func (m *Manager) OnState(fn func(State)) func() {
	return m.states.Subscribe(fn)
}

func (m *Manager) OnError(fn func(error)) func() {
	return m.errors.Subscribe(fn)
}

func (m *Manager) current() *connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.conn.ctx.Err() != nil {
		return nil
	}
	return m.conn
}

func (m *Manager) dispatch(frame models.Frame) {
	m.handlersMu.Lock()
	feed := m.handlers[frame.Event]
	m.handlersMu.Unlock()

	if feed == nil {
		slog.Debug("no handlers for event", "event", frame.Event)
		return
	}
	feed.Publish(frame.Data)
}

func (m *Manager) socketTarget(userID string) (string, error) {
	u, err := url.Parse(m.socketURL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newFrame(name string, data any) (models.Frame, error) {
	if data == nil {
		return models.Frame{Event: name}, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		return models.Frame{Event: name, Data: raw}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return models.Frame{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return models.Frame{Event: name, Data: raw}, nil
}

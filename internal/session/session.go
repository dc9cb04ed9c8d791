// Package session wires the realtime components of one signed-in user
// together and owns their lifetime.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"svyaz/internal/call"
	"svyaz/internal/config"
	"svyaz/internal/messaging"
	"svyaz/internal/models"
	"svyaz/internal/notify"
	"svyaz/internal/presence"
	"svyaz/internal/rest"
	"svyaz/internal/transport"
)

// Session is the set of components serving one user. The fields are shared
// with UI code, which registers observers on them and calls their methods.
type Session struct {
	UserID  string
	Profile models.Profile

	Transport     *transport.Manager
	REST          *rest.Client
	Presence      *presence.Tracker
	Messages      *messaging.Channel
	Calls         *call.Manager
	Notifications *notify.Relay
	Badge         *notify.Badge
	Interactions  *notify.Interactions

	cancel context.CancelFunc
	group  *errgroup.Group
}

func (s *Session) IsConnected() bool {
	return s.Transport.IsConnected()
}

func (s *Session) close() {
	s.cancel()
	if err := s.group.Wait(); err != nil {
		slog.Error("session worker failed", "user_id", s.UserID, "error", err)
	}

	s.Calls.Close()
	s.Badge.Close()
	s.Notifications.Close()
	s.Messages.Close()
	s.Presence.Close()
	s.Transport.Disconnect()
}

// Manager keeps at most one Session per process.
type Manager struct {
	cfg    *config.Client
	dialer transport.Dialer
	peers  call.PeerFactory
	media  call.MediaDevices

	mu      sync.Mutex
	current *Session
}

func NewManager(cfg *config.Client, dialer transport.Dialer, peers call.PeerFactory, media call.MediaDevices) *Manager {
	return &Manager{cfg: cfg, dialer: dialer, peers: peers, media: media}
}

// Start connects userID and returns its session. Starting the user that is
// already connected returns the existing session; starting another user
// closes the current one first.
func (m *Manager) Start(ctx context.Context, userID, token string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: empty user id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current; s != nil {
		if s.UserID == userID && s.IsConnected() {
			return s, nil
		}
		s.close()
		m.current = nil
	}

	runCtx, cancel := context.WithCancel(context.Background())

	client := rest.NewClient(runCtx, m.cfg.APIURL, token, m.cfg.RequestTimeout, m.cfg.ProfileCacheTTL)
	profile, err := client.Profile(ctx, userID)
	if err != nil {
		slog.Warn("profile unavailable, using id only", "user_id", userID, "error", err)
		profile = models.Profile{ID: userID, Username: userID}
	}

	tm := transport.NewManager(m.cfg.SocketURL, token, m.dialer)
	relay := notify.NewRelay(tm)
	s := &Session{
		UserID:        userID,
		Profile:       profile,
		Transport:     tm,
		REST:          client,
		Presence:      presence.NewTracker(tm, client),
		Messages:      messaging.NewChannel(userID, tm, client, m.cfg.RequestTimeout),
		Calls:         call.NewManager(profile, tm, m.peers, m.media, call.Options{Timeout: m.cfg.CallTimeout}),
		Notifications: relay,
		Badge:         notify.NewBadge(userID, relay, client),
		Interactions:  notify.NewInteractions(profile, client, relay),
		cancel:        cancel,
	}

	var gCtx context.Context
	s.group, gCtx = errgroup.WithContext(runCtx)

	if err := tm.Connect(ctx, userID); err != nil {
		s.close()
		return nil, err
	}

	s.group.Go(func() error {
		return s.Messages.Run(gCtx)
	})

	if err := s.Badge.Load(ctx); err != nil {
		slog.Warn("failed to load unread notifications", "user_id", userID, "error", err)
	}

	m.current = s
	return s, nil
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Logout ends the active session. It is a no-op without one.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.close()
	m.current = nil
}

func (m *Manager) Close() {
	m.Logout()
}

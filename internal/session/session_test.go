package session

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"svyaz/internal/auth"
	"svyaz/internal/call"
	"svyaz/internal/config"
	devhttp "svyaz/internal/http"
	"svyaz/internal/models"
	"svyaz/internal/storage"
	"svyaz/internal/transport"
	"svyaz/internal/ws"
)

type devStack struct {
	store *storage.BboltStorage
	auth  *auth.AuthService
	cfg   *config.Client
}

func newDevStack(t *testing.T) *devStack {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "dev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: time.Hour}, store)
	require.NoError(t, err)

	srv := httptest.NewServer(devhttp.NewAPIHandler(authService, ws.NewHub(store), store))
	t.Cleanup(srv.Close)

	return &devStack{
		store: store,
		auth:  authService,
		cfg: &config.Client{
			SocketURL:       "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket",
			APIURL:          srv.URL,
			RequestTimeout:  5 * time.Second,
			ProfileCacheTTL: time.Minute,
		},
	}
}

func (d *devStack) token(t *testing.T, userID, username string) string {
	t.Helper()
	resp, err := d.auth.Login(auth.LoginRequest{UserID: userID, Username: username})
	require.NoError(t, err)
	return resp.Token
}

func (d *devStack) manager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(d.cfg, transport.NewWebsocketDialer(), nil, call.SampleDevices{})
	t.Cleanup(m.Close)
	return m
}

func TestStart(t *testing.T) {
	d := newDevStack(t)
	aliceToken := d.token(t, "alice", "Alice")
	bobToken := d.token(t, "bob", "Bob")

	_, err := d.store.AddNotification(models.Notification{TargetUserID: "alice", Kind: models.NotificationFollow})
	require.NoError(t, err)

	m := d.manager(t)
	ctx := context.Background()

	alice, err := m.Start(ctx, "alice", aliceToken)
	require.NoError(t, err)
	require.True(t, alice.IsConnected())
	require.Equal(t, "Alice", alice.Profile.Username)
	require.Equal(t, 1, alice.Badge.Count())
	require.Same(t, alice, m.Current())

	require.Eventually(t, func() bool {
		return alice.Presence.IsOnline("alice")
	}, time.Second, 10*time.Millisecond)

	again, err := m.Start(ctx, "alice", aliceToken)
	require.NoError(t, err)
	require.Same(t, alice, again)

	bob, err := m.Start(ctx, "bob", bobToken)
	require.NoError(t, err)
	require.NotSame(t, alice, bob)
	require.False(t, alice.IsConnected())
	require.True(t, bob.IsConnected())

	require.Eventually(t, func() bool {
		online := bob.Presence.Online()
		return len(online) == 1 && online[0] == "bob"
	}, time.Second, 10*time.Millisecond)

	m.Logout()
	require.Nil(t, m.Current())
	require.False(t, bob.IsConnected())

	// logging out twice is harmless
	m.Logout()
}

func TestStart_Failures(t *testing.T) {
	d := newDevStack(t)
	d.token(t, "alice", "Alice")
	m := d.manager(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "", "")
	require.Error(t, err)

	_, err = m.Start(ctx, "alice", "not-a-token")
	require.Error(t, err)
	require.Nil(t, m.Current())
}

func TestStart_ProfileFallback(t *testing.T) {
	d := newDevStack(t)
	token := d.token(t, "alice", "Alice")
	m := d.manager(t)

	// an unreachable REST API still yields a session with an id-only profile
	d.cfg.APIURL = "http://127.0.0.1:1"
	s, err := m.Start(context.Background(), "alice", token)
	require.NoError(t, err)
	require.Equal(t, models.Profile{ID: "alice", Username: "alice"}, s.Profile)
	require.Zero(t, s.Badge.Count())
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"svyaz/internal/auth"
	"svyaz/internal/models"
	"svyaz/internal/rest"
	"svyaz/internal/storage"
)

type fixture struct {
	store  *storage.BboltStorage
	auth   *auth.AuthService
	server *httptest.Server
	client *rest.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: time.Hour}, store)
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(authService, store).Routes(mux)
	admin := NewAdminHandler(authService, staticOnline{"alice"}, "http://dev")
	mux.HandleFunc("POST /admin/users", admin.AddUserHandler)
	mux.HandleFunc("GET /admin/online", admin.OnlineHandler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{
		store:  store,
		auth:   authService,
		server: srv,
		client: rest.NewClient(ctx, srv.URL, "", 5*time.Second, time.Minute),
	}
}

type staticOnline []string

func (s staticOnline) Online() []string { return s }

func (f *fixture) login(t *testing.T, userID, username string) *rest.Client {
	t.Helper()
	resp, err := f.client.Login(context.Background(), rest.LoginRequest{UserID: userID, Username: username})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.Equal(t, userID, resp.Profile.ID)
	return f.client.WithToken(resp.Token)
}

func TestConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice", "Alice")
	f.login(t, "bob", "Bob")

	_, err := alice.FindConversation(ctx, "alice", "bob")
	require.ErrorIs(t, err, models.ErrNotFound)

	conv, err := alice.CreateConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	found, err := alice.FindConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Equal(t, conv.ID, found.ID)

	list, err := alice.Conversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.store.AppendMessage(models.StoredMessage{ConversationID: conv.ID, SenderID: "bob", ReceiverID: "alice", Text: "hi"})
	require.NoError(t, err)
	msgs, err := alice.Messages(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Text)

	p, err := alice.Profile(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "Bob", p.Username)

	_, err = alice.Profile(ctx, "nobody")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice", "Alice")
	bob := f.login(t, "bob", "Bob")

	for range 2 {
		_, err := f.store.AddNotification(models.Notification{TargetUserID: "alice", Kind: models.NotificationFollow})
		require.NoError(t, err)
	}

	unread, err := alice.UnreadNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, unread, 2)

	require.NoError(t, alice.MarkNotificationRead(ctx, unread[0].ID))
	unread, err = alice.UnreadNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, alice.MarkAllNotificationsRead(ctx, "alice"))
	unread, err = alice.UnreadNotifications(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, unread)

	all, err := alice.Notifications(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NoError(t, alice.DeleteNotification(ctx, all[0].ID))

	// someone else's list is off limits
	_, err = bob.Notifications(ctx, "alice")
	var statusErr *rest.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestPosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.login(t, "alice", "Alice")
	bob := f.login(t, "bob", "Bob")

	post, err := bob.CreatePost(ctx, "hello world")
	require.NoError(t, err)
	require.Equal(t, "bob", post.AuthorID)

	liked, err := alice.LikePost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 1, liked.Likes)

	unliked, err := alice.UnlikePost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 0, unliked.Likes)

	shared, err := alice.SharePost(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 1, shared.Shares)

	_, err = alice.UnsharePost(ctx, post.ID)
	require.NoError(t, err)

	res, err := alice.CommentPost(ctx, post.ID, "nice")
	require.NoError(t, err)
	require.Equal(t, "nice", res.Comment.Text)
	require.Equal(t, "alice", res.Comment.AuthorID)
	require.Equal(t, 1, res.Post.Comments)

	_, err = alice.LikePost(ctx, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.WithToken("bogus").Conversations(context.Background(), "alice")
	var statusErr *rest.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestRoutes_RequireAuth(t *testing.T) {
	f := newFixture(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/users/alice"},
		{http.MethodPost, "/api/conversations"},
		{http.MethodGet, "/api/conversations/alice"},
		{http.MethodGet, "/api/conversations/find/alice/bob"},
		{http.MethodGet, "/api/messages/alice/bob"},
		{http.MethodGet, "/api/notifications/alice"},
		{http.MethodGet, "/api/notifications/alice/unread"},
		{http.MethodPut, "/api/notifications/n1/read"},
		{http.MethodPut, "/api/notifications/alice/read-all"},
		{http.MethodDelete, "/api/notifications/n1"},
		{http.MethodPost, "/api/posts"},
		{http.MethodPost, "/api/posts/p1/like"},
		{http.MethodDelete, "/api/posts/p1/like"},
		{http.MethodPost, "/api/posts/p1/share"},
		{http.MethodDelete, "/api/posts/p1/share"},
		{http.MethodPost, "/api/posts/p1/comments"},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req, err := http.NewRequest(route.method, f.server.URL+route.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	// logoff is open and idempotent
	resp, err := http.Post(f.server.URL+"/api/logoff", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAdmin(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(AddUserRequest{UserID: "carol", Username: "carol"})
	resp, err := http.Post(f.server.URL+"/admin/users", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var added AddUserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	require.True(t, added.Success)
	require.NotEmpty(t, added.Token)

	userID, err := f.auth.GetUserID(added.Token)
	require.NoError(t, err)
	require.Equal(t, "carol", userID)

	again, err := http.Post(f.server.URL+"/admin/users", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer again.Body.Close()
	require.Equal(t, http.StatusConflict, again.StatusCode)

	online, err := http.Get(f.server.URL + "/admin/online")
	require.NoError(t, err)
	defer online.Body.Close()
	var ids []string
	require.NoError(t, json.NewDecoder(online.Body).Decode(&ids))
	require.Equal(t, []string{"alice"}, ids)
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"svyaz/internal/event"
	"svyaz/internal/mocks"
	"svyaz/internal/models"
	"svyaz/internal/rest"
)

type fakeTransport struct {
	mu     sync.Mutex
	posted []models.Notification
	err    error
	feed   event.Feed[json.RawMessage]
}

func (f *fakeTransport) Post(name string, data any) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, data.(models.Notification))
	return nil
}

func (f *fakeTransport) On(name string, fn func(json.RawMessage)) func() {
	if name != models.EventReceiveNotification {
		return func() {}
	}
	return f.feed.Subscribe(fn)
}

func (f *fakeTransport) receive(t *testing.T, n models.Notification) {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	f.feed.Publish(data)
}

func TestRelay_SendAndReceive(t *testing.T) {
	tr := &fakeTransport{}
	r := NewRelay(tr)

	var got []models.Notification
	r.OnReceive(func(n models.Notification) { got = append(got, n) })

	n := models.Notification{Actor: "alice", TargetUserID: "bob", Title: "liked", Kind: models.NotificationLike}
	require.NoError(t, r.Send(n))
	require.Equal(t, []models.Notification{n}, tr.posted)

	require.Error(t, r.Send(models.Notification{Title: "nobody"}))

	// duplicates are passed through
	tr.receive(t, n)
	tr.receive(t, n)
	require.Len(t, got, 2)

	r.Close()
	tr.receive(t, n)
	require.Len(t, got, 2)
}

func TestBadge(t *testing.T) {
	tr := &fakeTransport{}
	relay := NewRelay(tr)
	store := new(mocks.NotificationStoreMock)

	store.On("UnreadNotifications", mock.Anything, "bob").
		Return([]models.Notification{{ID: "n1"}, {ID: "n2"}}, nil).Once()
	store.On("MarkNotificationRead", mock.Anything, "n1").Return(nil).Once()
	store.On("MarkAllNotificationsRead", mock.Anything, "bob").Return(nil).Once()

	b := NewBadge("bob", relay, store)
	var changes []int
	b.OnChange(func(c int) { changes = append(changes, c) })

	require.NoError(t, b.Load(context.Background()))
	require.Equal(t, 2, b.Count())

	tr.receive(t, models.Notification{TargetUserID: "bob", Kind: models.NotificationComment})
	tr.receive(t, models.Notification{TargetUserID: "someone-else"})
	require.Equal(t, 3, b.Count())

	require.NoError(t, b.MarkRead(context.Background(), "n1"))
	require.Equal(t, 2, b.Count())

	require.NoError(t, b.MarkAllRead(context.Background()))
	require.Equal(t, 0, b.Count())
	require.Equal(t, []int{2, 3, 2, 0}, changes)

	store.AssertExpectations(t)
}

func TestBadge_StoreError(t *testing.T) {
	store := new(mocks.NotificationStoreMock)
	store.On("UnreadNotifications", mock.Anything, "bob").Return(nil, errors.New("boom")).Once()
	store.On("MarkAllNotificationsRead", mock.Anything, "bob").Return(errors.New("boom")).Once()

	b := NewBadge("bob", NewRelay(&fakeTransport{}), store)
	require.Error(t, b.Load(context.Background()))
	require.Error(t, b.MarkAllRead(context.Background()))
	require.Equal(t, 0, b.Count())
	store.AssertExpectations(t)
}

func TestInteractions_NotifiesAuthor(t *testing.T) {
	tr := &fakeTransport{}
	posts := new(mocks.PostStoreMock)
	self := models.Profile{ID: "u-alice", Username: "Alice"}
	i := NewInteractions(self, posts, NewRelay(tr))

	posts.On("LikePost", mock.Anything, "p1").Return(models.Post{ID: "p1", AuthorID: "bob", Likes: 1}, nil).Once()
	posts.On("UnlikePost", mock.Anything, "p1").Return(models.Post{ID: "p1", AuthorID: "bob"}, nil).Once()
	posts.On("CommentPost", mock.Anything, "p1", "nice").Return(rest.CommentResult{
		Comment: models.Comment{ID: "k1", PostID: "p1", Text: "nice"},
		Post:    models.Post{ID: "p1", AuthorID: "bob", Comments: 1},
	}, nil).Once()

	_, err := i.Like(context.Background(), "p1")
	require.NoError(t, err)
	_, err = i.Unlike(context.Background(), "p1")
	require.NoError(t, err)
	c, err := i.Comment(context.Background(), "p1", " nice ")
	require.NoError(t, err)
	require.Equal(t, "k1", c.ID)

	require.Len(t, tr.posted, 2, "unlike notifies nobody")
	like := tr.posted[0]
	require.Equal(t, models.NotificationLike, like.Kind)
	require.Equal(t, "bob", like.TargetUserID)
	require.Equal(t, "u-alice", like.Actor)
	require.Equal(t, "Alice liked your post", like.Title)
	require.JSONEq(t, `{"postId":"p1","actorId":"u-alice"}`, string(like.Data))

	comment := tr.posted[1]
	require.Equal(t, models.NotificationComment, comment.Kind)
	require.Equal(t, "nice", comment.Content)
	require.Equal(t, "u-alice", comment.Actor)

	posts.AssertExpectations(t)
}

func TestInteractions_OwnPostAndFailures(t *testing.T) {
	tr := &fakeTransport{}
	posts := new(mocks.PostStoreMock)
	i := NewInteractions(models.Profile{ID: "alice"}, posts, NewRelay(tr))

	posts.On("SharePost", mock.Anything, "mine").Return(models.Post{ID: "mine", AuthorID: "alice"}, nil).Once()
	posts.On("SharePost", mock.Anything, "gone").Return(models.Post{}, models.ErrNotFound).Once()

	_, err := i.Share(context.Background(), "mine")
	require.NoError(t, err)
	require.Empty(t, tr.posted, "own posts produce no notification")

	_, err = i.Share(context.Background(), "gone")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Empty(t, tr.posted)

	_, err = i.Comment(context.Background(), "mine", "   ")
	require.Error(t, err)

	posts.AssertExpectations(t)
}

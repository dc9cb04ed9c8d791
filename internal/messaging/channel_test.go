package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeTransport struct {
	log     *callLog
	feeds   map[string]*event.Feed[json.RawMessage]
	emitErr error

	mu      sync.Mutex
	emitted []models.SendMessagePayload
}

func newFakeTransport(log *callLog) *fakeTransport {
	return &fakeTransport{log: log, feeds: map[string]*event.Feed[json.RawMessage]{}}
}

func (f *fakeTransport) Emit(_ context.Context, name string, data any) error {
	f.log.add("emit " + name)
	if f.emitErr != nil {
		return f.emitErr
	}
	f.mu.Lock()
	f.emitted = append(f.emitted, data.(models.SendMessagePayload))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) On(name string, fn func(json.RawMessage)) func() {
	feed, ok := f.feeds[name]
	if !ok {
		feed = &event.Feed[json.RawMessage]{}
		f.feeds[name] = feed
	}
	return feed.Subscribe(fn)
}

func (f *fakeTransport) deliver(t *testing.T, p models.SendMessagePayload) {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	f.feeds[models.EventReceiveMessage].Publish(data)
}

type fakeStore struct {
	log *callLog

	mu        sync.Mutex
	convs     map[string]models.Conversation
	history   []models.StoredMessage
	createErr error
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{log: log, convs: map[string]models.Conversation{}}
}

func (s *fakeStore) FindConversation(_ context.Context, a, b string) (models.Conversation, error) {
	s.log.add("find " + a + " " + b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[pairKey(a, b)]; ok {
		return c, nil
	}
	return models.Conversation{}, models.ErrNotFound
}

func (s *fakeStore) CreateConversation(_ context.Context, a, b string) (models.Conversation, error) {
	s.log.add("create " + a + " " + b)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return models.Conversation{}, s.createErr
	}
	c := models.Conversation{ID: "conv-" + pairKey(a, b), User1ID: a, User2ID: b}
	s.convs[pairKey(a, b)] = c
	return c, nil
}

func (s *fakeStore) Messages(_ context.Context, a, b string) ([]models.StoredMessage, error) {
	s.log.add("messages " + a + " " + b)
	return s.history, nil
}

func runChannel(t *testing.T, c *Channel) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitStatus(t *testing.T, statuses <-chan models.ChatMessage) models.ChatMessage {
	t.Helper()
	select {
	case msg := <-statuses:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status")
		return models.ChatMessage{}
	}
}

func TestChannel_CreatesConversationBeforeEmit(t *testing.T) {
	log := &callLog{}
	tr := newFakeTransport(log)
	store := newFakeStore(log)
	c := NewChannel("alice", tr, store, time.Second)

	statuses := make(chan models.ChatMessage, 4)
	c.OnStatus(func(m models.ChatMessage) { statuses <- m })
	runChannel(t, c)

	msg, err := c.Send("bob", "hello **bob**")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, msg.Status)
	require.Equal(t, models.SenderMe, msg.Sender)
	require.Equal(t, "<p>hello <strong>bob</strong></p>", msg.HTML)

	confirmed := waitStatus(t, statuses)
	require.Equal(t, msg.ID, confirmed.ID)
	require.Equal(t, models.StatusConfirmed, confirmed.Status)
	require.Equal(t, "conv-alice|bob", confirmed.ConversationID)

	require.Equal(t, []string{
		"find alice bob",
		"create alice bob",
		"emit " + models.EventSendMessage,
	}, log.list())

	// second message reuses the cached conversation
	again, err := c.Send("bob", "again")
	require.NoError(t, err)
	waitStatus(t, statuses)
	for _, id := range []string{msg.ID, again.ID} {
		_, ok := c.Message(id)
		require.False(t, ok, "confirmed message %s is still held", id)
	}
	require.Equal(t, "emit "+models.EventSendMessage, log.list()[3])
	require.Len(t, log.list(), 4)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Equal(t, "alice", tr.emitted[0].SenderID)
	require.Equal(t, "bob", tr.emitted[0].ReceiverID)
	require.Equal(t, "hello **bob**", tr.emitted[0].Text)
	require.Equal(t, "again", tr.emitted[1].Text)
}

func TestChannel_FailureAndRetry(t *testing.T) {
	log := &callLog{}
	tr := newFakeTransport(log)
	store := newFakeStore(log)
	store.createErr = errors.New("backend down")
	c := NewChannel("alice", tr, store, time.Second)

	statuses := make(chan models.ChatMessage, 4)
	c.OnStatus(func(m models.ChatMessage) { statuses <- m })
	runChannel(t, c)

	msg, err := c.Send("bob", "hi")
	require.NoError(t, err)

	failed := waitStatus(t, statuses)
	require.Equal(t, models.StatusFailed, failed.Status)
	require.Contains(t, failed.Error, "backend down")
	require.NotContains(t, log.list(), "emit "+models.EventSendMessage)

	require.ErrorIs(t, c.Retry("missing"), ErrUnknownMessage)

	store.mu.Lock()
	store.createErr = nil
	store.mu.Unlock()
	require.NoError(t, c.Retry(msg.ID))

	require.Equal(t, models.StatusPending, waitStatus(t, statuses).Status)
	confirmed := waitStatus(t, statuses)
	require.Equal(t, models.StatusConfirmed, confirmed.Status)
	require.Empty(t, confirmed.Error)

	// confirmed messages are released
	_, ok := c.Message(msg.ID)
	require.False(t, ok)
	require.ErrorIs(t, c.Retry(msg.ID), ErrUnknownMessage)
}

func TestChannel_RetryPending(t *testing.T) {
	c := NewChannel("alice", newFakeTransport(&callLog{}), newFakeStore(&callLog{}), time.Second)

	// no worker runs, so the message stays pending
	msg, err := c.Send("bob", "hi")
	require.NoError(t, err)

	current, ok := c.Message(msg.ID)
	require.True(t, ok)
	require.Equal(t, models.StatusPending, current.Status)
	require.ErrorIs(t, c.Retry(msg.ID), ErrNotFailed)
}

func TestChannel_EmitFailure(t *testing.T) {
	log := &callLog{}
	tr := newFakeTransport(log)
	tr.emitErr = errors.New("transport: not connected")
	c := NewChannel("alice", tr, newFakeStore(log), time.Second)

	statuses := make(chan models.ChatMessage, 1)
	c.OnStatus(func(m models.ChatMessage) { statuses <- m })
	runChannel(t, c)

	_, err := c.Send("bob", "hi")
	require.NoError(t, err)

	failed := waitStatus(t, statuses)
	require.Equal(t, models.StatusFailed, failed.Status)
	require.Contains(t, failed.Error, "not connected")
}

func TestChannel_SendValidation(t *testing.T) {
	c := NewChannel("alice", newFakeTransport(&callLog{}), newFakeStore(&callLog{}), time.Second)

	_, err := c.Send("bob", "   ")
	require.Error(t, err)
	_, err = c.Send("", "hi")
	require.Error(t, err)
}

func TestChannel_Receive(t *testing.T) {
	log := &callLog{}
	tr := newFakeTransport(log)
	c := NewChannel("alice", tr, newFakeStore(log), time.Second)

	var got []models.ChatMessage
	c.OnReceive(func(m models.ChatMessage) { got = append(got, m) })

	tr.deliver(t, models.SendMessagePayload{
		ID: "m1", ConversationID: "c1", SenderID: "bob", ReceiverID: "alice", Text: "yo", CreatedAt: 1700000000000,
	})

	require.Len(t, got, 1)
	require.Equal(t, models.SenderOther, got[0].Sender)
	require.Equal(t, "bob", got[0].PeerID)
	require.Equal(t, time.UnixMilli(1700000000000), got[0].Timestamp)

	// the conversation id from the inbound message is reused for history
	history, err := c.History(context.Background(), "bob")
	require.NoError(t, err)
	require.Empty(t, history)
	require.Equal(t, []string{"messages alice bob"}, log.list())
}

func TestChannel_HistoryWithoutConversation(t *testing.T) {
	log := &callLog{}
	c := NewChannel("alice", newFakeTransport(log), newFakeStore(log), time.Second)

	history, err := c.History(context.Background(), "bob")
	require.NoError(t, err)
	require.Empty(t, history)
	require.Equal(t, []string{"find alice bob"}, log.list(), "no conversation is created and no history fetched")
}

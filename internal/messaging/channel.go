// Package messaging sends and receives direct messages over the realtime
// transport, creating conversations on demand.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"svyaz/internal/content"
	"svyaz/internal/event"
	"svyaz/internal/models"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrNotFailed      = errors.New("message has not failed")
)

type transport interface {
	Emit(ctx context.Context, name string, data any) error
	On(name string, fn func(json.RawMessage)) func()
}

type conversationStore interface {
	FindConversation(ctx context.Context, user1ID, user2ID string) (models.Conversation, error)
	CreateConversation(ctx context.Context, user1ID, user2ID string) (models.Conversation, error)
	Messages(ctx context.Context, user1ID, user2ID string) ([]models.StoredMessage, error)
}

// Channel delivers the signed-in user's messages. Send returns at once with
// a pending message; a single worker started by Run delivers queued messages
// in order and reports the outcome through OnStatus.
type Channel struct {
	userID    string
	transport transport
	store     conversationStore
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	queue    []string
	outgoing map[string]*models.ChatMessage
	wake     chan struct{}

	conversations geche.Geche[string, models.Conversation]
	lookups       singleflight.Group

	sent     event.Feed[models.ChatMessage]
	statuses event.Feed[models.ChatMessage]
	received event.Feed[models.ChatMessage]

	unsub func()
}

func NewChannel(userID string, t transport, store conversationStore, timeout time.Duration) *Channel {
	c := &Channel{
		userID:        userID,
		transport:     t,
		store:         store,
		timeout:       timeout,
		now:           time.Now,
		outgoing:      make(map[string]*models.ChatMessage),
		wake:          make(chan struct{}, 1),
		conversations: geche.NewMapCache[string, models.Conversation](),
	}
	c.unsub = t.On(models.EventReceiveMessage, c.handleReceive)
	return c
}

// Send queues text for peerID and returns the optimistic local copy.
func (c *Channel) Send(peerID, text string) (models.ChatMessage, error) {
	text, err := content.ValidateMessage(text)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if peerID == "" {
		return models.ChatMessage{}, errors.New("empty peer id")
	}

	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		PeerID:    peerID,
		SenderID:  c.userID,
		Sender:    models.SenderMe,
		Text:      text,
		HTML:      content.Render(text),
		Timestamp: c.now(),
		Status:    models.StatusPending,
	}

	c.mu.Lock()
	stored := msg
	c.outgoing[msg.ID] = &stored
	c.mu.Unlock()

	c.sent.Publish(msg)
	c.enqueue(msg.ID)

	return msg, nil
}

// Retry queues a failed message again.
func (c *Channel) Retry(id string) error {
	c.mu.Lock()
	msg, ok := c.outgoing[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	if msg.Status != models.StatusFailed {
		c.mu.Unlock()
		return ErrNotFailed
	}
	msg.Status = models.StatusPending
	msg.Error = ""
	snapshot := *msg
	c.mu.Unlock()

	c.statuses.Publish(snapshot)
	c.enqueue(id)
	return nil
}

// Run delivers queued messages until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	for {
		id, ok := c.next()
		if !ok {
			select {
			case <-c.wake:
				continue
			case <-ctx.Done():
				return nil
			}
		}
		c.deliver(ctx, id)
	}
}

func (c *Channel) enqueue(id string) {
	c.mu.Lock()
	c.queue = append(c.queue, id)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) next() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return "", false
	}
	id := c.queue[0]
	c.queue = c.queue[1:]
	return id, true
}

func (c *Channel) deliver(ctx context.Context, id string) {
	c.mu.Lock()
	msg, ok := c.outgoing[id]
	var snapshot models.ChatMessage
	if ok {
		snapshot = *msg
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conv, err := c.conversation(ctx, snapshot.PeerID, true)
	if err != nil {
		c.fail(id, fmt.Errorf("conversation: %w", err))
		return
	}

	payload := models.SendMessagePayload{
		ID:             snapshot.ID,
		ConversationID: conv.ID,
		SenderID:       c.userID,
		ReceiverID:     snapshot.PeerID,
		Text:           snapshot.Text,
		CreatedAt:      snapshot.Timestamp.UnixMilli(),
	}
	if err := c.transport.Emit(ctx, models.EventSendMessage, payload); err != nil {
		c.fail(id, fmt.Errorf("send: %w", err))
		return
	}

	// Only failed messages are kept for Retry.
	c.mu.Lock()
	msg.Status = models.StatusConfirmed
	msg.ConversationID = conv.ID
	msg.Error = ""
	snapshot = *msg
	delete(c.outgoing, id)
	c.mu.Unlock()

	c.statuses.Publish(snapshot)
}

func (c *Channel) fail(id string, err error) {
	slog.Error("message delivery failed", "message_id", id, "error", err)

	c.mu.Lock()
	msg := c.outgoing[id]
	msg.Status = models.StatusFailed
	msg.Error = err.Error()
	snapshot := *msg
	c.mu.Unlock()

	c.statuses.Publish(snapshot)
}

// conversation returns the conversation with peerID, creating it when
// create is set. Concurrent lookups for the same pair share one request.
func (c *Channel) conversation(ctx context.Context, peerID string, create bool) (models.Conversation, error) {
	key := pairKey(c.userID, peerID)
	if conv, err := c.conversations.Get(key); err == nil {
		return conv, nil
	}

	flight := "find:" + key
	if create {
		flight = "ensure:" + key
	}

	v, err, _ := c.lookups.Do(flight, func() (any, error) {
		conv, err := c.store.FindConversation(ctx, c.userID, peerID)
		if errors.Is(err, models.ErrNotFound) && create {
			conv, err = c.store.CreateConversation(ctx, c.userID, peerID)
		}
		if err != nil {
			return models.Conversation{}, err
		}
		c.conversations.Set(key, conv)
		return conv, nil
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return v.(models.Conversation), nil
}

// History returns the stored messages with peerID, oldest first. It is empty
// when the two users have no conversation yet.
func (c *Channel) History(ctx context.Context, peerID string) ([]models.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conv, err := c.conversation(ctx, peerID, false)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stored, err := c.store.Messages(ctx, c.userID, peerID)
	if err != nil {
		return nil, err
	}

	history := make([]models.ChatMessage, 0, len(stored))
	for _, m := range stored {
		msg := c.fromStored(m)
		if msg.ConversationID == "" {
			msg.ConversationID = conv.ID
		}
		history = append(history, msg)
	}
	return history, nil
}

func (c *Channel) handleReceive(data json.RawMessage) {
	var p models.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("malformed receive-message", "error", err)
		return
	}
	if p.SenderID == "" {
		slog.Warn("receive-message without sender", "message_id", p.ID)
		return
	}

	if p.ConversationID != "" {
		c.conversations.Set(pairKey(c.userID, p.SenderID), models.Conversation{
			ID:      p.ConversationID,
			User1ID: p.SenderID,
			User2ID: c.userID,
		})
	}

	c.received.Publish(c.fromStored(models.StoredMessage(p)))
}

func (c *Channel) fromStored(m models.StoredMessage) models.ChatMessage {
	msg := models.ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		HTML:           content.Render(m.Text),
		Timestamp:      time.UnixMilli(m.CreatedAt),
		Status:         models.StatusConfirmed,
	}
	if m.CreatedAt == 0 {
		msg.Timestamp = c.now()
	}
	if m.SenderID == c.userID {
		msg.Sender = models.SenderMe
		msg.PeerID = m.ReceiverID
	} else {
		msg.Sender = models.SenderOther
		msg.PeerID = m.SenderID
	}
	return msg
}

// OnReceive subscribes to inbound messages from any peer.
func (c *Channel) OnReceive(fn func(models.ChatMessage)) func() {
	return c.received.Subscribe(fn)
}

// OnStatus subscribes to delivery status changes of outgoing messages.
func (c *Channel) OnStatus(fn func(models.ChatMessage)) func() {
	return c.statuses.Subscribe(fn)
}

// OnSend subscribes to messages queued by Send.
func (c *Channel) OnSend(fn func(models.ChatMessage)) func() {
	return c.sent.Subscribe(fn)
}

// Message returns the current state of a pending or failed message.
// Confirmed messages are forgotten.
func (c *Channel) Message(id string) (models.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.outgoing[id]
	if !ok {
		return models.ChatMessage{}, false
	}
	return *msg, true
}

func (c *Channel) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}

func pairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

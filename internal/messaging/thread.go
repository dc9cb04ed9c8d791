package messaging

import (
	"context"
	"sync"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

// Thread is the message list of one open chat screen. It only holds
// messages exchanged with its peer; messages are kept in arrival order.
type Thread struct {
	ch     *Channel
	peerID string

	mu       sync.Mutex
	messages []models.ChatMessage
	index    map[string]int

	changes event.Feed[[]models.ChatMessage]
	unsubs  []func()
}

// Open subscribes a thread for peerID and loads its history. Messages that
// arrive while the history is loading are kept after it.
func (c *Channel) Open(ctx context.Context, peerID string) (*Thread, error) {
	t := &Thread{
		ch:     c,
		peerID: peerID,
		index:  make(map[string]int),
	}
	t.unsubs = []func(){
		c.OnSend(t.append),
		c.OnReceive(t.append),
		c.OnStatus(t.update),
	}

	history, err := c.History(ctx, peerID)
	if err != nil {
		t.Close()
		return nil, err
	}

	t.mu.Lock()
	live := t.messages
	t.messages = nil
	t.index = make(map[string]int, len(history)+len(live))
	for _, msg := range history {
		t.put(msg)
	}
	for _, msg := range live {
		t.put(msg)
	}
	t.mu.Unlock()

	return t, nil
}

func (t *Thread) PeerID() string {
	return t.peerID
}

// Send queues a message to the thread's peer.
func (t *Thread) Send(text string) (models.ChatMessage, error) {
	return t.ch.Send(t.peerID, text)
}

func (t *Thread) Messages() []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.ChatMessage(nil), t.messages...)
}

// OnChange calls fn with the full list after every change.
func (t *Thread) OnChange(fn func([]models.ChatMessage)) func() {
	return t.changes.Subscribe(fn)
}

func (t *Thread) append(msg models.ChatMessage) {
	if msg.PeerID != t.peerID {
		return
	}
	t.mu.Lock()
	t.put(msg)
	snapshot := append([]models.ChatMessage(nil), t.messages...)
	t.mu.Unlock()

	t.changes.Publish(snapshot)
}

func (t *Thread) update(msg models.ChatMessage) {
	t.mu.Lock()
	i, ok := t.index[msg.ID]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.messages[i].Status = msg.Status
	t.messages[i].Error = msg.Error
	if msg.ConversationID != "" {
		t.messages[i].ConversationID = msg.ConversationID
	}
	snapshot := append([]models.ChatMessage(nil), t.messages...)
	t.mu.Unlock()

	t.changes.Publish(snapshot)
}

// put appends msg or replaces the entry with the same id. Callers hold t.mu.
func (t *Thread) put(msg models.ChatMessage) {
	if i, ok := t.index[msg.ID]; ok && msg.ID != "" {
		t.messages[i] = msg
		return
	}
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
}

func (t *Thread) Close() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
}

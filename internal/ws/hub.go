package ws

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"

	"svyaz/internal/models"
	"svyaz/internal/observability"
)

const queueSize = 100

const (
	reasonAnsweredElsewhere = "answered elsewhere"
	reasonEndedElsewhere    = "ended elsewhere"
)

type hubStorage interface {
	CreateConversation(user1ID, user2ID string) (models.Conversation, error)
	AppendMessage(m models.StoredMessage) (models.StoredMessage, error)
	AddNotification(n models.Notification) (models.Notification, error)
}

// Hub routes frames between the connections of online users. Every user
// has a room holding the queues of all of their open connections.
type Hub struct {
	storage hubStorage

	// Map of userID -> set of connection queues
	rooms map[string]map[chan models.Frame]struct{}

	mu sync.RWMutex
}

func NewHub(storage hubStorage) *Hub {
	return &Hub{
		storage: storage,
		rooms:   make(map[string]map[chan models.Frame]struct{}),
	}
}

// Join opens a queue for a new connection of userID and tells everyone who
// is online.
func (h *Hub) Join(userID string) chan models.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan models.Frame, queueSize)
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[chan models.Frame]struct{})
		h.rooms[userID] = room
	}
	room[ch] = struct{}{}

	h.broadcastOnlineLocked()
	return ch
}

func (h *Hub) Leave(userID string, ch chan models.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[userID]
	if !ok {
		return
	}
	if _, ok := room[ch]; !ok {
		return
	}
	delete(room, ch)
	close(ch)
	if len(room) == 0 {
		delete(h.rooms, userID)
	}

	h.broadcastOnlineLocked()
}

// Online returns the ids of users with at least one connection, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

func (h *Hub) onlineLocked() []string {
	online := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		online = append(online, id)
	}
	sort.Strings(online)
	return online
}

func (h *Hub) broadcastOnlineLocked() {
	online := h.onlineLocked()
	observability.SetOnlineUsers(len(online))

	frame, err := newFrame(models.EventOnlineUsers, online)
	if err != nil {
		log.Printf("failed to encode online users: %v", err)
		return
	}
	for userID, room := range h.rooms {
		h.pushLocked(userID, room, frame)
	}
}

// Dispatch handles a frame userID sent on the connection whose queue is from.
func (h *Hub) Dispatch(userID string, from chan models.Frame, frame models.Frame) {
	switch frame.Event {
	case models.EventJoin:
		var p models.JoinPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.UserID != userID {
			log.Printf("join from %s does not match its connection (%s)", userID, string(frame.Data))
		}
	case models.EventSendMessage:
		h.relayMessage(userID, frame.Data)
	case models.EventSendNotification:
		h.relayNotification(userID, frame.Data)
	case models.EventCallOffer, models.EventCallAnswer, models.EventCallICECandidate, models.EventCallEnd:
		h.relayCall(userID, from, frame)
	default:
		log.Printf("dropping unknown event %q from %s", frame.Event, userID)
	}
}

// relayMessage stores the message in the conversation of the pair and
// hands it to every connection of the receiver.
func (h *Hub) relayMessage(senderID string, data json.RawMessage) {
	var p models.SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("malformed send-message from %s: %v", senderID, err)
		return
	}
	if p.ReceiverID == "" || strings.TrimSpace(p.Text) == "" {
		log.Printf("incomplete send-message from %s", senderID)
		return
	}
	p.SenderID = senderID

	conv, err := h.storage.CreateConversation(senderID, p.ReceiverID)
	if err != nil {
		log.Printf("failed to resolve conversation %s/%s: %v", senderID, p.ReceiverID, err)
		return
	}
	if p.ConversationID != "" && p.ConversationID != conv.ID {
		log.Printf("send-message from %s names conversation %s, using %s", senderID, p.ConversationID, conv.ID)
	}
	p.ConversationID = conv.ID

	stored, err := h.storage.AppendMessage(models.StoredMessage(p))
	if err != nil {
		log.Printf("failed to store message from %s: %v", senderID, err)
		return
	}

	h.sendTo(p.ReceiverID, models.EventReceiveMessage, models.SendMessagePayload(stored))
}

func (h *Hub) relayNotification(senderID string, data json.RawMessage) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		log.Printf("malformed send-notification from %s: %v", senderID, err)
		return
	}
	if n.TargetUserID == "" {
		log.Printf("send-notification from %s without target", senderID)
		return
	}
	n.ID = ""
	n.Read = false
	n.CreatedAt = 0

	stored, err := h.storage.AddNotification(n)
	if err != nil {
		log.Printf("failed to store notification from %s: %v", senderID, err)
		return
	}
	h.sendTo(n.TargetUserID, models.EventReceiveNotification, stored)
}

// relayCall forwards signaling frames untouched to the user named in "to".
// An answer or hangup from one connection also stops the same call ringing
// on the sender's other connections.
func (h *Hub) relayCall(senderID string, from chan models.Frame, frame models.Frame) {
	var target struct {
		To     string `json:"to"`
		CallID string `json:"callId"`
	}
	if err := json.Unmarshal(frame.Data, &target); err != nil || target.To == "" {
		log.Printf("dropping %s from %s without target", frame.Event, senderID)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, ok := h.rooms[target.To]; ok {
		h.pushLocked(target.To, room, frame)
	} else {
		log.Printf("%s from %s: %s is offline", frame.Event, senderID, target.To)
	}

	reason := ""
	switch frame.Event {
	case models.EventCallAnswer:
		reason = reasonAnsweredElsewhere
	case models.EventCallEnd:
		reason = reasonEndedElsewhere
	}
	if reason == "" || target.CallID == "" {
		return
	}

	others := make(map[chan models.Frame]struct{})
	for ch := range h.rooms[senderID] {
		if ch != from {
			others[ch] = struct{}{}
		}
	}
	if len(others) == 0 {
		return
	}
	end, err := newFrame(models.EventCallEnd, models.CallEnd{
		CallID: target.CallID,
		To:     senderID,
		From:   target.To,
		Reason: reason,
	})
	if err != nil {
		log.Printf("failed to encode call-end: %v", err)
		return
	}
	h.pushLocked(senderID, others, end)
}

func (h *Hub) sendTo(userID, event string, data any) {
	frame, err := newFrame(event, data)
	if err != nil {
		log.Printf("failed to encode %s: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[userID]; ok {
		h.pushLocked(userID, room, frame)
	}
}

func (h *Hub) pushLocked(userID string, room map[chan models.Frame]struct{}, frame models.Frame) {
	for ch := range room {
		select {
		case ch <- frame:
		default:
			observability.IncWSDropped()
			log.Printf("queue of %s is full, dropping %s", userID, frame.Event)
		}
	}
}

func newFrame(event string, data any) (models.Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.Frame{}, err
	}
	return models.Frame{Event: event, Data: raw}, nil
}

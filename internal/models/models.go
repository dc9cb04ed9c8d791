package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Profile is the public part of a user as returned by the profile endpoint.
type Profile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Conversation pairs two users for message history purposes.
type Conversation struct {
	ID        string `json:"id"`
	User1ID   string `json:"user1Id"`
	User2ID   string `json:"user2Id"`
	CreatedAt int64  `json:"createdAt,omitempty"` // Unix timestamp (milliseconds)
}

// Has reports whether userID is one of the conversation members.
func (c Conversation) Has(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Peer returns the member that is not userID.
func (c Conversation) Peer(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// StoredMessage is a message as the backend keeps it.
type StoredMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
	CreatedAt      int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

type SenderKind string

const (
	SenderMe    SenderKind = "me"
	SenderOther SenderKind = "other"
)

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusConfirmed DeliveryStatus = "confirmed"
	StatusFailed    DeliveryStatus = "failed"
)

// ChatMessage is the client-side representation of a message in a chat screen.
type ChatMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId,omitempty"`
	PeerID         string         `json:"peerId"`
	SenderID       string         `json:"senderId"`
	Sender         SenderKind     `json:"sender"`
	Text           string         `json:"text"`
	HTML           string         `json:"html,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Status         DeliveryStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
}

type NotificationKind string

const (
	NotificationLike    NotificationKind = "like"
	NotificationComment NotificationKind = "comment"
	NotificationShare   NotificationKind = "share"
	NotificationFollow  NotificationKind = "follow"
)

// Notification is relayed between sessions and stored by the notification service.
type Notification struct {
	ID           string           `json:"id,omitempty"`
	Actor        string           `json:"actor"`
	TargetUserID string           `json:"targetUserId"`
	Title        string           `json:"title"`
	Content      string           `json:"content"`
	Kind         NotificationKind `json:"kind"`
	Data         json.RawMessage  `json:"data,omitempty"`
	Read         bool             `json:"read,omitempty"`
	CreatedAt    int64            `json:"createdAt,omitempty"` // Unix timestamp (milliseconds)
}

// Post is the subset of a feed post the interaction endpoints return.
type Post struct {
	ID       string `json:"id"`
	AuthorID string `json:"authorId"`
	Text     string `json:"text,omitempty"`
	Likes    int    `json:"likes"`
	Shares   int    `json:"shares"`
	Comments int    `json:"comments"`
}

// Comment is a comment created on a post.
type Comment struct {
	ID        string `json:"id"`
	PostID    string `json:"postId"`
	AuthorID  string `json:"authorId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

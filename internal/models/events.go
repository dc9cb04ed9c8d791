package models

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Frame is a single event on the realtime transport.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound events.
const (
	EventJoin             = "join"
	EventSendMessage      = "send-message"
	EventSendNotification = "send-notification"
)

// Inbound events. connect and disconnect are produced locally by the transport.
const (
	EventReceiveMessage      = "receive-message"
	EventReceiveNotification = "receive-notification"
	EventOnlineUsers         = "online-users"
	EventConnect             = "connect"
	EventDisconnect          = "disconnect"
)

// Call signaling events travel in both directions under the same name.
const (
	EventCallOffer        = "call-offer"
	EventCallAnswer       = "call-answer"
	EventCallICECandidate = "call-ice-candidate"
	EventCallEnd          = "call-end"
)

type JoinPayload struct {
	UserID string `json:"userId"`
}

// SendMessagePayload is emitted by the sender; the server relays it to the
// receiver as receive-message with the same shape.
type SendMessagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
	CreatedAt      int64  `json:"createdAt"` // Unix timestamp (milliseconds)
}

// DisconnectPayload describes why the transport went away.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// CallOffer carries the caller identity so the callee can render an
// incoming-call prompt.
type CallOffer struct {
	CallID string                    `json:"callId"`
	To     string                    `json:"to,omitempty"`
	From   Profile                   `json:"from"`
	Offer  webrtc.SessionDescription `json:"offer"`
}

type CallAnswer struct {
	CallID string                    `json:"callId"`
	To     string                    `json:"to,omitempty"`
	From   string                    `json:"from,omitempty"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type CallICECandidate struct {
	CallID    string                  `json:"callId"`
	To        string                  `json:"to,omitempty"`
	From      string                  `json:"from,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type CallEnd struct {
	CallID string `json:"callId"`
	To     string `json:"to,omitempty"`
	From   string `json:"from,omitempty"`
	Reason string `json:"reason,omitempty"`
}

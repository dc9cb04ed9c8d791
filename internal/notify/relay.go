// Package notify relays like, comment, share and follow notifications
// between sessions and keeps the unread badge.
package notify

import (
	"encoding/json"
	"errors"
	"log/slog"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

type transport interface {
	Post(name string, data any) error
	On(name string, fn func(json.RawMessage)) func()
}

// Relay sends notifications without waiting for delivery and hands every
// received one to subscribers as is. Nothing is deduplicated or stored.
type Relay struct {
	t        transport
	received event.Feed[models.Notification]
	unsub    func()
}

func NewRelay(t transport) *Relay {
	r := &Relay{t: t}
	r.unsub = t.On(models.EventReceiveNotification, r.handleReceive)
	return r
}

func (r *Relay) Send(n models.Notification) error {
	if n.TargetUserID == "" {
		return errors.New("notification without target user")
	}
	return r.t.Post(models.EventSendNotification, n)
}

func (r *Relay) OnReceive(fn func(models.Notification)) func() {
	return r.received.Subscribe(fn)
}

func (r *Relay) handleReceive(data json.RawMessage) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		slog.Warn("malformed receive-notification", "error", err)
		return
	}
	r.received.Publish(n)
}

func (r *Relay) Close() {
	if r.unsub != nil {
		r.unsub()
	}
}

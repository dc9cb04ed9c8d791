package notify

import (
	"context"
	"sync"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

type NotificationStore interface {
	UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

type receiver interface {
	OnReceive(fn func(models.Notification)) func()
}

// Badge counts unread notifications for the signed-in user.
type Badge struct {
	userID string
	store  NotificationStore

	mu    sync.Mutex
	count int

	changes event.Feed[int]
	unsub   func()
}

func NewBadge(userID string, relay receiver, store NotificationStore) *Badge {
	b := &Badge{userID: userID, store: store}
	b.unsub = relay.OnReceive(func(n models.Notification) {
		if n.TargetUserID != "" && n.TargetUserID != b.userID {
			return
		}
		b.add(1)
	})
	return b
}

// Load seeds the counter from the stored unread notifications.
func (b *Badge) Load(ctx context.Context) error {
	unread, err := b.store.UnreadNotifications(ctx, b.userID)
	if err != nil {
		return err
	}
	b.set(len(unread))
	return nil
}

func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Badge) MarkRead(ctx context.Context, id string) error {
	if err := b.store.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	b.add(-1)
	return nil
}

func (b *Badge) MarkAllRead(ctx context.Context) error {
	if err := b.store.MarkAllNotificationsRead(ctx, b.userID); err != nil {
		return err
	}
	b.set(0)
	return nil
}

func (b *Badge) OnChange(fn func(count int)) func() {
	return b.changes.Subscribe(fn)
}

func (b *Badge) add(delta int) {
	b.mu.Lock()
	b.count = max(b.count+delta, 0)
	count := b.count
	b.mu.Unlock()
	b.changes.Publish(count)
}

func (b *Badge) set(count int) {
	b.mu.Lock()
	b.count = count
	b.mu.Unlock()
	b.changes.Publish(count)
}

func (b *Badge) Close() {
	if b.unsub != nil {
		b.unsub()
	}
}

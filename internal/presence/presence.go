// Package presence tracks which users the realtime server reports as online.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

type eventSource interface {
	On(name string, fn func(json.RawMessage)) func()
}

type profileSource interface {
	Profile(ctx context.Context, userID string) (models.Profile, error)
}

// Tracker holds the last online-users snapshot. Every snapshot replaces the
// previous one; nothing is merged or expired locally.
type Tracker struct {
	profiles profileSource

	mu     sync.RWMutex
	online map[string]struct{}

	changes event.Feed[[]string]
	unsub   func()
}

func NewTracker(src eventSource, profiles profileSource) *Tracker {
	t := &Tracker{
		profiles: profiles,
		online:   make(map[string]struct{}),
	}
	t.unsub = src.On(models.EventOnlineUsers, t.handleSnapshot)
	return t
}

func (t *Tracker) handleSnapshot(data json.RawMessage) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		slog.Warn("malformed online-users snapshot", "error", err)
		return
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}

	t.mu.Lock()
	t.online = set
	t.mu.Unlock()

	t.changes.Publish(t.Online())
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Online returns the current snapshot sorted by user id.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Subscribe calls fn with the sorted snapshot after every update.
func (t *Tracker) Subscribe(fn func(online []string)) func() {
	return t.changes.Subscribe(fn)
}

// Peers resolves the online users to profiles. A failed lookup yields an
// id-only profile so the list stays complete.
func (t *Tracker) Peers(ctx context.Context) []models.Profile {
	ids := t.Online()
	peers := make([]models.Profile, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			peers[i] = models.Profile{ID: id, Username: id}
			if t.profiles == nil {
				return nil
			}
			p, err := t.profiles.Profile(ctx, id)
			if err != nil {
				slog.Debug("profile lookup failed", "user_id", id, "error", err)
				return nil
			}
			peers[i] = p
			return nil
		})
	}
	_ = g.Wait()

	return peers
}

func (t *Tracker) Close() {
	if t.unsub != nil {
		t.unsub()
	}
}

package storage

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"svyaz/internal/models"
)

// AddNotification stores n for its target user, assigning id and time when
// missing.
func (s *BboltStorage) AddNotification(n models.Notification) (models.Notification, error) {
	if n.TargetUserID == "" {
		return n, errors.New("notification missing targetUserId")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = s.now().UnixMilli()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketNotifications), fromNotification(n))
	})
	return n, err
}

// ListNotifications returns the notifications of userID, newest first.
func (s *BboltStorage) ListNotifications(userID string, unreadOnly bool) ([]models.Notification, error) {
	list := []models.Notification{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNotifications).ForEach(func(k, v []byte) error {
			var n DBNotification
			if err := n.UnmarshalBinary(v); err != nil {
				return err
			}
			if n.TargetUserID != userID || (unreadOnly && n.Read) {
				return nil
			}
			list = append(list, n.notification())
			return nil
		})
	})
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt > list[j].CreatedAt
	})
	return list, err
}

func (s *BboltStorage) MarkNotificationRead(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		var n DBNotification
		if err := get(b, []byte(id), &n); err != nil {
			return err
		}
		n.Read = true
		return put(b, &n)
	})
}

// MarkAllNotificationsRead marks every notification of userID as read and
// returns how many changed.
func (s *BboltStorage) MarkAllNotificationsRead(userID string) (int, error) {
	changed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		var unread []*DBNotification
		err := b.ForEach(func(k, v []byte) error {
			n := &DBNotification{}
			if err := n.UnmarshalBinary(v); err != nil {
				return err
			}
			if n.TargetUserID == userID && !n.Read {
				unread = append(unread, n)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, n := range unread {
			n.Read = true
			if err := put(b, n); err != nil {
				return err
			}
		}
		changed = len(unread)
		return nil
	})
	return changed, err
}

func (s *BboltStorage) DeleteNotification(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		if b.Get([]byte(id)) == nil {
			return models.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func fromNotification(n models.Notification) *DBNotification {
	return &DBNotification{
		ID:           n.ID,
		Actor:        n.Actor,
		TargetUserID: n.TargetUserID,
		Title:        n.Title,
		Content:      n.Content,
		Kind:         string(n.Kind),
		Data:         n.Data,
		Read:         n.Read,
		CreatedAt:    n.CreatedAt,
	}
}

func (n *DBNotification) notification() models.Notification {
	return models.Notification{
		ID:           n.ID,
		Actor:        n.Actor,
		TargetUserID: n.TargetUserID,
		Title:        n.Title,
		Content:      n.Content,
		Kind:         models.NotificationKind(n.Kind),
		Data:         n.Data,
		Read:         n.Read,
		CreatedAt:    n.CreatedAt,
	}
}

package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"svyaz/internal/models"
)

func pairIndexKey(a, b string) []byte {
	first, second := sortedPair(a, b)
	return []byte(first + "|" + second)
}

// FindConversation returns the conversation between the two users in either
// order.
func (s *BboltStorage) FindConversation(user1ID, user2ID string) (models.Conversation, error) {
	var c DBConversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketConversationPairs).Get(pairIndexKey(user1ID, user2ID))
		if id == nil {
			return models.ErrNotFound
		}
		return get(tx.Bucket(bucketConversations), id, &c)
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return c.conversation(), nil
}

// CreateConversation returns the existing conversation for the pair or
// creates one. The check and the insert share a transaction.
func (s *BboltStorage) CreateConversation(user1ID, user2ID string) (models.Conversation, error) {
	if user1ID == "" || user2ID == "" {
		return models.Conversation{}, errors.New("conversation needs two users")
	}

	var c DBConversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pairs := tx.Bucket(bucketConversationPairs)
		convs := tx.Bucket(bucketConversations)
		key := pairIndexKey(user1ID, user2ID)

		if id := pairs.Get(key); id != nil {
			return get(convs, id, &c)
		}

		c = DBConversation{
			ID:        uuid.NewString(),
			User1ID:   user1ID,
			User2ID:   user2ID,
			CreatedAt: s.now().UnixMilli(),
		}
		if err := put(convs, &c); err != nil {
			return err
		}
		return pairs.Put(key, c.Key())
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return c.conversation(), nil
}

// ListConversations returns the conversations userID takes part in.
func (s *BboltStorage) ListConversations(userID string) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var c DBConversation
			if err := c.UnmarshalBinary(v); err != nil {
				return err
			}
			if conv := c.conversation(); conv.Has(userID) {
				convs = append(convs, conv)
			}
			return nil
		})
	})
	return convs, err
}

func (c *DBConversation) conversation() models.Conversation {
	return models.Conversation{ID: c.ID, User1ID: c.User1ID, User2ID: c.User2ID, CreatedAt: c.CreatedAt}
}

// AppendMessage stores a message at the end of its conversation. The
// conversation must exist.
func (s *BboltStorage) AppendMessage(m models.StoredMessage) (models.StoredMessage, error) {
	if m.ConversationID == "" {
		return m, errors.New("message missing conversationId")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = s.now().UnixMilli()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketConversations).Get([]byte(m.ConversationID)) == nil {
			return fmt.Errorf("conversation %s: %w", m.ConversationID, models.ErrNotFound)
		}

		convBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(m.ConversationID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}
		seq, err := convBucket.NextSequence()
		if err != nil {
			return err
		}

		return put(convBucket, &DBMessage{
			Seq:            seq,
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			ReceiverID:     m.ReceiverID,
			Text:           m.Text,
			CreatedAt:      m.CreatedAt,
		})
	})
	return m, err
}

// ListMessages returns the messages between two users, oldest first. It is
// empty when they have no conversation.
func (s *BboltStorage) ListMessages(user1ID, user2ID string) ([]models.StoredMessage, error) {
	messages := []models.StoredMessage{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketConversationPairs).Get(pairIndexKey(user1ID, user2ID))
		if id == nil {
			return nil
		}
		convBucket := tx.Bucket(bucketMessages).Bucket(id)
		if convBucket == nil {
			return nil
		}

		c := convBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m DBMessage
			if err := m.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.StoredMessage{
				ID:             m.ID,
				ConversationID: m.ConversationID,
				SenderID:       m.SenderID,
				ReceiverID:     m.ReceiverID,
				Text:           m.Text,
				CreatedAt:      m.CreatedAt,
			})
		}
		return nil
	})
	return messages, err
}

package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"svyaz/internal/models"
)

var (
	bucketUsers             = []byte("users")
	bucketTokens            = []byte("tokens")
	bucketSessions          = []byte("sessions")
	bucketConversations     = []byte("conversations")
	bucketConversationPairs = []byte("conversation_pairs")
	bucketMessages          = []byte("messages")
	bucketNotifications     = []byte("notifications")
	bucketPosts             = []byte("posts")

	allBuckets = [][]byte{
		bucketUsers,
		bucketTokens,
		bucketSessions,
		bucketConversations,
		bucketConversationPairs,
		bucketMessages,
		bucketNotifications,
		bucketPosts,
	}
)

var ErrUserExists = errors.New("user already exists")

// BboltStorage keeps dev server records and the client's saved session
// tokens. Both binaries use their own database file.
type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func put(b *bbolt.Bucket, v Storeable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(v.Key(), data)
}

func get(b *bbolt.Bucket, key []byte, v Storeable) error {
	data := b.Get(key)
	if data == nil {
		return models.ErrNotFound
	}
	return v.UnmarshalBinary(data)
}

// CreateUser stores a new account and fails with ErrUserExists when the id
// is taken.
func (s *BboltStorage) CreateUser(p models.Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(p.ID)) != nil {
			return ErrUserExists
		}
		return put(b, &DBUser{
			ID:             p.ID,
			Username:       p.Username,
			ProfilePicture: p.ProfilePicture,
			CreatedAt:      s.now().UnixMilli(),
		})
	})
}

// UpsertUser stores new or updated account details.
func (s *BboltStorage) UpsertUser(p models.Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		u := DBUser{ID: p.ID, CreatedAt: s.now().UnixMilli()}
		if err := get(b, []byte(p.ID), &u); err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		u.Username = p.Username
		u.ProfilePicture = p.ProfilePicture
		return put(b, &u)
	})
}

func (s *BboltStorage) User(id string) (models.Profile, error) {
	var u DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketUsers), []byte(id), &u)
	})
	if err != nil {
		return models.Profile{}, err
	}
	return u.profile(), nil
}

// ListUsers returns all accounts ordered by id.
func (s *BboltStorage) ListUsers() ([]models.Profile, error) {
	var users []models.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var u DBUser
			if err := u.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, u.profile())
			return nil
		})
	})
	return users, err
}

func (u *DBUser) profile() models.Profile {
	return models.Profile{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture}
}

// UpsertToken stores a dev server auth token.
func (s *BboltStorage) UpsertToken(userID, token string, expiresAt time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketTokens), &DBToken{
			UserID:    userID,
			Token:     token,
			ExpiresAt: expiresAt.UnixMilli(),
		})
	})
}

func (s *BboltStorage) DeleteToken(token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(token))
	})
}

// ListTokens returns the unexpired dev server tokens mapped to user ids and
// drops the expired ones.
func (s *BboltStorage) ListTokens() (map[string]DBToken, error) {
	tokens := make(map[string]DBToken)
	now := s.now().UnixMilli()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var t DBToken
			if err := t.UnmarshalBinary(v); err != nil {
				return err
			}
			if t.ExpiresAt <= now {
				expired = append(expired, append([]byte(nil), k...))
				return nil
			}
			tokens[t.Token] = t
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return tokens, err
}

// SaveSessionToken remembers the token a client logged in with.
func (s *BboltStorage) SaveSessionToken(userID, token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := (&DBToken{UserID: userID, Token: token}).MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Put([]byte(userID), data)
	})
}

func (s *BboltStorage) SessionToken(userID string) (string, error) {
	var t DBToken
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(userID))
		if data == nil {
			return models.ErrNotFound
		}
		return t.UnmarshalBinary(data)
	})
	return t.Token, err
}

func (s *BboltStorage) DeleteSessionToken(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(userID))
	})
}

func sortedPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

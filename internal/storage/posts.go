package storage

import (
	"slices"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"svyaz/internal/models"
)

func (s *BboltStorage) CreatePost(authorID, text string) (models.Post, error) {
	p := DBPost{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: s.now().UnixMilli(),
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketPosts), &p)
	})
	return p.post(), err
}

func (s *BboltStorage) Post(id string) (models.Post, error) {
	var p DBPost
	err := s.db.View(func(tx *bbolt.Tx) error {
		return get(tx.Bucket(bucketPosts), []byte(id), &p)
	})
	if err != nil {
		return models.Post{}, err
	}
	return p.post(), nil
}

// SetLike adds or removes userID from the post likes. Repeating the same
// call changes nothing.
func (s *BboltStorage) SetLike(postID, userID string, liked bool) (models.Post, error) {
	return s.updatePost(postID, func(p *DBPost) {
		p.LikedBy = toggle(p.LikedBy, userID, liked)
	})
}

func (s *BboltStorage) SetShare(postID, userID string, shared bool) (models.Post, error) {
	return s.updatePost(postID, func(p *DBPost) {
		p.SharedBy = toggle(p.SharedBy, userID, shared)
	})
}

func (s *BboltStorage) AddComment(postID, authorID, text string) (models.Comment, models.Post, error) {
	c := DBComment{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: s.now().UnixMilli(),
	}
	post, err := s.updatePost(postID, func(p *DBPost) {
		p.Comments = append(p.Comments, c)
	})
	if err != nil {
		return models.Comment{}, models.Post{}, err
	}
	return models.Comment{
		ID:        c.ID,
		PostID:    postID,
		AuthorID:  c.AuthorID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}, post, nil
}

func (s *BboltStorage) updatePost(id string, fn func(p *DBPost)) (models.Post, error) {
	var p DBPost
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPosts)
		if err := get(b, []byte(id), &p); err != nil {
			return err
		}
		fn(&p)
		return put(b, &p)
	})
	if err != nil {
		return models.Post{}, err
	}
	return p.post(), nil
}

func toggle(ids []string, id string, on bool) []string {
	i := slices.Index(ids, id)
	switch {
	case on && i < 0:
		return append(ids, id)
	case !on && i >= 0:
		return slices.Delete(ids, i, i+1)
	}
	return ids
}

func (p *DBPost) post() models.Post {
	return models.Post{
		ID:       p.ID,
		AuthorID: p.AuthorID,
		Text:     p.Text,
		Likes:    len(p.LikedBy),
		Shares:   len(p.SharedBy),
		Comments: len(p.Comments),
	}
}

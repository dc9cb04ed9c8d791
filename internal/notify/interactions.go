package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"svyaz/internal/content"
	"svyaz/internal/models"
	"svyaz/internal/rest"
)

type PostStore interface {
	LikePost(ctx context.Context, postID string) (models.Post, error)
	UnlikePost(ctx context.Context, postID string) (models.Post, error)
	SharePost(ctx context.Context, postID string) (models.Post, error)
	UnsharePost(ctx context.Context, postID string) (models.Post, error)
	CommentPost(ctx context.Context, postID, text string) (rest.CommentResult, error)
}

type sender interface {
	Send(n models.Notification) error
}

// Interactions performs post interactions and tells the post author about
// likes, shares and comments. Undoing an interaction notifies nobody.
type Interactions struct {
	self   models.Profile
	posts  PostStore
	sender sender
}

func NewInteractions(self models.Profile, posts PostStore, s sender) *Interactions {
	return &Interactions{self: self, posts: posts, sender: s}
}

func (i *Interactions) Like(ctx context.Context, postID string) (models.Post, error) {
	p, err := i.posts.LikePost(ctx, postID)
	if err != nil {
		return models.Post{}, fmt.Errorf("like %s: %w", postID, err)
	}
	i.notify(p, models.NotificationLike, "liked your post", "")
	return p, nil
}

func (i *Interactions) Unlike(ctx context.Context, postID string) (models.Post, error) {
	p, err := i.posts.UnlikePost(ctx, postID)
	if err != nil {
		return models.Post{}, fmt.Errorf("unlike %s: %w", postID, err)
	}
	return p, nil
}

func (i *Interactions) Share(ctx context.Context, postID string) (models.Post, error) {
	p, err := i.posts.SharePost(ctx, postID)
	if err != nil {
		return models.Post{}, fmt.Errorf("share %s: %w", postID, err)
	}
	i.notify(p, models.NotificationShare, "shared your post", "")
	return p, nil
}

func (i *Interactions) Unshare(ctx context.Context, postID string) (models.Post, error) {
	p, err := i.posts.UnsharePost(ctx, postID)
	if err != nil {
		return models.Post{}, fmt.Errorf("unshare %s: %w", postID, err)
	}
	return p, nil
}

func (i *Interactions) Comment(ctx context.Context, postID, text string) (models.Comment, error) {
	text, err := content.ValidateMessage(text)
	if err != nil {
		return models.Comment{}, err
	}
	res, err := i.posts.CommentPost(ctx, postID, text)
	if err != nil {
		return models.Comment{}, fmt.Errorf("comment %s: %w", postID, err)
	}
	i.notify(res.Post, models.NotificationComment, "commented on your post", text)
	return res.Comment, nil
}

type postRef struct {
	PostID  string `json:"postId"`
	ActorID string `json:"actorId"`
}

func (i *Interactions) notify(p models.Post, kind models.NotificationKind, title, body string) {
	if p.AuthorID == "" || p.AuthorID == i.self.ID {
		return
	}

	name := i.self.Username
	if name == "" {
		name = i.self.ID
	}
	data, _ := json.Marshal(postRef{PostID: p.ID, ActorID: i.self.ID})

	// Actor is always the user id; the display name only goes into the title.
	n := models.Notification{
		Actor:        i.self.ID,
		TargetUserID: p.AuthorID,
		Title:        name + " " + title,
		Content:      body,
		Kind:         kind,
		Data:         data,
	}
	if err := i.sender.Send(n); err != nil {
		slog.Warn("notification not sent", "post_id", p.ID, "kind", kind, "error", err)
	}
}

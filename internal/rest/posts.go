package rest

import (
	"context"

	"svyaz/internal/models"
)

type CommentResult struct {
	Comment models.Comment `json:"comment"`
	Post    models.Post    `json:"post"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (c *Client) LikePost(ctx context.Context, postID string) (models.Post, error) {
	var p models.Post
	err := c.post(ctx, "/api/posts/"+escape(postID, "like"), nil, &p)
	return p, err
}

func (c *Client) UnlikePost(ctx context.Context, postID string) (models.Post, error) {
	var p models.Post
	err := c.delete(ctx, "/api/posts/"+escape(postID, "like"), &p)
	return p, err
}

func (c *Client) SharePost(ctx context.Context, postID string) (models.Post, error) {
	var p models.Post
	err := c.post(ctx, "/api/posts/"+escape(postID, "share"), nil, &p)
	return p, err
}

func (c *Client) UnsharePost(ctx context.Context, postID string) (models.Post, error) {
	var p models.Post
	err := c.delete(ctx, "/api/posts/"+escape(postID, "share"), &p)
	return p, err
}

func (c *Client) CommentPost(ctx context.Context, postID, text string) (CommentResult, error) {
	var res CommentResult
	err := c.post(ctx, "/api/posts/"+escape(postID, "comments"), textRequest{Text: text}, &res)
	return res, err
}

// CreatePost is served by the development backend only.
func (c *Client) CreatePost(ctx context.Context, text string) (models.Post, error) {
	var p models.Post
	err := c.post(ctx, "/api/posts", textRequest{Text: text}, &p)
	return p, err
}

type LoginRequest struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

type LoginResponse struct {
	Token   string         `json:"token"`
	Profile models.Profile `json:"profile"`
}

// Login exchanges a username for a development token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	err := c.post(ctx, "/api/login", req, &resp)
	return resp, err
}

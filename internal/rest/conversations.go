package rest

import (
	"context"

	"svyaz/internal/models"
)

type createConversationRequest struct {
	User1ID string `json:"user1Id"`
	User2ID string `json:"user2Id"`
}

func (c *Client) CreateConversation(ctx context.Context, user1ID, user2ID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.post(ctx, "/api/conversations", createConversationRequest{User1ID: user1ID, User2ID: user2ID}, &conv)
	return conv, err
}

func (c *Client) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := c.get(ctx, "/api/conversations/"+escape(userID), &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// FindConversation returns models.ErrNotFound when the two users have never talked.
func (c *Client) FindConversation(ctx context.Context, user1ID, user2ID string) (models.Conversation, error) {
	var conv models.Conversation
	err := c.get(ctx, "/api/conversations/find/"+escape(user1ID, user2ID), &conv)
	return conv, err
}

// Messages returns the stored history between two users, oldest first.
func (c *Client) Messages(ctx context.Context, user1ID, user2ID string) ([]models.StoredMessage, error) {
	var msgs []models.StoredMessage
	if err := c.get(ctx, "/api/messages/"+escape(user1ID, user2ID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

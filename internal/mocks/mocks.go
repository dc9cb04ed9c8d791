package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"svyaz/internal/models"
	"svyaz/internal/rest"
)

type PostStoreMock struct {
	mock.Mock
}

func (m *PostStoreMock) LikePost(ctx context.Context, postID string) (models.Post, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *PostStoreMock) UnlikePost(ctx context.Context, postID string) (models.Post, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *PostStoreMock) SharePost(ctx context.Context, postID string) (models.Post, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *PostStoreMock) UnsharePost(ctx context.Context, postID string) (models.Post, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(models.Post), args.Error(1)
}

func (m *PostStoreMock) CommentPost(ctx context.Context, postID, text string) (rest.CommentResult, error) {
	args := m.Called(ctx, postID, text)
	return args.Get(0).(rest.CommentResult), args.Error(1)
}

type NotificationStoreMock struct {
	mock.Mock
}

func (m *NotificationStoreMock) UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.([]models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NotificationStoreMock) MarkNotificationRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *NotificationStoreMock) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type ConversationStoreMock struct {
	mock.Mock
}

func (m *ConversationStoreMock) FindConversation(ctx context.Context, user1ID, user2ID string) (models.Conversation, error) {
	args := m.Called(ctx, user1ID, user2ID)
	return args.Get(0).(models.Conversation), args.Error(1)
}

func (m *ConversationStoreMock) CreateConversation(ctx context.Context, user1ID, user2ID string) (models.Conversation, error) {
	args := m.Called(ctx, user1ID, user2ID)
	return args.Get(0).(models.Conversation), args.Error(1)
}

func (m *ConversationStoreMock) Messages(ctx context.Context, user1ID, user2ID string) ([]models.StoredMessage, error) {
	args := m.Called(ctx, user1ID, user2ID)
	if v := args.Get(0); v != nil {
		return v.([]models.StoredMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

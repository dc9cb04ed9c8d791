package rest

import (
	"context"

	"svyaz/internal/models"
)

func (c *Client) Notifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var items []models.Notification
	if err := c.get(ctx, "/api/notifications/"+escape(userID), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) UnreadNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var items []models.Notification
	if err := c.get(ctx, "/api/notifications/"+escape(userID, "unread"), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.put(ctx, "/api/notifications/"+escape(id, "read"), nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return c.put(ctx, "/api/notifications/"+escape(userID, "read-all"), nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/notifications/"+escape(id), nil)
}

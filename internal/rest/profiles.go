package rest

import (
	"context"

	"svyaz/internal/models"
)

// Profile fetches a user profile. Results are cached and concurrent lookups
// of the same id share one request.
func (c *Client) Profile(ctx context.Context, userID string) (models.Profile, error) {
	if p, err := c.profiles.Get(userID); err == nil {
		return p, nil
	}

	v, err, _ := c.inflight.Do("profile:"+userID, func() (any, error) {
		var p models.Profile
		if err := c.get(ctx, "/api/users/"+escape(userID), &p); err != nil {
			return models.Profile{}, err
		}
		if p.ID == "" {
			p.ID = userID
		}
		c.profiles.Set(userID, p)
		return p, nil
	})
	if err != nil {
		return models.Profile{}, err
	}
	return v.(models.Profile), nil
}

// ForgetProfile drops a cached profile so the next lookup refetches it.
func (c *Client) ForgetProfile(userID string) {
	_ = c.profiles.Del(userID)
}

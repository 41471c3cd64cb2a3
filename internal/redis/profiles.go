package redis

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"chat-moderation-engine/internal/models"
)

// ErrMiss is returned when a cached value is absent
var ErrMiss = errors.New("cache miss")

// GetRiskProfile reads a cached risk profile
func (c *Client) GetRiskProfile(ctx context.Context, actorName string) (*models.RiskProfile, error) {
	raw, err := c.client.Get(ctx, c.key("profile", actorName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var p models.RiskProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		// drop the unreadable entry so the next read refills it
		c.client.Del(ctx, c.key("profile", actorName))
		return nil, ErrMiss
	}
	return &p, nil
}

// SetRiskProfile caches a risk profile for ttl
func (c *Client) SetRiskProfile(ctx context.Context, p *models.RiskProfile, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key("profile", p.ActorName), raw, ttl).Err()
}

// InvalidateRiskProfile drops a cached risk profile
func (c *Client) InvalidateRiskProfile(ctx context.Context, actorName string) error {
	return c.client.Del(ctx, c.key("profile", actorName)).Err()
}

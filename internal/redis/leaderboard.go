package redis

import (
	"context"
	"fmt"

	"chat-moderation-engine/internal/models"
)

// AddThreat adds score to the actor's entry in the top-threats set
func (c *Client) AddThreat(ctx context.Context, actorName string, score float64) error {
	return c.client.ZIncrBy(ctx, c.key("threats"), score, actorName).Err()
}

// TopThreats returns the n highest-scoring actors, highest first
func (c *Client) TopThreats(ctx context.Context, n int) ([]models.Threat, error) {
	if n <= 0 {
		return nil, nil
	}
	results, err := c.client.ZRevRangeWithScores(ctx, c.key("threats"), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading top threats: %w", err)
	}

	threats := make([]models.Threat, 0, len(results))
	for _, z := range results {
		name, ok := z.Member.(string)
		if !ok {
			continue
		}
		threats = append(threats, models.Threat{ActorName: name, Score: z.Score})
	}
	return threats, nil
}

// RemoveThreat drops the actor from the top-threats set
func (c *Client) RemoveThreat(ctx context.Context, actorName string) error {
	return c.client.ZRem(ctx, c.key("threats"), actorName).Err()
}

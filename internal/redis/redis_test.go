package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-moderation-engine/internal/models"
)

func TestKeyPrefix(t *testing.T) {
	c := NewFromClient(nil, "moderation", nil)
	assert.Equal(t, "moderation:threats", c.key("threats"))
	assert.Equal(t, "moderation:profile:bob", c.key("profile", "bob"))
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Addr: "localhost:6379"}.Enabled())
}

// TestLeaderboardAndProfiles runs against a live server when MODERATION_TEST_REDIS_ADDR is set
func TestLeaderboardAndProfiles(t *testing.T) {
	addr := os.Getenv("MODERATION_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MODERATION_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewFromClient(goredis.NewClient(&goredis.Options{Addr: addr}), "modtest-"+uuid.NewString(), nil)
	defer c.Close()
	defer c.Del(ctx, c.key("threats"), c.key("profile", "bob"))

	require.NoError(t, c.AddThreat(ctx, "bob", 70))
	require.NoError(t, c.AddThreat(ctx, "amy", 40))
	require.NoError(t, c.AddThreat(ctx, "bob", 5))

	top, err := c.TopThreats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.Threat{{ActorName: "bob", Score: 75}, {ActorName: "amy", Score: 40}}, top)

	require.NoError(t, c.RemoveThreat(ctx, "bob"))
	top, err = c.TopThreats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.Threat{{ActorName: "amy", Score: 40}}, top)

	_, err = c.GetRiskProfile(ctx, "bob")
	assert.ErrorIs(t, err, ErrMiss)

	p := &models.RiskProfile{ActorName: "bob", CumulativeThreatScore: 12.5, WarningCount: 2, LastActivity: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, c.SetRiskProfile(ctx, p, time.Minute))
	got, err := c.GetRiskProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, p.CumulativeThreatScore, got.CumulativeThreatScore)
	assert.True(t, p.LastActivity.Equal(got.LastActivity))

	require.NoError(t, c.InvalidateRiskProfile(ctx, "bob"))
	_, err = c.GetRiskProfile(ctx, "bob")
	assert.ErrorIs(t, err, ErrMiss)
}

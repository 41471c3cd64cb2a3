package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

type brokenStore struct {
	store.Store
}

func (brokenStore) GetRiskProfile(context.Context, string) (*models.RiskProfile, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) CountBansByActor(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestContextLowRisk(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertRiskProfile(ctx, models.RiskDelta{ActorName: "alice", ThreatScore: 80}))

	e := NewEvaluator(mem, config.DefaultThresholds())
	c, err := e.Context(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.False(t, c.IsHighRisk)
	assert.Equal(t, 8.0, c.ScoreContribution)
	assert.Equal(t, 70.0+8, e.Amplify(70, c))
}

func TestContextHighRisk(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertRiskProfile(ctx, models.RiskDelta{ActorName: "alice", ThreatScore: 150}))
	e := NewEvaluator(mem, config.DefaultThresholds())

	c, err := e.Context(ctx, "alice", "d1")
	require.NoError(t, err)
	assert.True(t, c.IsHighRisk)
	assert.Equal(t, 40*1.5+15, e.Amplify(40, c))

	// a banned device is high risk even with a clean profile
	require.NoError(t, mem.InsertBanRecord(ctx, &models.BanRecord{ActorName: "other", DeviceID: "d2", CreatedAt: time.Now()}))
	c, err = e.Context(ctx, "newcomer", "d2")
	require.NoError(t, err)
	assert.True(t, c.IsHighRisk)
	assert.Zero(t, c.ScoreContribution)
}

func TestHistoryTakesLargerCount(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// two bans under the name on other devices, one on this device under another name
	require.NoError(t, mem.InsertBanRecord(ctx, &models.BanRecord{ActorName: "bob", DeviceID: "x1", CreatedAt: at}))
	require.NoError(t, mem.InsertBanRecord(ctx, &models.BanRecord{ActorName: "bob", DeviceID: "x2", CreatedAt: at}))
	require.NoError(t, mem.InsertBanRecord(ctx, &models.BanRecord{ActorName: "robert", DeviceID: "d1", CreatedAt: at}))
	require.NoError(t, mem.UpsertRiskProfile(ctx, models.RiskDelta{ActorName: "bob", Warnings: 4}))

	h, err := NewEvaluator(mem, config.DefaultThresholds()).History(ctx, "bob", "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, h.PreviousBanCount)
	assert.Equal(t, 4, h.WarningCount)
}

func TestEvaluatorFailsOpen(t *testing.T) {
	e := NewEvaluator(brokenStore{store.NewMemory()}, config.DefaultThresholds())

	c, err := e.Context(context.Background(), "a", "d")
	assert.Error(t, err)
	assert.Equal(t, Context{}, c)

	h, err := e.History(context.Background(), "a", "d")
	assert.Error(t, err)
	assert.Equal(t, History{}, h)
}

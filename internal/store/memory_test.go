package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-moderation-engine/internal/models"
)

func TestMemoryRiskProfile(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p, err := m.GetRiskProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ActorName)
	assert.Zero(t, p.CumulativeThreatScore)

	now := time.Now()
	require.NoError(t, m.UpsertRiskProfile(ctx, models.RiskDelta{ActorName: "alice", DeviceFingerprint: "d1", ThreatScore: 70, Warnings: 1, At: now}))
	require.NoError(t, m.UpsertRiskProfile(ctx, models.RiskDelta{ActorName: "alice", ThreatScore: 40, At: now}))

	p, err = m.GetRiskProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 110.0, p.CumulativeThreatScore)
	assert.Equal(t, 1, p.WarningCount)
	assert.Equal(t, "d1", p.DeviceFingerprint)

	require.NoError(t, m.ResetRiskProfile(ctx, "alice"))
	p, _ = m.GetRiskProfile(ctx, "alice")
	assert.Zero(t, p.CumulativeThreatScore)
	assert.Zero(t, p.WarningCount)

	assert.ErrorIs(t, m.UpsertRiskProfile(ctx, models.RiskDelta{}), ErrInvalidRecord)
}

func TestMemoryBansIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := &models.BanRecord{ID: uuid.New(), ActorName: "bob", DeviceID: "d1", CreatedAt: at}
	require.NoError(t, m.InsertBanRecord(ctx, rec))
	require.NoError(t, m.InsertBanRecord(ctx, &models.BanRecord{ID: uuid.New(), ActorName: "bob", DeviceID: "d1", CreatedAt: at}))
	require.NoError(t, m.InsertBanRecord(ctx, &models.BanRecord{ID: uuid.New(), ActorName: "bobby", DeviceID: "d1", CreatedAt: at.Add(time.Hour)}))

	n, err := m.CountBansByDevice(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.CountBansByActor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bans, err := m.ListBans(ctx, BanFilter{DeviceID: "d1"})
	require.NoError(t, err)
	require.Len(t, bans, 2)
	assert.Equal(t, "bobby", bans[0].ActorName, "newest first")

	bans, _ = m.ListBans(ctx, BanFilter{Limit: 1})
	assert.Len(t, bans, 1)

	assert.ErrorIs(t, m.InsertBanRecord(ctx, &models.BanRecord{}), ErrInvalidRecord)
}

func TestMemoryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().GetRiskProfile(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryKeyedDeltaAppliedOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	d := models.RiskDelta{Key: "d1@1", ActorName: "alice", ThreatScore: 70, Warnings: 1}
	require.NoError(t, m.UpsertRiskProfile(ctx, d))
	require.NoError(t, m.UpsertRiskProfile(ctx, d))

	p, _ := m.GetRiskProfile(ctx, "alice")
	assert.Equal(t, 70.0, p.CumulativeThreatScore)
	assert.Equal(t, 1, p.WarningCount)

	// the oldest keys are forgotten once the bound is reached
	for i := 0; i < maxDeltaKeys; i++ {
		require.NoError(t, m.UpsertRiskProfile(ctx, models.RiskDelta{Key: "k" + strconv.Itoa(i), ActorName: "bob", ThreatScore: 1}))
	}
	assert.Len(t, m.applied, maxDeltaKeys)
	assert.NotContains(t, m.applied, "d1@1")
}

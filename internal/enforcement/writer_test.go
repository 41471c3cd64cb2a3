package enforcement

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

// flakyStore fails the first `failures` ban inserts
type flakyStore struct {
	*store.Memory
	failures int32
	calls    atomic.Int32
}

func (f *flakyStore) InsertBanRecord(ctx context.Context, rec *models.BanRecord) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("timeout")
	}
	return f.Memory.InsertBanRecord(ctx, rec)
}

type board struct {
	scores map[string]float64
}

func (b *board) AddThreat(_ context.Context, actor string, score float64) error {
	b.scores[actor] += score
	return nil
}

var cfg = config.Enforcement{MaxAttempts: 3, BaseDelay: time.Millisecond}

func tempBan() models.BanDecision {
	return models.BanDecision{
		ShouldBan:          true,
		SuggestedAction:    models.ActionTempBan,
		Severity:           models.SeverityHigh,
		ThreatScore:        70,
		BanDurationSeconds: 21600,
		Reason:             "toxic",
		DetectedPatterns:   []string{"toxicity.fuck"},
	}
}

func TestExecuteBan(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	b := &board{scores: map[string]float64{}}
	w := NewWriter(mem, cfg, nil).WithLeaderboard(b)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rec, err := w.ExecuteBan(ctx, "alice", "d1", tempBan(), "FUCK YOU ALL", now)
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, now.Add(6*time.Hour), *rec.ExpiresAt)
	assert.Equal(t, "FUCK YOU ALL", rec.MessageContent)

	n, _ := mem.CountBansByDevice(ctx, "d1")
	assert.Equal(t, 1, n)

	p, _ := mem.GetRiskProfile(ctx, "alice")
	assert.Equal(t, 70.0, p.CumulativeThreatScore)
	assert.Equal(t, 1, p.WarningCount)
	assert.Equal(t, 70.0, b.scores["alice"])
}

func TestExecutePermanentBanHasNoExpiry(t *testing.T) {
	d := tempBan()
	d.SuggestedAction = models.ActionPermBan
	d.BanDurationSeconds = 0

	rec, err := NewWriter(store.NewMemory(), cfg, nil).ExecuteBan(context.Background(), "a", "d", d, "", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec.ExpiresAt)
	assert.True(t, rec.IsPermanent())
}

func TestExecuteBanRetries(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), failures: 2}
	_, err := NewWriter(fs, cfg, nil).ExecuteBan(context.Background(), "a", "d", tempBan(), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int32(3), fs.calls.Load())
}

func TestExecuteBanGivesUp(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), failures: 10}
	rec, err := NewWriter(fs, cfg, nil).ExecuteBan(context.Background(), "a", "d", tempBan(), "", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.NotNil(t, rec)
	assert.Equal(t, int32(3), fs.calls.Load())

	p, _ := fs.GetRiskProfile(context.Background(), "a")
	assert.Zero(t, p.CumulativeThreatScore, "profile is not touched when the ban was not stored")
}

func TestRecordActivity(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	w := NewWriter(mem, cfg, nil)
	now := time.Now()

	require.NoError(t, w.RecordActivity(ctx, "bob", "d1", models.BanDecision{ShouldWarn: true, ThreatScore: 45}, now))
	require.NoError(t, w.RecordActivity(ctx, "bob", "d1", models.BanDecision{ThreatScore: 20}, now.Add(time.Second)))
	require.NoError(t, w.RecordActivity(ctx, "bob", "d1", models.BanDecision{}, now.Add(2*time.Second)))
	require.NoError(t, w.RecordActivity(ctx, "bob", "d1", tempBan(), now.Add(3*time.Second)))

	p, _ := mem.GetRiskProfile(ctx, "bob")
	assert.Equal(t, 65.0, p.CumulativeThreatScore)
	assert.Equal(t, 1, p.WarningCount)
}

// commitThenFailStore applies the first profile update and still reports an
// error, like a write whose acknowledgement was lost
type commitThenFailStore struct {
	*store.Memory
	calls atomic.Int32
}

func (c *commitThenFailStore) UpsertRiskProfile(ctx context.Context, d models.RiskDelta) error {
	err := c.Memory.UpsertRiskProfile(ctx, d)
	if c.calls.Add(1) == 1 {
		return errors.New("i/o timeout")
	}
	return err
}

func TestRetriedProfileUpdateAppliesOnce(t *testing.T) {
	ctx := context.Background()
	cs := &commitThenFailStore{Memory: store.NewMemory()}
	w := NewWriter(cs, cfg, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := w.ExecuteBan(ctx, "alice", "d1", tempBan(), "", now)
	require.NoError(t, err)
	assert.Equal(t, int32(2), cs.calls.Load())

	p, _ := cs.GetRiskProfile(ctx, "alice")
	assert.Equal(t, 70.0, p.CumulativeThreatScore)
	assert.Equal(t, 1, p.WarningCount)

	require.NoError(t, w.RecordActivity(ctx, "alice", "d1", models.BanDecision{ThreatScore: 20}, now.Add(time.Minute)))
	p, _ = cs.GetRiskProfile(ctx, "alice")
	assert.Equal(t, 90.0, p.CumulativeThreatScore, "a later evaluation has its own key")
}

func TestDeltaKey(t *testing.T) {
	now := time.Unix(0, 1700000000123456789)
	assert.Equal(t, "d1@1700000000123456789", DeltaKey("d1", now))
	assert.NotEqual(t, DeltaKey("d1", now), DeltaKey("d2", now))
}

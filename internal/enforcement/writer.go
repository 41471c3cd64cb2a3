// Package enforcement persists executed bans and risk-profile updates.
//
// A decision is final once made; persistence failures are retried with
// exponential backoff and then reported, never used to retract a decision.
package enforcement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

// ErrNotPersisted wraps the last write error once retries are exhausted
var ErrNotPersisted = errors.New("enforcement not persisted")

// Leaderboard tracks actors by accumulated threat score
type Leaderboard interface {
	AddThreat(ctx context.Context, actorName string, score float64) error
}

type Writer struct {
	store    store.Store
	board    Leaderboard
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

func NewWriter(s store.Store, cfg config.Enforcement, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Writer{store: s, attempts: attempts, delay: delay, logger: logger}
}

// WithLeaderboard makes successful writes also bump b
func (w *Writer) WithLeaderboard(b Leaderboard) *Writer {
	w.board = b
	return w
}

// ExecuteBan records the ban then adds its threat score and one warning to
// the actor's risk profile
func (w *Writer) ExecuteBan(ctx context.Context, actorName, deviceID string, d models.BanDecision, content string, now time.Time) (*models.BanRecord, error) {
	rec := &models.BanRecord{
		ID:               uuid.New(),
		ActorName:        actorName,
		DeviceID:         deviceID,
		Reason:           d.Reason,
		Severity:         d.Severity,
		ThreatScore:      d.ThreatScore,
		DetectedPatterns: d.DetectedPatterns,
		DurationSeconds:  d.BanDurationSeconds,
		MessageContent:   content,
		CreatedAt:        now,
	}
	if d.BanDurationSeconds > 0 {
		exp := now.Add(d.BanDuration())
		rec.ExpiresAt = &exp
	}

	if err := w.do(ctx, "insert ban", func(ctx context.Context) error {
		return w.store.InsertBanRecord(ctx, rec)
	}); err != nil {
		return rec, err
	}
	if actorName == "" {
		return rec, nil
	}

	delta := models.RiskDelta{
		Key:               DeltaKey(deviceID, now),
		ActorName:         actorName,
		DeviceFingerprint: deviceID,
		ThreatScore:       d.ThreatScore,
		Warnings:          1,
		At:                now,
	}
	if err := w.do(ctx, "update risk profile", func(ctx context.Context) error {
		return w.store.UpsertRiskProfile(ctx, delta)
	}); err != nil {
		return rec, err
	}

	w.bump(ctx, actorName, d.ThreatScore)
	return rec, nil
}

// RecordActivity adds the score of a non-ban decision to the actor's profile,
// counting a warning when the decision warns. Zero scores are not written.
func (w *Writer) RecordActivity(ctx context.Context, actorName, deviceID string, d models.BanDecision, now time.Time) error {
	if d.ShouldBan || d.ThreatScore <= 0 || actorName == "" {
		return nil
	}
	delta := models.RiskDelta{
		Key:               DeltaKey(deviceID, now),
		ActorName:         actorName,
		DeviceFingerprint: deviceID,
		ThreatScore:       d.ThreatScore,
		At:                now,
	}
	if d.ShouldWarn {
		delta.Warnings = 1
	}
	if err := w.do(ctx, "update risk profile", func(ctx context.Context) error {
		return w.store.UpsertRiskProfile(ctx, delta)
	}); err != nil {
		return err
	}

	w.bump(ctx, actorName, d.ThreatScore)
	return nil
}

// DeltaKey identifies the profile update of one evaluation, so a retried
// write that already committed is not applied twice. It matches the
// (device, created-at) key that makes ban inserts idempotent.
func DeltaKey(deviceID string, now time.Time) string {
	return deviceID + "@" + strconv.FormatInt(now.UnixNano(), 10)
}

func (w *Writer) do(ctx context.Context, op string, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(uint64(w.attempts-1), retry.NewExponential(w.delay))

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			if errors.Is(err, store.ErrInvalidRecord) {
				return err
			}
			w.logger.Warn("Enforcement write failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s after %d attempts: %w: %w", op, attempt, ErrNotPersisted, err)
	}
	return nil
}

// bump is best effort; the leaderboard may lag the store
func (w *Writer) bump(ctx context.Context, actorName string, score float64) {
	if w.board == nil || actorName == "" {
		return
	}
	if err := w.board.AddThreat(ctx, actorName, score); err != nil {
		w.logger.Debug("Leaderboard update failed", zap.String("actor", actorName), zap.Error(err))
	}
}

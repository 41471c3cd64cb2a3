package engine

import (
	"context"
	"fmt"
	"time"

	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

// ClearWarnings resets the device's warning counter and behavior window
func (e *Engine) ClearWarnings(deviceID string) {
	unlock, err := e.locks.Lock(context.Background(), deviceID)
	if err != nil {
		return
	}
	defer unlock()

	e.warnings.Clear(deviceID)
	e.behavior.Clear(deviceID)
}

// WarningCount returns the device's consecutive warning count
func (e *Engine) WarningCount(deviceID string) int {
	return e.warnings.Count(deviceID)
}

// ResetRiskProfile zeroes the actor's persisted score and warnings and drops
// them from the leaderboard
func (e *Engine) ResetRiskProfile(ctx context.Context, actorName string) error {
	if err := e.store.ResetRiskProfile(ctx, actorName); err != nil {
		return fmt.Errorf("resetting risk profile %s: %w", actorName, err)
	}
	if e.board != nil {
		if err := e.board.RemoveThreat(ctx, actorName); err != nil {
			return fmt.Errorf("removing %s from leaderboard: %w", actorName, err)
		}
	}
	return nil
}

// TopThreats returns the n highest-scoring actors
func (e *Engine) TopThreats(ctx context.Context, n int) ([]models.Threat, error) {
	if e.board == nil {
		return nil, ErrNoLeaderboard
	}
	return e.board.TopThreats(ctx, n)
}

// ListBans returns persisted bans matching filter, newest first
func (e *Engine) ListBans(ctx context.Context, filter store.BanFilter) ([]*models.BanRecord, error) {
	return e.store.ListBans(ctx, filter)
}

// Cleanup drops behavior windows and warning counters idle for longer than
// maxIdle and returns how many were removed
func (e *Engine) Cleanup(maxIdle time.Duration) int {
	now := e.now()
	return e.behavior.Cleanup(maxIdle, now) + e.warnings.Cleanup(maxIdle, now)
}

// Stats describes in-memory engine state
type Stats struct {
	ActiveWindows int   `json:"active_windows"`
	WindowEntries int64 `json:"window_entries"`
	WarnedDevices int   `json:"warned_devices"`
}

// GetStats returns current in-memory statistics
func (e *Engine) GetStats() Stats {
	b := e.behavior.GetStats()
	return Stats{
		ActiveWindows: b.ActiveWindows,
		WindowEntries: b.TotalEntries,
		WarnedDevices: e.warnings.Size(),
	}
}

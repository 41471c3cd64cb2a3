// Package store defines the persistence the moderation engine depends on.
//
// The engine only needs get-by-key reads of risk profiles and ban counts, and
// two writes: inserting a ban and applying an additive risk delta.
package store

import (
	"context"
	"errors"

	"chat-moderation-engine/internal/models"
)

// ErrInvalidRecord is returned for writes missing their key fields
var ErrInvalidRecord = errors.New("invalid record")

// BanFilter selects ban records; empty fields match everything
type BanFilter struct {
	ActorName string
	DeviceID  string
	Limit     int
}

// Store is implemented by Memory, the PostgreSQL database and the caching decorator
type Store interface {
	// GetRiskProfile returns a zero profile (not an error) for unknown actors
	GetRiskProfile(ctx context.Context, actorName string) (*models.RiskProfile, error)
	CountBansByActor(ctx context.Context, actorName string) (int, error)
	CountBansByDevice(ctx context.Context, deviceID string) (int, error)
	// InsertBanRecord is idempotent on (DeviceID, CreatedAt)
	InsertBanRecord(ctx context.Context, rec *models.BanRecord) error
	// UpsertRiskProfile applies delta additively; a keyed delta is applied at most once
	UpsertRiskProfile(ctx context.Context, delta models.RiskDelta) error
	ResetRiskProfile(ctx context.Context, actorName string) error
	// ListBans returns matching bans, newest first
	ListBans(ctx context.Context, filter BanFilter) ([]*models.BanRecord, error)
}

// Package cache puts a two-layer read-through cache in front of a store.Store.
//
// L1 is an in-process ristretto cache, L2 an optional redis layer for risk
// profiles. Misses are collapsed with singleflight. Every write goes to the
// wrapped store first and then invalidates the affected keys.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/store"
)

// ProfileCache is the shared L2 layer for risk profiles
type ProfileCache interface {
	GetRiskProfile(ctx context.Context, actorName string) (*models.RiskProfile, error)
	SetRiskProfile(ctx context.Context, p *models.RiskProfile, ttl time.Duration) error
	InvalidateRiskProfile(ctx context.Context, actorName string) error
}

// Config for cache initialization
type Config struct {
	L1MaxCost     int64         // Max cost in bytes for L1 cache (default: 10MB)
	L1NumCounters int64         // Number of keys to track frequency (default: 100k)
	TTL           time.Duration // Entry lifetime in both layers
}

// Store is a caching store.Store decorator
type Store struct {
	inner        store.Store
	l1           *ristretto.Cache
	l2           ProfileCache
	singleflight singleflight.Group
	ttl          time.Duration
	logger       *zap.Logger

	l1Hits   atomic.Uint64
	l1Misses atomic.Uint64
	l2Hits   atomic.Uint64
	l2Misses atomic.Uint64
}

var _ store.Store = (*Store)(nil)

// New wraps inner. l2 may be nil.
func New(inner store.Store, l2 ProfileCache, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.L1MaxCost == 0 {
		cfg.L1MaxCost = 10 << 20
	}
	if cfg.L1NumCounters == 0 {
		cfg.L1NumCounters = 100000
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.L1NumCounters,
		MaxCost:     cfg.L1MaxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	return &Store{
		inner:  inner,
		l1:     l1,
		l2:     l2,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

func profileKey(actor string) string   { return "profile:" + actor }
func actorBansKey(actor string) string { return "bans:actor:" + actor }
func deviceBansKey(dev string) string  { return "bans:device:" + dev }

// GetRiskProfile reads L1, then L2, then the wrapped store
func (s *Store) GetRiskProfile(ctx context.Context, actorName string) (*models.RiskProfile, error) {
	key := profileKey(actorName)
	if val, found := s.l1.Get(key); found {
		s.l1Hits.Add(1)
		p := val.(models.RiskProfile)
		return &p, nil
	}
	s.l1Misses.Add(1)

	if s.l2 != nil {
		if p, err := s.l2.GetRiskProfile(ctx, actorName); err == nil {
			s.l2Hits.Add(1)
			s.l1.SetWithTTL(key, *p, 1, s.ttl)
			return p, nil
		}
		s.l2Misses.Add(1)
	}

	val, err, _ := s.singleflight.Do(key, func() (interface{}, error) {
		p, err := s.inner.GetRiskProfile(ctx, actorName)
		if err != nil {
			return nil, err
		}
		s.l1.SetWithTTL(key, *p, 1, s.ttl)
		if s.l2 != nil {
			if err := s.l2.SetRiskProfile(ctx, p, s.ttl); err != nil {
				s.logger.Debug("L2 profile fill failed", zap.String("actor", actorName), zap.Error(err))
			}
		}
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	p := val.(models.RiskProfile)
	return &p, nil
}

func (s *Store) CountBansByActor(ctx context.Context, actorName string) (int, error) {
	return s.count(actorBansKey(actorName), func() (int, error) {
		return s.inner.CountBansByActor(ctx, actorName)
	})
}

func (s *Store) CountBansByDevice(ctx context.Context, deviceID string) (int, error) {
	return s.count(deviceBansKey(deviceID), func() (int, error) {
		return s.inner.CountBansByDevice(ctx, deviceID)
	})
}

func (s *Store) count(key string, fetch func() (int, error)) (int, error) {
	if val, found := s.l1.Get(key); found {
		s.l1Hits.Add(1)
		return val.(int), nil
	}
	s.l1Misses.Add(1)

	val, err, _ := s.singleflight.Do(key, func() (interface{}, error) {
		n, err := fetch()
		if err != nil {
			return nil, err
		}
		s.l1.SetWithTTL(key, n, 1, s.ttl)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return val.(int), nil
}

func (s *Store) InsertBanRecord(ctx context.Context, rec *models.BanRecord) error {
	if err := s.inner.InsertBanRecord(ctx, rec); err != nil {
		return err
	}
	s.l1.Del(actorBansKey(rec.ActorName))
	s.l1.Del(deviceBansKey(rec.DeviceID))
	return nil
}

func (s *Store) UpsertRiskProfile(ctx context.Context, delta models.RiskDelta) error {
	if err := s.inner.UpsertRiskProfile(ctx, delta); err != nil {
		return err
	}
	s.invalidateProfile(ctx, delta.ActorName)
	return nil
}

func (s *Store) ResetRiskProfile(ctx context.Context, actorName string) error {
	if err := s.inner.ResetRiskProfile(ctx, actorName); err != nil {
		return err
	}
	s.invalidateProfile(ctx, actorName)
	return nil
}

// ListBans is not cached
func (s *Store) ListBans(ctx context.Context, filter store.BanFilter) ([]*models.BanRecord, error) {
	return s.inner.ListBans(ctx, filter)
}

func (s *Store) invalidateProfile(ctx context.Context, actorName string) {
	s.l1.Del(profileKey(actorName))
	if s.l2 != nil {
		if err := s.l2.InvalidateRiskProfile(ctx, actorName); err != nil {
			s.logger.Warn("L2 profile invalidation failed", zap.String("actor", actorName), zap.Error(err))
		}
	}
}

// GetMetrics returns cache performance metrics
func (s *Store) GetMetrics() Metrics {
	l1Metrics := s.l1.Metrics

	l1Total := s.l1Hits.Load() + s.l1Misses.Load()
	l2Total := s.l2Hits.Load() + s.l2Misses.Load()

	var l1HitRate, l2HitRate float64
	if l1Total > 0 {
		l1HitRate = float64(s.l1Hits.Load()) / float64(l1Total)
	}
	if l2Total > 0 {
		l2HitRate = float64(s.l2Hits.Load()) / float64(l2Total)
	}

	return Metrics{
		L1Hits:        s.l1Hits.Load(),
		L1Misses:      s.l1Misses.Load(),
		L1HitRate:     l1HitRate,
		L2Hits:        s.l2Hits.Load(),
		L2Misses:      s.l2Misses.Load(),
		L2HitRate:     l2HitRate,
		L1KeysAdded:   l1Metrics.KeysAdded(),
		L1KeysEvicted: l1Metrics.KeysEvicted(),
	}
}

// Metrics holds cache performance data
type Metrics struct {
	L1Hits        uint64  `json:"l1_hits"`
	L1Misses      uint64  `json:"l1_misses"`
	L1HitRate     float64 `json:"l1_hit_rate"`
	L2Hits        uint64  `json:"l2_hits"`
	L2Misses      uint64  `json:"l2_misses"`
	L2HitRate     float64 `json:"l2_hit_rate"`
	L1KeysAdded   uint64  `json:"l1_keys_added"`
	L1KeysEvicted uint64  `json:"l1_keys_evicted"`
}

// Wait blocks until buffered L1 writes are applied
func (s *Store) Wait() {
	s.l1.Wait()
}

// Close gracefully shuts down the cache
func (s *Store) Close() {
	s.l1.Close()
}

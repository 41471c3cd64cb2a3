package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-moderation-engine/internal/models"
)

// maxDeltaKeys bounds the applied-delta keys kept for replay detection
const maxDeltaKeys = 4096

type banKey struct {
	deviceID  string
	createdAt int64
}

// Memory is an in-process Store used by the CLI and tests
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]*models.RiskProfile
	bans     []*models.BanRecord
	seen     map[banKey]struct{}
	applied  map[string]struct{}
	order    []string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]*models.RiskProfile),
		seen:     make(map[banKey]struct{}),
		applied:  make(map[string]struct{}),
	}
}

func (m *Memory) GetRiskProfile(ctx context.Context, actorName string) (*models.RiskProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.profiles[actorName]; ok {
		cp := *p
		return &cp, nil
	}
	return &models.RiskProfile{ActorName: actorName}, nil
}

func (m *Memory) CountBansByActor(ctx context.Context, actorName string) (int, error) {
	return m.count(ctx, func(b *models.BanRecord) bool { return b.ActorName == actorName })
}

func (m *Memory) CountBansByDevice(ctx context.Context, deviceID string) (int, error) {
	return m.count(ctx, func(b *models.BanRecord) bool { return b.DeviceID == deviceID })
}

func (m *Memory) count(ctx context.Context, match func(*models.BanRecord) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, b := range m.bans {
		if match(b) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertBanRecord(ctx context.Context, rec *models.BanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.DeviceID == "" {
		return ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := banKey{rec.DeviceID, rec.CreatedAt.UnixNano()}
	if _, dup := m.seen[key]; dup {
		return nil
	}
	m.seen[key] = struct{}{}
	cp := *rec
	m.bans = append(m.bans, &cp)
	return nil
}

func (m *Memory) UpsertRiskProfile(ctx context.Context, delta models.RiskDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delta.ActorName == "" {
		return ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if delta.Key != "" {
		if _, dup := m.applied[delta.Key]; dup {
			return nil
		}
		m.applied[delta.Key] = struct{}{}
		m.order = append(m.order, delta.Key)
		if len(m.order) > maxDeltaKeys {
			delete(m.applied, m.order[0])
			m.order = m.order[1:]
		}
	}

	p, ok := m.profiles[delta.ActorName]
	if !ok {
		p = &models.RiskProfile{ActorName: delta.ActorName}
		m.profiles[delta.ActorName] = p
	}
	p.CumulativeThreatScore += delta.ThreatScore
	if p.CumulativeThreatScore < 0 {
		p.CumulativeThreatScore = 0
	}
	p.WarningCount += delta.Warnings
	if delta.DeviceFingerprint != "" {
		p.DeviceFingerprint = delta.DeviceFingerprint
	}
	at := delta.At
	if at.IsZero() {
		at = time.Now()
	}
	p.LastActivity = at
	return nil
}

func (m *Memory) ResetRiskProfile(ctx context.Context, actorName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.profiles[actorName]; ok {
		p.CumulativeThreatScore = 0
		p.WarningCount = 0
	}
	return nil
}

func (m *Memory) ListBans(ctx context.Context, filter BanFilter) ([]*models.BanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.BanRecord
	for _, b := range m.bans {
		if filter.ActorName != "" && b.ActorName != filter.ActorName {
			continue
		}
		if filter.DeviceID != "" && b.DeviceID != filter.DeviceID {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

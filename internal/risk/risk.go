// Package risk turns persisted actor state into score adjustments: the
// context evaluator weighs cumulative threat and ban state, the history
// evaluator supplies prior-ban and warning counts for escalation.
package risk

import (
	"context"
	"fmt"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/store"
)

// Context is the actor's standing going into this message
type Context struct {
	ScoreContribution float64
	IsHighRisk        bool
	CumulativeScore   float64
}

// History holds the escalation inputs for the decision engine
type History struct {
	PreviousBanCount int
	WarningCount     int
}

// Evaluator reads a Store. On a read failure both methods return the zero
// value together with the error so callers can fail open.
type Evaluator struct {
	store store.Store
	t     config.Thresholds
}

func NewEvaluator(s store.Store, t config.Thresholds) *Evaluator {
	return &Evaluator{store: s, t: t}
}

// Context contributes a share of the cumulative threat score and marks the
// actor high risk above HighRiskScore or when the device was ever banned.
func (e *Evaluator) Context(ctx context.Context, actorName, deviceID string) (Context, error) {
	profile, err := e.store.GetRiskProfile(ctx, actorName)
	if err != nil {
		return Context{}, fmt.Errorf("risk profile %s: %w", actorName, err)
	}
	deviceBans, err := e.store.CountBansByDevice(ctx, deviceID)
	if err != nil {
		return Context{}, fmt.Errorf("device bans %s: %w", deviceID, err)
	}

	cumulative := profile.CumulativeThreatScore
	return Context{
		ScoreContribution: cumulative * e.t.ContextContribution,
		IsHighRisk:        cumulative > e.t.HighRiskScore || deviceBans > 0,
		CumulativeScore:   cumulative,
	}, nil
}

// History takes the larger of the by-name and by-device ban counts. This
// undercounts an actor banned once under another name and once on another
// device; it is kept for compatibility with existing records.
func (e *Evaluator) History(ctx context.Context, actorName, deviceID string) (History, error) {
	byActor, err := e.store.CountBansByActor(ctx, actorName)
	if err != nil {
		return History{}, fmt.Errorf("actor bans %s: %w", actorName, err)
	}
	byDevice, err := e.store.CountBansByDevice(ctx, deviceID)
	if err != nil {
		return History{}, fmt.Errorf("device bans %s: %w", deviceID, err)
	}
	profile, err := e.store.GetRiskProfile(ctx, actorName)
	if err != nil {
		return History{}, fmt.Errorf("risk profile %s: %w", actorName, err)
	}

	return History{
		PreviousBanCount: max(byActor, byDevice),
		WarningCount:     profile.WarningCount,
	}, nil
}

// Amplify applies the high-risk multiplier to the pre-context score and adds
// the cumulative contribution
func (e *Evaluator) Amplify(pre float64, c Context) float64 {
	if c.IsHighRisk {
		pre *= e.t.HighRiskMultiplier
	}
	return pre + c.ScoreContribution
}

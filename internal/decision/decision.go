// Package decision maps a final threat score and severity onto one
// enforcement action with a concrete duration and confidence.
package decision

import (
	"fmt"
	"math"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/models"
)

// Input is everything the decision depends on
type Input struct {
	// Score is the context-adjusted score before the warning bonus
	Score            float64
	Severity         models.Severity
	PreviousBanCount int
	// WarningCount is the persisted warning count of the actor
	WarningCount int
	Reason       string
	Patterns     []string
}

// Engine applies the decision bands of its thresholds. It holds no state.
type Engine struct {
	t config.Thresholds
}

func New(t config.Thresholds) *Engine {
	return &Engine{t: t}
}

// Decide evaluates bands from most to least severe; the first band whose
// score or severity condition holds wins.
func (e *Engine) Decide(in Input) models.BanDecision {
	t := e.t
	score := in.Score
	if in.WarningCount >= t.WarningBonusMin {
		score += t.WarningBonusPer * float64(in.WarningCount)
	}

	d := models.BanDecision{
		ThreatScore:      score,
		Severity:         max(in.Severity, e.bandSeverity(score)),
		DetectedPatterns: in.Patterns,
		Confidence:       Confidence(len(in.Patterns), score),
		Reason:           in.Reason,
	}
	if d.Reason == "" {
		d.Reason = fmt.Sprintf("threat score %.0f", score)
	}

	n := in.PreviousBanCount
	switch {
	case score >= t.PermBanScore || in.Severity == models.SeverityExtreme:
		ban(&d, models.ActionPermBan, 0)
	case score >= t.CriticalBanScore || in.Severity == models.SeverityCritical:
		ban(&d, models.ActionTempBan, t.CriticalBanSeconds*int64(1+n))
	case score >= t.HighBanScore || in.Severity == models.SeverityHigh:
		ban(&d, models.ActionTempBan, int64(float64(t.HighBanSeconds)*(1+0.5*float64(n))))
	case score >= t.MediumBanScore || in.Severity == models.SeverityMedium:
		ban(&d, models.ActionTempBan, t.MediumBanSeconds*int64(1+n))
	case score >= t.WarnScore:
		d.ShouldWarn = true
		d.SuggestedAction = models.ActionWarn
	case score >= t.MuteScore:
		d.SuggestedAction = models.ActionMute
	default:
		d.SuggestedAction = models.ActionIgnore
	}

	e.EscalateRepeatOffender(&d, n)
	return d
}

// EscalateRepeatOffender turns any ban of an actor with enough prior bans
// into a permanent one
func (e *Engine) EscalateRepeatOffender(d *models.BanDecision, previousBans int) {
	if !d.ShouldBan || previousBans < e.t.PermBanAfterBans || d.SuggestedAction == models.ActionPermBan {
		return
	}
	ban(d, models.ActionPermBan, 0)
	d.Reason = fmt.Sprintf("%s; repeat offender (%d prior bans)", d.Reason, previousBans)
}

// bandSeverity is the severity implied by the score alone
func (e *Engine) bandSeverity(score float64) models.Severity {
	t := e.t
	switch {
	case score >= t.PermBanScore:
		return models.SeverityExtreme
	case score >= t.CriticalBanScore:
		return models.SeverityCritical
	case score >= t.HighBanScore:
		return models.SeverityHigh
	case score >= t.MediumBanScore:
		return models.SeverityMedium
	case score >= t.WarnScore:
		return models.SeverityLow
	}
	return models.SeverityNone
}

func ban(d *models.BanDecision, action models.Action, seconds int64) {
	d.ShouldBan = true
	d.ShouldWarn = false
	d.SuggestedAction = action
	d.BanDurationSeconds = seconds
}

// Confidence is min(100, patterns*20 + score/2)
func Confidence(patterns int, score float64) int {
	c := patterns*20 + int(math.Max(score, 0)/2)
	return min(c, 100)
}

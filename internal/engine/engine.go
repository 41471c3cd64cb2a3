// Package engine wires the moderation components together behind Evaluate.
//
// An evaluation reads persisted risk state concurrently with classification,
// then takes the device lock for the in-memory part (behavior analysis,
// decision, warning escalation, commit) and releases it before any write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chat-moderation-engine/internal/behavior"
	"chat-moderation-engine/internal/classifier"
	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/decision"
	"chat-moderation-engine/internal/enforcement"
	"chat-moderation-engine/internal/metrics"
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/patterns"
	"chat-moderation-engine/internal/risk"
	"chat-moderation-engine/internal/store"
	"chat-moderation-engine/internal/syncutil"
	"chat-moderation-engine/internal/warnings"
)

// persistTimeout bounds enforcement writes, which outlive the caller's context
const persistTimeout = 10 * time.Second

// ErrNoLeaderboard is returned by TopThreats when no leaderboard is configured
var ErrNoLeaderboard = errors.New("no leaderboard configured")

// Leaderboard ranks actors by accumulated threat score
type Leaderboard interface {
	enforcement.Leaderboard
	TopThreats(ctx context.Context, n int) ([]models.Threat, error)
	RemoveThreat(ctx context.Context, actorName string) error
}

type Options struct {
	Thresholds  config.Thresholds
	Enforcement config.Enforcement
	Store       store.Store
	// Classifier defaults to the regex classifier over the built-in library
	Classifier  classifier.Classifier
	Leaderboard Leaderboard
	Logger      *zap.Logger
}

// Outcome is the result of one evaluation. Decision is final even when
// Persisted is false; PersistErr then wraps enforcement.ErrNotPersisted.
type Outcome struct {
	Decision   models.BanDecision `json:"decision"`
	Ban        *models.BanRecord  `json:"ban,omitempty"`
	Flags      behavior.Flags     `json:"-"`
	Persisted  bool               `json:"persisted"`
	PersistErr error              `json:"-"`
	// Degraded is set when persisted history could not be read and the
	// actor was treated as having none
	Degraded bool `json:"degraded"`
}

type Engine struct {
	classifier classifier.Classifier
	behavior   *behavior.Tracker
	risk       *risk.Evaluator
	decisions  *decision.Engine
	warnings   *warnings.Tracker
	writer     *enforcement.Writer
	store      store.Store
	board      Leaderboard
	locks      *syncutil.DeviceLocks
	logger     *zap.Logger
	now        func() time.Time
}

// New builds an engine. It fails when the pattern library does not compile.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cls := opts.Classifier
	if cls == nil {
		lib, err := patterns.New()
		if err != nil {
			return nil, fmt.Errorf("loading pattern library: %w", err)
		}
		cls = classifier.New(lib)
	}

	// export a zero series for every action before the first evaluation
	for _, a := range models.GetAllActions() {
		metrics.Evaluations.WithLabelValues(string(a))
	}

	writer := enforcement.NewWriter(opts.Store, opts.Enforcement, logger)
	if opts.Leaderboard != nil {
		writer.WithLeaderboard(opts.Leaderboard)
	}

	return &Engine{
		classifier: cls,
		behavior:   behavior.NewTracker(opts.Thresholds),
		risk:       risk.NewEvaluator(opts.Store, opts.Thresholds),
		decisions:  decision.New(opts.Thresholds),
		warnings:   warnings.NewTracker(opts.Thresholds),
		writer:     writer,
		store:      opts.Store,
		board:      opts.Leaderboard,
		locks:      syncutil.NewDeviceLocks(),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Evaluate decides what to do about one message. The error is non-nil only
// when ctx ends before the decision is committed; in that case no in-memory
// state was changed.
func (e *Engine) Evaluate(ctx context.Context, evt models.MessageEvent) (Outcome, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if !evt.Valid() {
		metrics.Evaluations.WithLabelValues(string(models.ActionIgnore)).Inc()
		return Outcome{Decision: models.Ignore("invalid message event"), Persisted: true}, nil
	}

	now := evt.Timestamp
	if now.IsZero() {
		now = e.now()
	}
	device := evt.ActorDeviceID

	var (
		cls     classifier.Result
		rc      risk.Context
		hist    risk.History
		ctxErr  error
		histErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cls = e.classifier.Classify(evt.Content)
		return nil
	})
	g.Go(func() error {
		rc, ctxErr = e.risk.Context(gctx, evt.ActorName, device)
		return nil
	})
	g.Go(func() error {
		hist, histErr = e.risk.History(gctx, evt.ActorName, device)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Persisted: true}
	if readErr := errors.Join(ctxErr, histErr); readErr != nil {
		// one failed read discards both: a degraded actor has no history
		rc, hist = risk.Context{}, risk.History{}
		out.Degraded = true
		metrics.DegradedEvaluations.Inc()
		e.logger.Warn("Degraded evaluation: risk history unavailable",
			zap.String("actor", evt.ActorName),
			zap.String("device", device),
			zap.Error(readErr))
	}

	unlock, err := e.locks.Lock(ctx, device)
	if err != nil {
		return Outcome{}, err
	}

	flags := e.behavior.Analyze(device, evt.Content, now)
	score := e.risk.Amplify(cls.Score+flags.Score, rc)
	d := e.decisions.Decide(decision.Input{
		Score:            score,
		Severity:         cls.Severity,
		PreviousBanCount: hist.PreviousBanCount,
		WarningCount:     hist.WarningCount,
		Reason:           describe(cls, flags),
		Patterns:         append(cls.Patterns(), flags.Names()...),
	})
	final := e.warnings.Escalate(device, d, hist.PreviousBanCount)

	if err := ctx.Err(); err != nil {
		unlock()
		return Outcome{}, err
	}
	e.behavior.Commit(device, evt.Content, now)
	e.warnings.Commit(device, final, now)
	unlock()

	if final.SuggestedAction != d.SuggestedAction {
		metrics.WarningEscalations.Inc()
	}
	out.Decision = final
	out.Flags = flags
	e.observe(cls, flags, final, start)

	e.persist(ctx, evt, now, &out)
	return out, nil
}

func (e *Engine) persist(ctx context.Context, evt models.MessageEvent, now time.Time, out *Outcome) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var (
		op  string
		err error
	)
	if out.Decision.ShouldBan {
		op = "ban"
		out.Ban, err = e.writer.ExecuteBan(wctx, evt.ActorName, evt.ActorDeviceID, out.Decision, evt.Content, now)
	} else {
		op = "activity"
		err = e.writer.RecordActivity(wctx, evt.ActorName, evt.ActorDeviceID, out.Decision, now)
	}
	if err != nil {
		out.Persisted = false
		out.PersistErr = err
		metrics.EnforcementFailures.WithLabelValues(op).Inc()
		e.logger.Error("Enforcement not persisted",
			zap.String("actor", evt.ActorName),
			zap.String("device", evt.ActorDeviceID),
			zap.String("action", string(out.Decision.SuggestedAction)),
			zap.Error(err))
	}
}

func (e *Engine) observe(cls classifier.Result, flags behavior.Flags, d models.BanDecision, start time.Time) {
	metrics.Evaluations.WithLabelValues(string(d.SuggestedAction)).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	if n := len(cls.ToxicPatterns); n > 0 {
		metrics.PatternHits.WithLabelValues(string(patterns.CategoryToxicity)).Add(float64(n))
	}
	if n := len(cls.SpamPatterns); n > 0 {
		metrics.PatternHits.WithLabelValues(string(patterns.CategorySpam)).Add(float64(n))
	}
	if n := len(cls.EvasionPatterns); n > 0 {
		metrics.PatternHits.WithLabelValues(string(patterns.CategoryEvasion)).Add(float64(n))
	}
	for _, f := range flags.Names() {
		metrics.BehaviorFlags.WithLabelValues(f).Inc()
	}
}

// describe summarises why a message scored, empty when nothing matched
func describe(cls classifier.Result, flags behavior.Flags) string {
	var parts []string
	if len(cls.ToxicPatterns) > 0 {
		parts = append(parts, cls.Severity.String()+" toxicity")
	}
	if cls.IsSpam {
		parts = append(parts, "spam")
	}
	if cls.IsEvading {
		parts = append(parts, "filter evasion")
	}
	if names := flags.Names(); len(names) > 0 {
		short := make([]string, len(names))
		for i, n := range names {
			short[i] = strings.TrimPrefix(n, "behavior.")
		}
		parts = append(parts, "behavior: "+strings.Join(short, ", "))
	}
	return strings.Join(parts, "; ")
}

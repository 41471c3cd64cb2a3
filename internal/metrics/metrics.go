// Package metrics registers the moderation engine's prometheus collectors
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_evaluations_total",
	Help: "Number of messages evaluated, by final action",
}, []string{"action"})

var EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "moderation_evaluation_duration_sec",
	Help:    "Duration of a full message evaluation",
	Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
})

var DegradedEvaluations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_degraded_evaluations_total",
	Help: "Evaluations that fell back to empty history after a store read failure",
})

var EnforcementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_enforcement_failures_total",
	Help: "Enforcement writes that were not persisted after retries",
}, []string{"op"})

var PatternHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_pattern_hits_total",
	Help: "Matched rules, by category",
}, []string{"category"})

var BehaviorFlags = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_behavior_flags_total",
	Help: "Raised behavioral flags, by flag",
}, []string{"flag"})

var WarningEscalations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "moderation_warning_escalations_total",
	Help: "Warnings converted into bans by the warning limit",
})

var DiscordRESTDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "moderation_discord_rest_duration_sec",
	Help:    "Latency of Discord REST calls made by the gateway adapter",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
})

var DiscordActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moderation_discord_actions_total",
	Help: "Moderation actions applied on Discord, by action and result",
}, []string{"action", "result"})

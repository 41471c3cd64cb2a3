// Package classifier scores a single message against the pattern library.
// Classification has no memory: the same text always yields the same Result.
package classifier

import (
	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/patterns"
)

const (
	// SpamThreshold is the spam sub-score at which a message counts as spam
	SpamThreshold = 50
	// EvasionThreshold is the evasion sub-score at which a message counts as evading
	EvasionThreshold = 30
	// EvasionPenalty is added to the overall score of an evading message
	EvasionPenalty = 30
)

// Result is the content-only verdict for one message
type Result struct {
	Score    float64
	Severity models.Severity

	ToxicScore    float64
	ToxicPatterns []string

	SpamScore    float64
	SpamPatterns []string
	IsSpam       bool

	EvasionScore    float64
	EvasionPatterns []string
	IsEvading       bool
}

// Patterns returns every matched rule id, toxic first
func (r Result) Patterns() []string {
	out := make([]string, 0, len(r.ToxicPatterns)+len(r.SpamPatterns)+len(r.EvasionPatterns))
	out = append(out, r.ToxicPatterns...)
	out = append(out, r.SpamPatterns...)
	return append(out, r.EvasionPatterns...)
}

// Classifier scores message content. Implementations must be pure and safe for
// concurrent use.
type Classifier interface {
	Classify(message string) Result
}

// Regex classifies with the compiled pattern library
type Regex struct {
	lib *patterns.Library
}

var _ Classifier = (*Regex)(nil)

func New(lib *patterns.Library) *Regex {
	return &Regex{lib: lib}
}

// Classify scans toxicity tiers extreme to low against both the raw and the
// folded message, then the spam and evasion tables against the raw message.
func (c *Regex) Classify(message string) Result {
	var res Result

	folded := patterns.Fold(message)
	for _, tier := range c.lib.Tiers {
		counted := false
		for _, p := range tier.Patterns {
			if !p.Match(message) && (folded == message || !p.Match(folded)) {
				continue
			}
			res.ToxicPatterns = append(res.ToxicPatterns, p.ID())
			if !tier.CountOnce || !counted {
				res.ToxicScore += tier.BaseScore
				counted = true
			}
			if tier.Severity > res.Severity {
				res.Severity = tier.Severity
			}
		}
	}

	for _, p := range c.lib.Spam {
		if p.Match(message) {
			res.SpamScore += p.Weight
			res.SpamPatterns = append(res.SpamPatterns, p.ID())
		}
	}
	res.IsSpam = res.SpamScore >= SpamThreshold

	for _, p := range c.lib.Evasion {
		if p.Match(message) {
			res.EvasionScore += p.Weight
			res.EvasionPatterns = append(res.EvasionPatterns, p.ID())
		}
	}
	res.IsEvading = res.EvasionScore >= EvasionThreshold

	res.Score = res.ToxicScore + res.SpamScore
	if res.IsEvading {
		res.Score += EvasionPenalty
	}
	return res
}

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-moderation-engine/internal/models"
	"chat-moderation-engine/internal/patterns"
)

var lib = patterns.MustNew()

func TestClassifyHighTierWithAllCaps(t *testing.T) {
	assert := assert.New(t)

	res := New(lib).Classify("FUCK YOU ALL")
	assert.Equal(models.SeverityHigh, res.Severity)
	assert.Equal(50.0, res.ToxicScore)
	assert.Equal(20.0, res.SpamScore)
	assert.Equal(70.0, res.Score)
	assert.Equal([]string{"toxicity.fuck"}, res.ToxicPatterns)
	assert.Equal([]string{"spam.all_caps"}, res.SpamPatterns)
	assert.False(res.IsSpam)
	assert.False(res.IsEvading)
}

func TestClassifyExtremeCountsOnce(t *testing.T) {
	assert := assert.New(t)

	res := New(lib).Classify("kys, go kill yourself")
	assert.Equal(models.SeverityExtreme, res.Severity)
	assert.Len(res.ToxicPatterns, 2)
	assert.Equal(200.0, res.ToxicScore)
}

func TestClassifyAccumulatesLowerTiers(t *testing.T) {
	assert := assert.New(t)

	res := New(lib).Classify("you stupid idiot")
	assert.Equal(models.SeverityLow, res.Severity)
	assert.Equal(20.0, res.Score)
	assert.ElementsMatch([]string{"toxicity.stupid", "toxicity.idiot"}, res.ToxicPatterns)
}

func TestClassifyEvasion(t *testing.T) {
	assert := assert.New(t)
	c := New(lib)

	// spaced letters alone stay under the evasion threshold
	res := c.Classify("f u c k you")
	assert.Equal([]string{"toxicity.fuck"}, res.ToxicPatterns)
	assert.Equal(20.0, res.EvasionScore)
	assert.False(res.IsEvading)
	assert.Equal(50.0, res.Score)

	// zero-width characters trip it and add the flat penalty
	res = c.Classify("fu\u200bck you")
	assert.Equal([]string{"toxicity.fuck"}, res.ToxicPatterns)
	assert.True(res.IsEvading)
	assert.Equal(30.0, res.EvasionScore)
	assert.Equal(50.0+EvasionPenalty, res.Score)
	assert.Equal(models.SeverityHigh, res.Severity)
}

func TestClassifySpam(t *testing.T) {
	assert := assert.New(t)

	res := New(lib).Classify("free btc airdrop, click here https://scam.xyz")
	assert.True(res.IsSpam)
	assert.GreaterOrEqual(res.SpamScore, float64(SpamThreshold))
	assert.Equal(models.SeverityNone, res.Severity)
	assert.Contains(res.Patterns(), "spam.crypto")
	assert.Contains(res.Patterns(), "spam.link")
}

func TestClassifyCleanMessage(t *testing.T) {
	res := New(lib).Classify("hey, how is everyone doing today?")
	assert.Zero(t, res.Score)
	assert.Equal(t, models.SeverityNone, res.Severity)
	assert.Empty(t, res.Patterns())
}

func TestClassifyIsPure(t *testing.T) {
	c := New(lib)
	msgs := []string{"FUCK YOU ALL", "h4t3 y0u", "I know where you live", "hey"}
	for _, m := range msgs {
		a, b := c.Classify(m), c.Classify(m)
		assert.Equal(t, a, b, m)
	}
}

func BenchmarkClassify(b *testing.B) {
	c := New(lib)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Classify("you are such a stupid f.u.c.k.i.n.g idiot, buy btc now!!!")
	}
}

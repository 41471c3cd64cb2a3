package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeverityText(t *testing.T) {
	assert := assert.New(t)

	for s := SeverityNone; s <= SeverityExtreme; s++ {
		b, err := s.MarshalText()
		assert.NoError(err)

		var back Severity
		assert.NoError(back.UnmarshalText(b))
		assert.Equal(s, back)
	}

	_, err := ParseSeverity("apocalyptic")
	assert.Error(err)
	assert.True(SeverityExtreme > SeverityCritical)
}

func TestFormatDuration(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("permanent", FormatDuration(0))
	assert.Equal("45s", FormatDuration(45))
	assert.Equal("10m", FormatDuration(600))
	assert.Equal("6h", FormatDuration(21600))
	assert.Equal("2d", FormatDuration(172800))
}

func TestBanRecordActive(t *testing.T) {
	assert := assert.New(t)
	now := time.Now()

	perm := &BanRecord{DurationSeconds: 0}
	assert.True(perm.IsActive(now))
	assert.True(perm.IsPermanent())

	past := now.Add(-time.Minute)
	expired := &BanRecord{DurationSeconds: 60, ExpiresAt: &past}
	assert.False(expired.IsActive(now))

	future := now.Add(time.Hour)
	live := &BanRecord{DurationSeconds: 3600, ExpiresAt: &future}
	assert.True(live.IsActive(now))
}

func TestMessageEventValid(t *testing.T) {
	assert := assert.New(t)

	assert.True(MessageEvent{Content: "hi", ActorDeviceID: "d1"}.Valid())
	assert.False(MessageEvent{Content: "   ", ActorDeviceID: "d1"}.Valid())
	assert.False(MessageEvent{Content: "hi"}.Valid())
}

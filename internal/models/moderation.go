package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageEvent is one inbound chat message handed to the engine
type MessageEvent struct {
	Content       string    `json:"content"`
	ActorName     string    `json:"actor_name"`
	ActorDeviceID string    `json:"actor_device_id"`
	RoomID        *int64    `json:"room_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Valid reports whether the event carries enough to be moderated
func (e MessageEvent) Valid() bool {
	return strings.TrimSpace(e.Content) != "" && e.ActorDeviceID != ""
}

// RiskProfile is the persisted cumulative risk state of an actor
type RiskProfile struct {
	ActorName             string    `json:"actor_name"`
	CumulativeThreatScore float64   `json:"cumulative_threat_score"`
	WarningCount          int       `json:"warning_count"`
	LastActivity          time.Time `json:"last_activity"`
	DeviceFingerprint     string    `json:"device_fingerprint"`
}

// RiskDelta is an additive update applied to a RiskProfile. Stores apply a
// delta with a non-empty Key at most once.
type RiskDelta struct {
	Key               string
	ActorName         string
	DeviceFingerprint string
	ThreatScore       float64
	Warnings          int
	At                time.Time
}

// BanRecord is an executed ban. ExpiresAt is nil for permanent bans.
type BanRecord struct {
	ID               uuid.UUID  `json:"id"`
	ActorName        string     `json:"actor_name"`
	DeviceID         string     `json:"device_id"`
	Reason           string     `json:"reason"`
	Severity         Severity   `json:"severity"`
	ThreatScore      float64    `json:"threat_score"`
	DetectedPatterns []string   `json:"detected_patterns"`
	DurationSeconds  int64      `json:"duration_seconds"`
	MessageContent   string     `json:"message_content,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// IsActive reports whether the ban is still in force at now
func (b *BanRecord) IsActive(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// IsPermanent reports whether the ban never expires
func (b *BanRecord) IsPermanent() bool {
	return b.DurationSeconds == 0
}

// BanDecision is the engine's verdict for one message
type BanDecision struct {
	ShouldBan          bool     `json:"should_ban"`
	ShouldWarn         bool     `json:"should_warn"`
	Reason             string   `json:"reason"`
	Severity           Severity `json:"severity"`
	ThreatScore        float64  `json:"threat_score"`
	BanDurationSeconds int64    `json:"ban_duration_seconds"`
	Confidence         int      `json:"confidence"`
	DetectedPatterns   []string `json:"detected_patterns"`
	SuggestedAction    Action   `json:"suggested_action"`
}

// Ignore returns the zero-confidence decision used for invalid input
func Ignore(reason string) BanDecision {
	return BanDecision{
		Reason:          reason,
		SuggestedAction: ActionIgnore,
	}
}

// BanDuration returns the ban length, zero for permanent bans
func (d BanDecision) BanDuration() time.Duration {
	return time.Duration(d.BanDurationSeconds) * time.Second
}

// Threat is one entry of the top-threats leaderboard
type Threat struct {
	ActorName string  `json:"actor_name"`
	Score     float64 `json:"score"`
}

// Package config loads the service configuration once at startup.
//
// Every threshold used by the behavior tracker and the decision engine is a
// named field here; nothing is read from free-form key/value settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"chat-moderation-engine/internal/database"
	"chat-moderation-engine/internal/redis"
)

type Config struct {
	Token       string                  `json:"token" yaml:"token"`
	HTTPAddr    string                  `json:"http_addr" yaml:"http_addr"`
	AdminToken  string                  `json:"admin_token" yaml:"admin_token"`
	Development bool                    `json:"development" yaml:"development"`
	Redis       redis.Config            `json:"redis" yaml:"redis"`
	Postgres    database.PostgresConfig `json:"postgres" yaml:"postgres"`
	Thresholds  Thresholds              `json:"thresholds" yaml:"thresholds"`
	Enforcement Enforcement             `json:"enforcement" yaml:"enforcement"`
	Cache       Cache                   `json:"cache" yaml:"cache"`
}

// Thresholds enumerates every tunable used by the behavior tracker and decision engine
type Thresholds struct {
	// Behavior tracker
	WindowMaxEntries   int           `json:"window_max_entries" yaml:"window_max_entries"`
	WindowMaxAge       time.Duration `json:"window_max_age" yaml:"window_max_age"`
	RapidFireCount     int           `json:"rapid_fire_count" yaml:"rapid_fire_count"`
	RapidFireWindow    time.Duration `json:"rapid_fire_window" yaml:"rapid_fire_window"`
	RapidFireScore     float64       `json:"rapid_fire_score" yaml:"rapid_fire_score"`
	FloodCount         int           `json:"flood_count" yaml:"flood_count"`
	FloodWindow        time.Duration `json:"flood_window" yaml:"flood_window"`
	FloodScore         float64       `json:"flood_score" yaml:"flood_score"`
	RepetitionCount    int           `json:"repetition_count" yaml:"repetition_count"`
	RepetitionScore    float64       `json:"repetition_score" yaml:"repetition_score"`
	ShortMessageLen    int           `json:"short_message_len" yaml:"short_message_len"`
	ShortSpamCount     int           `json:"short_spam_count" yaml:"short_spam_count"`
	ShortSpamWindow    time.Duration `json:"short_spam_window" yaml:"short_spam_window"`
	ShortSpamScore     float64       `json:"short_spam_score" yaml:"short_spam_score"`
	MentionCount       int           `json:"mention_count" yaml:"mention_count"`
	MentionScore       float64       `json:"mention_score" yaml:"mention_score"`
	SuspiciousBehavior float64       `json:"suspicious_behavior" yaml:"suspicious_behavior"`

	// Risk context and history
	ContextContribution float64 `json:"context_contribution" yaml:"context_contribution"`
	HighRiskScore       float64 `json:"high_risk_score" yaml:"high_risk_score"`
	HighRiskMultiplier  float64 `json:"high_risk_multiplier" yaml:"high_risk_multiplier"`
	WarningBonusMin     int     `json:"warning_bonus_min" yaml:"warning_bonus_min"`
	WarningBonusPer     float64 `json:"warning_bonus_per" yaml:"warning_bonus_per"`

	// Decision bands
	PermBanScore     float64 `json:"perm_ban_score" yaml:"perm_ban_score"`
	CriticalBanScore float64 `json:"critical_ban_score" yaml:"critical_ban_score"`
	HighBanScore     float64 `json:"high_ban_score" yaml:"high_ban_score"`
	MediumBanScore   float64 `json:"medium_ban_score" yaml:"medium_ban_score"`
	WarnScore        float64 `json:"warn_score" yaml:"warn_score"`
	MuteScore        float64 `json:"mute_score" yaml:"mute_score"`

	CriticalBanSeconds int64 `json:"critical_ban_seconds" yaml:"critical_ban_seconds"`
	HighBanSeconds     int64 `json:"high_ban_seconds" yaml:"high_ban_seconds"`
	MediumBanSeconds   int64 `json:"medium_ban_seconds" yaml:"medium_ban_seconds"`
	PermBanAfterBans   int   `json:"perm_ban_after_bans" yaml:"perm_ban_after_bans"`

	// Warning tracker
	WarningLimit      int   `json:"warning_limit" yaml:"warning_limit"`
	WarningBanSeconds int64 `json:"warning_ban_seconds" yaml:"warning_ban_seconds"`
}

// Enforcement controls persistence retries
type Enforcement struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
}

// Cache controls the read-through store cache
type Cache struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	L1MaxCost     int64         `json:"l1_max_cost" yaml:"l1_max_cost"`
	L1NumCounters int64         `json:"l1_num_counters" yaml:"l1_num_counters"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultThresholds returns the thresholds of the original moderation rules
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowMaxEntries:   100,
		WindowMaxAge:       time.Hour,
		RapidFireCount:     5,
		RapidFireWindow:    10 * time.Second,
		RapidFireScore:     40,
		FloodCount:         20,
		FloodWindow:        time.Minute,
		FloodScore:         60,
		RepetitionCount:    3,
		RepetitionScore:    30,
		ShortMessageLen:    3,
		ShortSpamCount:     3,
		ShortSpamWindow:    30 * time.Second,
		ShortSpamScore:     20,
		MentionCount:       5,
		MentionScore:       35,
		SuspiciousBehavior: 40,

		ContextContribution: 0.1,
		HighRiskScore:       100,
		HighRiskMultiplier:  1.5,
		WarningBonusMin:     3,
		WarningBonusPer:     10,

		PermBanScore:     200,
		CriticalBanScore: 150,
		HighBanScore:     100,
		MediumBanScore:   70,
		WarnScore:        40,
		MuteScore:        20,

		CriticalBanSeconds: 86400,
		HighBanSeconds:     21600,
		MediumBanSeconds:   3600,
		PermBanAfterBans:   3,

		WarningLimit:      3,
		WarningBanSeconds: 3600,
	}
}

// Default returns a complete configuration with every default applied
func Default() Config {
	return Config{
		HTTPAddr:   ":8080",
		Thresholds: DefaultThresholds(),
		Enforcement: Enforcement{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
		},
		Cache: Cache{
			Enabled:       true,
			L1MaxCost:     10 << 20,
			L1NumCounters: 100000,
			TTL:           5 * time.Second,
		},
	}
}

// Load reads a .yaml/.yml or .json file over the defaults and validates it
func Load(path string) (Config, error) {
	cfg := Default()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, &cfg)
	case ".json":
		err = json.Unmarshal(file, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c Config) Validate() error {
	t := c.Thresholds
	if t.WindowMaxEntries <= 0 || t.WindowMaxAge <= 0 {
		return fmt.Errorf("behavior window must be positive (entries=%d, age=%s)", t.WindowMaxEntries, t.WindowMaxAge)
	}
	bands := []float64{t.PermBanScore, t.CriticalBanScore, t.HighBanScore, t.MediumBanScore, t.WarnScore, t.MuteScore}
	for i := 1; i < len(bands); i++ {
		if bands[i] <= 0 || bands[i] >= bands[i-1] {
			return fmt.Errorf("decision bands must be positive and strictly decreasing: %v", bands)
		}
	}
	if t.HighRiskMultiplier < 1 {
		return fmt.Errorf("high risk multiplier must be >= 1, got %v", t.HighRiskMultiplier)
	}
	if t.WarningLimit <= 0 {
		return fmt.Errorf("warning limit must be positive, got %d", t.WarningLimit)
	}
	if c.Enforcement.MaxAttempts <= 0 {
		return fmt.Errorf("enforcement max attempts must be positive, got %d", c.Enforcement.MaxAttempts)
	}
	return nil
}

package models

import "fmt"

// Action is the enforcement suggested for a message
type Action string

// Action constants
const (
	ActionIgnore  Action = "ignore"
	ActionWarn    Action = "warn"
	ActionMute    Action = "mute"
	ActionTempBan Action = "temp_ban"
	ActionPermBan Action = "perm_ban"
)

// GetAllActions returns all actions from least to most severe
func GetAllActions() []Action {
	return []Action{
		ActionIgnore,
		ActionWarn,
		ActionMute,
		ActionTempBan,
		ActionPermBan,
	}
}

// IsBan reports whether the action removes the actor from chat
func (a Action) IsBan() bool {
	return a == ActionTempBan || a == ActionPermBan
}

// DisplayName returns a human-readable name for an action
func (a Action) DisplayName() string {
	switch a {
	case ActionIgnore:
		return "No Action"
	case ActionWarn:
		return "Warning"
	case ActionMute:
		return "Mute (suggested)"
	case ActionTempBan:
		return "Temporary Ban"
	case ActionPermBan:
		return "Permanent Ban"
	default:
		return string(a)
	}
}

// Severity is the coarse toxicity tier of a message, 0 when nothing matched
type Severity uint8

// Severity tiers, ordered low to extreme
const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
	SeverityExtreme
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical", "extreme"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// ParseSeverity converts a tier name back into a Severity
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", name)
}

// MarshalText encodes the severity by name
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// FormatDuration formats seconds into a short readable string, "permanent" for 0
func FormatDuration(seconds int64) string {
	switch {
	case seconds <= 0:
		return "permanent"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh", seconds/3600)
	default:
		return fmt.Sprintf("%dd", seconds/86400)
	}
}

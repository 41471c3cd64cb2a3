package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// jsonDuration decodes either a duration string such as "10s" or integer
// nanoseconds, so JSON files accept the same values as YAML ones
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(b []byte) error {
	if strings.HasPrefix(string(b), `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = jsonDuration(v)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	*d = jsonDuration(ns)
	return nil
}

// The outer duration fields shadow the embedded ones of the same JSON name.

func (t *Thresholds) UnmarshalJSON(b []byte) error {
	type plain Thresholds
	aux := struct {
		*plain
		WindowMaxAge    jsonDuration `json:"window_max_age"`
		RapidFireWindow jsonDuration `json:"rapid_fire_window"`
		FloodWindow     jsonDuration `json:"flood_window"`
		ShortSpamWindow jsonDuration `json:"short_spam_window"`
	}{
		plain:           (*plain)(t),
		WindowMaxAge:    jsonDuration(t.WindowMaxAge),
		RapidFireWindow: jsonDuration(t.RapidFireWindow),
		FloodWindow:     jsonDuration(t.FloodWindow),
		ShortSpamWindow: jsonDuration(t.ShortSpamWindow),
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	t.WindowMaxAge = time.Duration(aux.WindowMaxAge)
	t.RapidFireWindow = time.Duration(aux.RapidFireWindow)
	t.FloodWindow = time.Duration(aux.FloodWindow)
	t.ShortSpamWindow = time.Duration(aux.ShortSpamWindow)
	return nil
}

func (e *Enforcement) UnmarshalJSON(b []byte) error {
	type plain Enforcement
	aux := struct {
		*plain
		BaseDelay jsonDuration `json:"base_delay"`
	}{plain: (*plain)(e), BaseDelay: jsonDuration(e.BaseDelay)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.BaseDelay = time.Duration(aux.BaseDelay)
	return nil
}

func (c *Cache) UnmarshalJSON(b []byte) error {
	type plain Cache
	aux := struct {
		*plain
		TTL jsonDuration `json:"ttl"`
	}{plain: (*plain)(c), TTL: jsonDuration(c.TTL)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.TTL = time.Duration(aux.TTL)
	return nil
}

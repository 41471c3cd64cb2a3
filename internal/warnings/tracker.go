// Package warnings counts consecutive warnings per device and converts the
// warning that reaches the limit into a ban.
package warnings

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"chat-moderation-engine/internal/config"
	"chat-moderation-engine/internal/models"
)

// Tracker is safe for concurrent use. Escalate only reads; counters change in
// Commit, once the caller has settled on the decision.
type Tracker struct {
	counts     *xsync.MapOf[string, counter]
	limit      int
	banSeconds int64
	permAfter  int
}

type counter struct {
	n    int
	last time.Time
}

func NewTracker(t config.Thresholds) *Tracker {
	return &Tracker{
		counts:     xsync.NewMapOf[string, counter](),
		limit:      t.WarningLimit,
		banSeconds: t.WarningBanSeconds,
		permAfter:  t.PermBanAfterBans,
	}
}

// Escalate returns d converted into a temp ban when this warning would bring
// the device to the limit. Actors with enough prior bans get a permanent ban.
func (w *Tracker) Escalate(deviceID string, d models.BanDecision, previousBans int) models.BanDecision {
	if !d.ShouldWarn || d.ShouldBan {
		return d
	}
	next := w.Count(deviceID) + 1
	if next < w.limit {
		return d
	}

	d.ShouldWarn = false
	d.ShouldBan = true
	d.SuggestedAction = models.ActionTempBan
	d.BanDurationSeconds = w.banSeconds
	d.Reason = fmt.Sprintf("exceeded warning limit (%d warnings)", next)
	if previousBans >= w.permAfter {
		d.SuggestedAction = models.ActionPermBan
		d.BanDurationSeconds = 0
		d.Reason = fmt.Sprintf("%s; repeat offender (%d prior bans)", d.Reason, previousBans)
	}
	return d
}

// Commit records the final decision: a warning increments the counter and
// any ban clears it. now is the time of the warned message.
func (w *Tracker) Commit(deviceID string, d models.BanDecision, now time.Time) {
	switch {
	case d.ShouldBan:
		w.counts.Delete(deviceID)
	case d.ShouldWarn:
		w.counts.Compute(deviceID, func(old counter, _ bool) (counter, bool) {
			old.n++
			if now.After(old.last) {
				old.last = now
			}
			return old, false
		})
	}
}

// Cleanup drops counters whose last warning is older than maxIdle
func (w *Tracker) Cleanup(maxIdle time.Duration, now time.Time) int {
	removed := 0
	w.counts.Range(func(deviceID string, _ counter) bool {
		w.counts.Compute(deviceID, func(c counter, loaded bool) (counter, bool) {
			idle := !loaded || now.Sub(c.last) > maxIdle
			if loaded && idle {
				removed++
			}
			return c, idle
		})
		return true
	})
	return removed
}

// Count returns the current consecutive warning count
func (w *Tracker) Count(deviceID string) int {
	c, _ := w.counts.Load(deviceID)
	return c.n
}

// Clear resets the device's counter
func (w *Tracker) Clear(deviceID string) {
	w.counts.Delete(deviceID)
}

// Size returns the number of devices with a live counter
func (w *Tracker) Size() int {
	return w.counts.Size()
}

// Package behavior keeps a short, bounded message history per device and
// derives behavioral flags (flooding, repetition, mention spam) from it.
package behavior

import (
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chat-moderation-engine/internal/config"
)

const shardCount = 64

var mentionRe = regexp.MustCompile(`(?:^|\s)@[\w.\-]+`)

// Entry is one remembered message
type Entry struct {
	Content   string
	Timestamp time.Time
}

// Flags is the behavioral verdict for the current message
type Flags struct {
	RapidFire   bool
	Flooding    bool
	Repetition  bool
	ShortSpam   bool
	MentionSpam bool

	Mentions   int
	Score      float64
	Suspicious bool
}

// Names returns the raised flags as rule ids
func (f Flags) Names() []string {
	var out []string
	if f.RapidFire {
		out = append(out, "behavior.rapid_fire")
	}
	if f.Flooding {
		out = append(out, "behavior.flooding")
	}
	if f.Repetition {
		out = append(out, "behavior.repetition")
	}
	if f.ShortSpam {
		out = append(out, "behavior.short_spam")
	}
	if f.MentionSpam {
		out = append(out, "behavior.mention_spam")
	}
	return out
}

type window struct {
	entries []Entry
}

func (w *window) last() time.Time {
	if len(w.entries) == 0 {
		return time.Time{}
	}
	return w.entries[len(w.entries)-1].Timestamp
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// Tracker holds one window per device id, spread across 64 independently
// locked shards so devices on different shards never contend.
type Tracker struct {
	shards [shardCount]*shard
	t      config.Thresholds
}

// NewTracker creates a sharded tracker using the behavior thresholds of t
func NewTracker(t config.Thresholds) *Tracker {
	tr := &Tracker{t: t}
	for i := 0; i < shardCount; i++ {
		tr.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return tr
}

func (tr *Tracker) getShard(deviceID string) *shard {
	hash := uint64(0)
	for i := 0; i < len(deviceID); i++ {
		hash = hash*31 + uint64(deviceID[i])
	}
	return tr.shards[hash%shardCount]
}

// Analyze computes flags for message against the device's window without
// changing it. Entries older than the window age are ignored.
func (tr *Tracker) Analyze(deviceID, message string, now time.Time) Flags {
	s := tr.getShard(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	if w, ok := s.windows[deviceID]; ok {
		entries = w.entries
	}
	return tr.analyze(entries, message, now)
}

// Commit appends message to the device's window and trims it
func (tr *Tracker) Commit(deviceID, message string, now time.Time) {
	s := tr.getShard(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	tr.insert(s, deviceID, message, now)
}

// Record analyzes then commits in one step
func (tr *Tracker) Record(deviceID, message string, now time.Time) Flags {
	s := tr.getShard(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	if w, ok := s.windows[deviceID]; ok {
		entries = w.entries
	}
	flags := tr.analyze(entries, message, now)
	tr.insert(s, deviceID, message, now)
	return flags
}

// History returns a copy of the device's window, oldest first
func (tr *Tracker) History(deviceID string) []Entry {
	s := tr.getShard(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[deviceID]
	if !ok {
		return nil
	}
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Clear drops the device's window
func (tr *Tracker) Clear(deviceID string) {
	s := tr.getShard(deviceID)
	s.mu.Lock()
	delete(s.windows, deviceID)
	s.mu.Unlock()
}

func (tr *Tracker) analyze(entries []Entry, message string, now time.Time) Flags {
	var (
		f         Flags
		rapid     = 1 // the current message counts
		flood     = 1
		identical int
		short     int
	)

	content := strings.TrimSpace(message)
	isShort := utf8.RuneCountInString(content) < tr.t.ShortMessageLen
	oldest := now.Add(-tr.t.WindowMaxAge)

	for _, e := range entries {
		if e.Timestamp.Before(oldest) {
			continue
		}
		age := now.Sub(e.Timestamp)
		if age <= tr.t.RapidFireWindow {
			rapid++
		}
		if age <= tr.t.FloodWindow {
			flood++
		}
		if strings.EqualFold(strings.TrimSpace(e.Content), content) {
			identical++
		}
		if isShort && age <= tr.t.ShortSpamWindow && utf8.RuneCountInString(strings.TrimSpace(e.Content)) < tr.t.ShortMessageLen {
			short++
		}
	}

	if rapid >= tr.t.RapidFireCount {
		f.RapidFire = true
		f.Score += tr.t.RapidFireScore
	}
	if flood >= tr.t.FloodCount {
		f.Flooding = true
		f.Score += tr.t.FloodScore
	}
	if identical >= tr.t.RepetitionCount {
		f.Repetition = true
		f.Score += tr.t.RepetitionScore
	}
	if isShort && short > tr.t.ShortSpamCount {
		f.ShortSpam = true
		f.Score += tr.t.ShortSpamScore
	}
	f.Mentions = len(mentionRe.FindAllStringIndex(message, -1))
	if f.Mentions >= tr.t.MentionCount {
		f.MentionSpam = true
		f.Score += tr.t.MentionScore
	}
	f.Suspicious = f.Score >= tr.t.SuspiciousBehavior
	return f
}

// insert keeps the window ordered by timestamp, so messages that arrive late
// land in place, then trims by age relative to the newest entry and by count
func (tr *Tracker) insert(s *shard, deviceID, message string, now time.Time) {
	w, ok := s.windows[deviceID]
	if !ok {
		w = &window{}
		s.windows[deviceID] = w
	}
	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].Timestamp.After(now)
	})
	w.entries = slices.Insert(w.entries, i, Entry{Content: message, Timestamp: now})

	oldest := w.last().Add(-tr.t.WindowMaxAge)
	drop := 0
	for drop < len(w.entries) && w.entries[drop].Timestamp.Before(oldest) {
		drop++
	}
	if over := len(w.entries) - drop - tr.t.WindowMaxEntries; over > 0 {
		drop += over
	}
	if drop > 0 {
		w.entries = append(w.entries[:0], w.entries[drop:]...)
	}
}

// Cleanup removes windows whose newest entry is older than maxIdle
// Should be called periodically to bound memory for devices that went quiet
func (tr *Tracker) Cleanup(maxIdle time.Duration, now time.Time) int {
	removed := 0
	for _, s := range tr.shards {
		s.mu.Lock()
		for id, w := range s.windows {
			if len(w.entries) == 0 || now.Sub(w.last()) > maxIdle {
				delete(s.windows, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Stats describes tracker occupancy
type Stats struct {
	ActiveWindows int
	TotalEntries  int64
}

// GetStats returns aggregated statistics across all shards
func (tr *Tracker) GetStats() Stats {
	stats := Stats{}
	for _, s := range tr.shards {
		s.mu.Lock()
		stats.ActiveWindows += len(s.windows)
		for _, w := range s.windows {
			stats.TotalEntries += int64(len(w.entries))
		}
		s.mu.Unlock()
	}
	return stats
}

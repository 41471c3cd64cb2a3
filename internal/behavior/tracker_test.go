package behavior

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"chat-moderation-engine/internal/config"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTracker() *Tracker {
	return NewTracker(config.DefaultThresholds())
}

func TestTracker_RepetitionAndRapidFire(t *testing.T) {
	tr := newTracker()

	var flags Flags
	for i := 0; i < 5; i++ {
		flags = tr.Record("dev1", "hey", base.Add(time.Duration(i)*time.Second))
		if i < 3 && flags.Repetition {
			t.Errorf("message %d: repetition should need 3 prior copies", i+1)
		}
	}

	if !flags.Repetition {
		t.Error("Expected repetition on 5th message")
	}
	if !flags.RapidFire {
		t.Error("Expected rapid fire on 5th message")
	}
	if flags.Score != 70 {
		t.Errorf("Expected score 70, got %v", flags.Score)
	}
	if !flags.Suspicious {
		t.Error("Expected suspicious")
	}
}

func TestTracker_RepetitionIgnoresCase(t *testing.T) {
	tr := newTracker()

	for i, msg := range []string{"Buy Now", "buy now", "BUY NOW "} {
		tr.Record("dev1", msg, base.Add(time.Duration(i)*time.Minute))
	}
	flags := tr.Record("dev1", "buy NOW", base.Add(4*time.Minute))
	if !flags.Repetition {
		t.Error("Expected case-insensitive repetition")
	}
	if flags.RapidFire {
		t.Error("Messages a minute apart are not rapid fire")
	}
}

func TestTracker_Flooding(t *testing.T) {
	tr := newTracker()

	var flags Flags
	for i := 0; i < 20; i++ {
		flags = tr.Record("dev1", "message "+strconv.Itoa(i), base.Add(time.Duration(i)*2*time.Second))
	}
	if !flags.Flooding {
		t.Error("Expected flooding after 20 messages in 40s")
	}
	if flags.Repetition {
		t.Error("Distinct messages must not count as repetition")
	}
}

func TestTracker_ShortSpam(t *testing.T) {
	tr := newTracker()

	for i := 0; i < 4; i++ {
		tr.Record("dev1", "k", base.Add(time.Duration(i)*5*time.Second))
	}
	flags := tr.Analyze("dev1", "a", base.Add(25*time.Second))
	if !flags.ShortSpam {
		t.Error("Expected short spam after 4 prior short messages")
	}

	flags = tr.Analyze("dev1", "a longer message", base.Add(25*time.Second))
	if flags.ShortSpam {
		t.Error("Long message must not raise short spam")
	}
}

func TestTracker_MentionSpam(t *testing.T) {
	tr := newTracker()

	flags := tr.Analyze("dev1", "@a @b @c @d @e look", base)
	if !flags.MentionSpam || flags.Mentions != 5 {
		t.Errorf("Expected mention spam with 5 mentions, got %v/%d", flags.MentionSpam, flags.Mentions)
	}
	if flags.Score != 35 || flags.Suspicious {
		t.Errorf("Expected score 35 and not suspicious, got %v/%v", flags.Score, flags.Suspicious)
	}

	flags = tr.Analyze("dev1", "mail me@example.com", base)
	if flags.Mentions != 0 {
		t.Errorf("Email address is not a mention, got %d", flags.Mentions)
	}
}

func TestTracker_AnalyzeDoesNotMutate(t *testing.T) {
	tr := newTracker()

	tr.Analyze("dev1", "hello", base)
	if h := tr.History("dev1"); len(h) != 0 {
		t.Errorf("Analyze must not record, history has %d entries", len(h))
	}

	tr.Commit("dev1", "hello", base)
	if h := tr.History("dev1"); len(h) != 1 {
		t.Errorf("Expected 1 entry after commit, got %d", len(h))
	}
}

func TestTracker_WindowBound(t *testing.T) {
	tr := newTracker()

	// 150 messages spread over two hours
	step := 2 * time.Hour / 150
	var last time.Time
	for i := 0; i < 150; i++ {
		last = base.Add(time.Duration(i) * step)
		tr.Record("dev1", "msg "+strconv.Itoa(i), last)
	}

	h := tr.History("dev1")
	if len(h) > 100 {
		t.Errorf("Window holds %d entries, max 100", len(h))
	}
	for _, e := range h {
		if last.Sub(e.Timestamp) > time.Hour {
			t.Errorf("Entry at %s is older than one hour before %s", e.Timestamp, last)
		}
	}
}

func TestTracker_EntryCap(t *testing.T) {
	tr := newTracker()

	for i := 0; i < 150; i++ {
		tr.Record("dev1", "msg "+strconv.Itoa(i), base.Add(time.Duration(i)*time.Second))
	}
	h := tr.History("dev1")
	if len(h) != 100 {
		t.Fatalf("Expected 100 entries, got %d", len(h))
	}
	if h[0].Content != "msg 50" || h[99].Content != "msg 149" {
		t.Errorf("Expected newest 100 entries, got %q..%q", h[0].Content, h[99].Content)
	}
}

func TestTracker_OutOfOrderInserts(t *testing.T) {
	tr := newTracker()

	tr.Record("dev1", "first", base)
	tr.Record("dev1", "late", base.Add(-2*time.Hour))
	tr.Record("dev1", "between", base.Add(-10*time.Minute))
	last := base.Add(time.Minute)
	tr.Record("dev1", "last", last)

	history := tr.History("dev1")
	if len(history) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(history))
	}
	for i, e := range history {
		if last.Sub(e.Timestamp) > time.Hour {
			t.Errorf("%q is %s older than last insert", e.Content, last.Sub(e.Timestamp))
		}
		if i > 0 && e.Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("Entry %d (%q) is out of order", i, e.Content)
		}
	}
	if history[0].Content != "between" {
		t.Errorf("Expected late arrival in place, got %q first", history[0].Content)
	}
}

func TestTracker_MultipleDevices(t *testing.T) {
	tr := newTracker()

	for i := 0; i < 4; i++ {
		tr.Record("dev1", "spam", base.Add(time.Duration(i)*time.Second))
	}
	flags := tr.Record("dev2", "spam", base.Add(5*time.Second))
	if flags.Repetition || flags.RapidFire {
		t.Error("dev2 must not see dev1's history")
	}
}

func TestTracker_ClearAndCleanup(t *testing.T) {
	tr := newTracker()

	tr.Record("dev1", "a", base)
	tr.Record("dev2", "b", base.Add(50*time.Minute))

	tr.Clear("dev2")
	if h := tr.History("dev2"); h != nil {
		t.Error("Expected dev2 history cleared")
	}

	tr.Record("dev3", "c", base.Add(50*time.Minute))
	removed := tr.Cleanup(30*time.Minute, base.Add(time.Hour))
	if removed != 1 {
		t.Errorf("Expected 1 idle window removed, got %d", removed)
	}
	stats := tr.GetStats()
	if stats.ActiveWindows != 1 || stats.TotalEntries != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestTracker_ConcurrentDevices(t *testing.T) {
	tr := newTracker()

	var wg sync.WaitGroup
	for d := 0; d < 50; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			id := "dev" + strconv.Itoa(d)
			for i := 0; i < 200; i++ {
				tr.Record(id, "m", base.Add(time.Duration(i)*time.Second))
			}
		}(d)
	}
	wg.Wait()

	stats := tr.GetStats()
	if stats.ActiveWindows != 50 {
		t.Errorf("Expected 50 windows, got %d", stats.ActiveWindows)
	}
	if stats.TotalEntries != 50*100 {
		t.Errorf("Expected %d entries, got %d", 50*100, stats.TotalEntries)
	}
}

func BenchmarkTracker_Record(b *testing.B) {
	tr := newTracker()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		tr.Record("device123", "hello there", base.Add(time.Duration(i)*time.Millisecond))
	}
}

func BenchmarkTracker_Concurrent(b *testing.B) {
	tr := newTracker()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			tr.Record("device"+strconv.Itoa(i%100), "hello", base.Add(time.Duration(i)*time.Millisecond))
			i++
		}
	})
}

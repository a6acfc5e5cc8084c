package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modwatch/modwatch/internal/database"
)

type memStats struct {
	windows []*database.WindowStats
	calls   int
}

func (m *memStats) Stats(_ context.Context, _, _, _ time.Time) (*database.WindowStats, error) {
	stats := m.windows[m.calls%len(m.windows)]
	m.calls++
	return stats, nil
}

type memNotifier struct {
	messages []string
}

func (m *memNotifier) Post(_ context.Context, message string) error {
	m.messages = append(m.messages, message)
	return nil
}

func TestSummarizer_PostsAfterInterval(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "summary.json")
	store := &memStats{windows: []*database.WindowStats{
		{Reported: 12, Removed: 2, Confirmed: 7, Overturned: 1, Pending: 3, LeftUp: 1, AvgSignal: 0.91},
		{Reported: 10},
	}}
	notifier := &memNotifier{}

	s := NewSummarizer(SummaryConfig{StatePath: statePath}, store, notifier, nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	posted, err := s.MaybePost(context.Background(), false)
	if err != nil {
		t.Fatalf("MaybePost: %v", err)
	}
	if !posted {
		t.Fatal("first summary with no prior state should post")
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(notifier.messages))
	}

	msg := notifier.messages[0]
	for _, want := range []string{
		"Reported: 12 (+20% vs prior window)",
		"Auto-removed: 2",
		"Confirmed by moderators: 7",
		"Overturned: 1",
		"Awaiting decision: 3",
		"Left up past decision lag: 1",
		"Average top signal on reports: 0.91",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("summary missing %q:\n%s", want, msg)
		}
	}

	// A second call inside the interval is a no-op.
	posted, err = s.MaybePost(context.Background(), false)
	if err != nil {
		t.Fatalf("second MaybePost: %v", err)
	}
	if posted {
		t.Error("summary posted again inside the interval")
	}

	// Once the interval elapses it posts again.
	s.now = func() time.Time { return now.Add(7*24*time.Hour + time.Minute) }
	posted, err = s.MaybePost(context.Background(), false)
	if err != nil {
		t.Fatalf("third MaybePost: %v", err)
	}
	if !posted {
		t.Error("summary not posted after the interval elapsed")
	}
}

func TestSummarizer_ForceBypassesInterval(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "summary.json")
	store := &memStats{windows: []*database.WindowStats{{Reported: 1}, {}}}
	notifier := &memNotifier{}

	s := NewSummarizer(SummaryConfig{StatePath: statePath}, store, notifier, nil)

	for i := 0; i < 2; i++ {
		posted, err := s.MaybePost(context.Background(), true)
		if err != nil {
			t.Fatalf("MaybePost force #%d: %v", i+1, err)
		}
		if !posted {
			t.Fatalf("forced summary #%d did not post", i+1)
		}
	}
	if len(notifier.messages) != 2 {
		t.Errorf("got %d messages, want 2", len(notifier.messages))
	}
}

func TestDeltaPct(t *testing.T) {
	tests := []struct {
		cur, prev int
		want      string
	}{
		{12, 10, "+20%"},
		{8, 10, "-20%"},
		{10, 10, "+0%"},
		{5, 0, "n/a"},
	}
	for _, tt := range tests {
		if got := deltaPct(tt.cur, tt.prev); got != tt.want {
			t.Errorf("deltaPct(%d, %d) = %q, want %q", tt.cur, tt.prev, got, tt.want)
		}
	}
}

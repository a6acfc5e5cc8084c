package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/logger"
)

// StatsStore aggregates audit records over a window.
type StatsStore interface {
	Stats(ctx context.Context, from, to, lagCutoff time.Time) (*database.WindowStats, error)
}

// Notifier delivers a summary message.
type Notifier interface {
	Post(ctx context.Context, message string) error
}

// SummaryConfig holds summary timing and state location.
type SummaryConfig struct {
	Interval    time.Duration
	DecisionLag time.Duration
	StatePath   string
}

// summaryState is the JSON file that survives restarts so the interval
// is measured from the last posted summary, not from process start.
type summaryState struct {
	LastPostedAt time.Time `json:"last_posted_at"`
}

// Summarizer posts a periodic precision digest built from the audit
// table.
type Summarizer struct {
	cfg      SummaryConfig
	store    StatsStore
	notifier Notifier
	log      logger.Logger
	now      func() time.Time
}

func NewSummarizer(cfg SummaryConfig, store StatsStore, notifier Notifier, log logger.Logger) *Summarizer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 7 * 24 * time.Hour
	}
	if cfg.DecisionLag <= 0 {
		cfg.DecisionLag = 12 * time.Hour
	}
	return &Summarizer{cfg: cfg, store: store, notifier: notifier, log: log, now: time.Now}
}

// MaybePost posts a summary when the interval has elapsed since the
// last one, or immediately when force is set. Returns true when a
// summary was posted.
func (s *Summarizer) MaybePost(ctx context.Context, force bool) (bool, error) {
	now := s.now()
	state := s.loadState()
	if !force && now.Sub(state.LastPostedAt) < s.cfg.Interval {
		return false, nil
	}

	to := now
	from := to.Add(-s.cfg.Interval)
	lagCutoff := now.Add(-s.cfg.DecisionLag)

	cur, err := s.store.Stats(ctx, from, to, lagCutoff)
	if err != nil {
		return false, fmt.Errorf("window stats: %w", err)
	}
	prev, err := s.store.Stats(ctx, from.Add(-s.cfg.Interval), from, lagCutoff)
	if err != nil {
		return false, fmt.Errorf("prior window stats: %w", err)
	}

	msg := formatSummary(from, to, cur, prev)
	if err := s.notifier.Post(ctx, msg); err != nil {
		return false, fmt.Errorf("post summary: %w", err)
	}

	state.LastPostedAt = now
	s.saveState(state)
	s.log.Info("summary posted", logger.Int("reported", cur.Reported))
	return true, nil
}

func formatSummary(from, to time.Time, cur, prev *database.WindowStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Moderation summary %s to %s\n",
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	fmt.Fprintf(&b, "Reported: %d (%s vs prior window)\n", cur.Reported, deltaPct(cur.Reported, prev.Reported))
	fmt.Fprintf(&b, "Auto-removed: %d\n", cur.Removed)
	fmt.Fprintf(&b, "Confirmed by moderators: %d\n", cur.Confirmed)
	fmt.Fprintf(&b, "Overturned: %d\n", cur.Overturned)
	fmt.Fprintf(&b, "Awaiting decision: %d\n", cur.Pending)
	fmt.Fprintf(&b, "Left up past decision lag: %d\n", cur.LeftUp)
	fmt.Fprintf(&b, "Average top signal on reports: %.2f", cur.AvgSignal)
	return b.String()
}

func deltaPct(cur, prev int) string {
	if prev == 0 {
		return "n/a"
	}
	pct := (float64(cur) - float64(prev)) / float64(prev) * 100
	return fmt.Sprintf("%+.0f%%", pct)
}

func (s *Summarizer) loadState() summaryState {
	var state summaryState
	if s.cfg.StatePath == "" {
		return state
	}
	data, err := os.ReadFile(s.cfg.StatePath)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Warn("summary state unreadable, starting fresh",
			logger.String("path", s.cfg.StatePath),
			logger.Error(err))
	}
	return state
}

func (s *Summarizer) saveState(state summaryState) {
	if s.cfg.StatePath == "" {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := os.WriteFile(s.cfg.StatePath, data, 0o600); err != nil {
		s.log.Warn("summary state not saved",
			logger.String("path", s.cfg.StatePath),
			logger.Error(err))
	}
}

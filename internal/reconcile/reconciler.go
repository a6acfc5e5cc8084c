package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modwatch/modwatch/internal/database"
	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/telemetry"
)

// AuditStore is the repository surface the reconciler needs.
type AuditStore interface {
	ListPending(ctx context.Context, since time.Time) ([]domain.AuditRecord, error)
	MarkOutcome(ctx context.Context, id string, outcome domain.RecordOutcome, at time.Time) error
}

// Config holds reconciliation timing.
type Config struct {
	Interval    time.Duration
	Lookback    time.Duration
	DecisionLag time.Duration
}

// Reconciler matches pending audit records against moderator outcomes.
type Reconciler struct {
	cfg   Config
	store AuditStore
	feed  GroundTruthFeed
	tel   *telemetry.Provider
	log   logger.Logger
	now   func() time.Time
}

func New(cfg Config, store AuditStore, feed GroundTruthFeed, tel *telemetry.Provider, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Hour
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 14 * 24 * time.Hour
	}
	if cfg.DecisionLag <= 0 {
		cfg.DecisionLag = 12 * time.Hour
	}
	return &Reconciler{cfg: cfg, store: store, feed: feed, tel: tel, log: log, now: time.Now}
}

// Run reconciles on the configured interval until the context ends. A
// failed pass is logged and retried on the next tick; pending records
// wait in place.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if err := r.ReconcileOnce(ctx); err != nil {
		r.log.Error("reconcile pass failed", logger.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				r.log.Error("reconcile pass failed", logger.Error(err))
			}
		}
	}
}

// ReconcileOnce runs a single pass: pull pending records inside the
// lookback window, pull moderator outcomes for the same span, and
// finalize every record a moderator has ruled on. Records past the
// decision lag with no ruling are counted as left up but stay pending
// until they age out of the window.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	now := r.now()
	since := now.Add(-r.cfg.Lookback)

	pending, err := r.store.ListPending(ctx, since)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	outcomes, err := r.feed.Outcomes(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch ground truth: %w", err)
	}
	byItem := indexOutcomes(outcomes)

	var confirmed, overturned, leftUp int
	for i := range pending {
		rec := &pending[i]
		truth, ok := byItem[rec.ItemID]
		if !ok {
			if now.Sub(rec.DecidedAt) > r.cfg.DecisionLag {
				leftUp++
				if r.tel != nil {
					r.tel.ReportLeftUp()
				}
			}
			continue
		}

		outcome := domain.RecordConfirmed
		if truth.Status == domain.TruthApproved {
			outcome = domain.RecordOverturned
		}
		err := r.store.MarkOutcome(ctx, rec.ID, outcome, now)
		if errors.Is(err, database.ErrOutcomeFinal) {
			// Another pass beat us to it. Harmless.
			continue
		}
		if err != nil {
			return fmt.Errorf("mark outcome for %s: %w", rec.ID, err)
		}

		switch outcome {
		case domain.RecordConfirmed:
			confirmed++
			if r.tel != nil {
				r.tel.OutcomeConfirmed()
			}
		case domain.RecordOverturned:
			overturned++
			if r.tel != nil {
				r.tel.OutcomeOverturned()
			}
			r.log.Info("report overturned by moderator",
				logger.String("item_id", rec.ItemID),
				logger.String("raw_action", truth.RawAction),
				logger.String("moderator", truth.Moderator))
		}
	}

	r.log.Info("reconcile pass complete",
		logger.Int("pending", len(pending)),
		logger.Int("confirmed", confirmed),
		logger.Int("overturned", overturned),
		logger.Int("left_up", leftUp))
	return nil
}

// indexOutcomes keeps one outcome per item; when moderators acted more
// than once, the latest action wins.
func indexOutcomes(outcomes []domain.GroundTruthOutcome) map[string]domain.GroundTruthOutcome {
	byItem := make(map[string]domain.GroundTruthOutcome, len(outcomes))
	for _, o := range outcomes {
		prev, ok := byItem[o.ItemID]
		if !ok || o.ObservedAt.After(prev.ObservedAt) {
			byItem[o.ItemID] = o
		}
	}
	return byItem
}

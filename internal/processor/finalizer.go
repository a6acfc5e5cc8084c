package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/telemetry"
)

// Reporter takes platform actions on items.
type Reporter interface {
	Report(ctx context.Context, item *domain.Item, reason string) error
	Remove(ctx context.Context, item *domain.Item, reason string) error
}

// AuditStore persists audit records.
type AuditStore interface {
	Insert(ctx context.Context, rec *domain.AuditRecord) error
}

// Notifier posts operator-facing messages about taken actions. A nil
// notifier disables the per-item messages.
type Notifier interface {
	Post(ctx context.Context, message string) error
}

// FinalizerConfig controls how verdicts turn into actions.
type FinalizerConfig struct {
	Enabled            bool
	DryRun             bool
	ReasonTemplate     string
	MinRemoveConsensus int
	RemoveFloor        float64
}

// Finalizer converts review verdicts into platform actions and audit
// records. The record is persisted before the action runs: a crash can
// lose an action but never the trace of a decision.
type Finalizer struct {
	cfg      FinalizerConfig
	reporter Reporter
	store    AuditStore
	notifier Notifier
	tel      *telemetry.Provider
	log      logger.Logger
}

func NewFinalizer(cfg FinalizerConfig, reporter Reporter, store AuditStore, notifier Notifier, tel *telemetry.Provider, log logger.Logger) *Finalizer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ReasonTemplate == "" {
		cfg.ReasonTemplate = "modwatch: %s (confidence: %s)"
	}
	return &Finalizer{cfg: cfg, reporter: reporter, store: store, notifier: notifier, tel: tel, log: log}
}

// Finalize records the verdict and takes the resulting action. A benign
// verdict closes the record immediately; an escalate verdict reports,
// or removes when enough scorers agree with very high confidence.
func (f *Finalizer) Finalize(ctx context.Context, item *domain.Item, decision *domain.EscalationDecision, verdict *domain.Verdict) (*domain.AuditRecord, error) {
	rec := f.newRecord(item, decision)
	rec.Verdict = verdict.Kind
	rec.VerdictWhy = verdict.Reason
	rec.Backend = verdict.Backend

	if verdict.Kind == domain.VerdictBenign {
		rec.Action = domain.ActionNone
		rec.Outcome = domain.RecordNoAction
	} else {
		rec.Action = f.chooseAction(decision)
		rec.Outcome = domain.RecordPending
	}

	if err := f.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist audit record: %w", err)
	}

	if rec.Action != domain.ActionNone {
		if err := f.act(ctx, item, rec); err != nil {
			return rec, err
		}
	}
	if f.tel != nil {
		f.tel.ActionTaken(string(rec.Action))
	}
	return rec, nil
}

// RecordUnreviewed stores the trace of an escalated item that no
// backend could review. The record is terminal; the item gets no action
// and is never revisited.
func (f *Finalizer) RecordUnreviewed(ctx context.Context, item *domain.Item, decision *domain.EscalationDecision) (*domain.AuditRecord, error) {
	rec := f.newRecord(item, decision)
	rec.Action = domain.ActionNone
	rec.Outcome = domain.RecordUnreviewed

	if err := f.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist audit record: %w", err)
	}
	if f.tel != nil {
		f.tel.Unreviewed()
	}
	f.log.Warn("item escalated but unreviewed",
		logger.String("item_id", item.ID),
		logger.String("reason", decision.Reason))
	return rec, nil
}

func (f *Finalizer) newRecord(item *domain.Item, decision *domain.EscalationDecision) *domain.AuditRecord {
	signalsJSON, err := json.Marshal(decision.Signals)
	if err != nil {
		signalsJSON = []byte("[]")
	}
	return &domain.AuditRecord{
		ID:          uuid.NewString(),
		ItemID:      item.ID,
		Community:   item.Community,
		Author:      item.Author,
		Reason:      decision.Reason,
		Directed:    decision.Directed,
		SignalsJSON: string(signalsJSON),
		MaxSignal:   maxKnownSignal(decision.Signals),
		DecidedAt:   time.Now().UTC(),
	}
}

// chooseAction picks remove only when at least MinRemoveConsensus
// scorers independently crossed the remove floor; everything else is a
// report for a human to judge.
func (f *Finalizer) chooseAction(decision *domain.EscalationDecision) domain.Action {
	agree := 0
	for _, s := range decision.Signals {
		if s.Known && s.MaxLabel() >= f.cfg.RemoveFloor {
			agree++
		}
	}
	if f.cfg.MinRemoveConsensus > 0 && agree >= f.cfg.MinRemoveConsensus {
		return domain.ActionRemove
	}
	return domain.ActionReport
}

func (f *Finalizer) act(ctx context.Context, item *domain.Item, rec *domain.AuditRecord) error {
	reason := fmt.Sprintf(f.cfg.ReasonTemplate, rec.Reason, domain.ConfidenceBucket(rec.MaxSignal))

	if !f.cfg.Enabled || f.cfg.DryRun {
		f.log.Info("dry run, action suppressed",
			logger.String("item_id", item.ID),
			logger.String("action", string(rec.Action)),
			logger.String("reason", reason))
		return nil
	}

	var err error
	switch rec.Action {
	case domain.ActionRemove:
		err = f.reporter.Remove(ctx, item, reason)
	case domain.ActionReport:
		err = f.reporter.Report(ctx, item, reason)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", rec.Action, item.ID, err)
	}

	f.log.Info("action taken",
		logger.String("item_id", item.ID),
		logger.String("action", string(rec.Action)),
		logger.String("permalink", item.Permalink))

	if f.notifier != nil {
		msg := fmt.Sprintf("%s %s in %s: %s", rec.Action, item.ID, item.Community, reason)
		if item.Permalink != "" {
			msg += "\n" + item.Permalink
		}
		// Best effort: a dropped message never fails the action.
		if notifyErr := f.notifier.Post(ctx, msg); notifyErr != nil {
			f.log.Warn("action notification failed",
				logger.String("item_id", item.ID),
				logger.Error(notifyErr))
		}
	}
	return nil
}

func maxKnownSignal(signals []domain.SignalScore) float64 {
	var best float64
	for _, s := range signals {
		if !s.Known {
			continue
		}
		if m := s.MaxLabel(); m > best {
			best = m
		}
	}
	return best
}

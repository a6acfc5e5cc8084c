package classifier

import (
	"context"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/telemetry"
)

// Scorer produces per-label probabilities for a piece of text. Local
// scorers are cheap sidecar models; external scorers are hosted
// moderation endpoints with tighter rate budgets.
type Scorer interface {
	Name() string
	Kind() domain.ScorerKind
	Score(ctx context.Context, text string) (map[string]float64, error)
}

// LabelThreshold carries the trigger probability for one label, split by
// directedness. Directed text triggers at a lower probability because a
// target raises the cost of a miss.
type LabelThreshold struct {
	Directed   float64
	Undirected float64
}

// SignalPolicy holds the threshold table plus the two policy bounds the
// decision engine consults.
type SignalPolicy struct {
	Thresholds         map[string]LabelThreshold
	Default            LabelThreshold
	LowConfidenceBound float64
	ValidationFloor    float64
}

func (p SignalPolicy) threshold(label string, directed bool) float64 {
	t, ok := p.Thresholds[label]
	if !ok {
		t = p.Default
	}
	if directed {
		return t.Directed
	}
	return t.Undirected
}

// Aggregator fans a text out to every configured scorer and folds the
// responses into SignalScore values.
type Aggregator struct {
	scorers []Scorer
	policy  SignalPolicy
	tel     *telemetry.Provider
	log     logger.Logger
}

func NewAggregator(scorers []Scorer, policy SignalPolicy, tel *telemetry.Provider, log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Nop()
	}
	return &Aggregator{scorers: scorers, policy: policy, tel: tel, log: log}
}

// Policy exposes the bounds for the decision engine.
func (a *Aggregator) Policy() SignalPolicy { return a.policy }

// Aggregate queries each scorer in order and records one SignalScore per
// scorer. A scorer failure is recorded with Known=false rather than
// aborting the item; the decision engine treats unknown signals as
// non-triggered.
func (a *Aggregator) Aggregate(ctx context.Context, text string, directed bool) []domain.SignalScore {
	out := make([]domain.SignalScore, 0, len(a.scorers))
	for _, s := range a.scorers {
		start := time.Now()
		labels, err := s.Score(ctx, text)
		if a.tel != nil {
			a.tel.ObserveScorerDuration(s.Name(), time.Since(start))
		}

		sig := domain.SignalScore{Scorer: s.Name(), Kind: s.Kind()}
		if err != nil {
			sig.Err = err.Error()
			a.log.Warn("scorer unavailable",
				logger.String("scorer", s.Name()),
				logger.Error(err))
			if a.tel != nil {
				a.tel.ScorerFailure(s.Name())
			}
			out = append(out, sig)
			continue
		}

		sig.Known = true
		sig.Labels = labels
		for label, prob := range labels {
			if prob >= a.policy.threshold(label, directed) {
				sig.Triggered = true
				break
			}
		}
		out = append(out, sig)
	}
	return out
}

package classifier

import (
	"context"
	"time"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/telemetry"
)

// SignalSource is the aggregator surface the orchestrator depends on.
type SignalSource interface {
	Policy() SignalPolicy
	Aggregate(ctx context.Context, text string, directed bool) []domain.SignalScore
}

// Classifier runs the pre-filter pipeline for one item: canonicalize,
// match rules, classify directedness, gather signals, decide.
type Classifier struct {
	rules    *RuleEngine
	directed *DirectednessClassifier
	signals  SignalSource
	tel      *telemetry.Provider
	log      logger.Logger
}

func New(rules *RuleEngine, directed *DirectednessClassifier, signals SignalSource, tel *telemetry.Provider, log logger.Logger) *Classifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Classifier{rules: rules, directed: directed, signals: signals, tel: tel, log: log}
}

// Classify produces the escalation decision for an item. Scorers are
// only consulted when the outcome can depend on them: an undirected
// benign match resolves without a single scorer call, while a
// hard-escalate match still gathers signals because the action stage
// and the audit record consume them.
func (c *Classifier) Classify(ctx context.Context, item *domain.Item) domain.EscalationDecision {
	start := time.Now()
	canonical := Normalize(item.Body)
	matches := c.rules.Match(canonical)
	directed := c.directed.IsDirected(item, canonical)

	// Scorers see the raw body: the models were trained on natural
	// text, and canonicalization artifacts would shift their scores.
	var signals []domain.SignalScore
	if needSignals(matches, directed) {
		signals = c.signals.Aggregate(ctx, item.Body, directed)
	}

	outcome, reason := Decide(matches, signals, directed, c.signals.Policy())

	decision := domain.EscalationDecision{
		ItemID:    item.ID,
		Outcome:   outcome,
		Reason:    reason,
		Directed:  directed,
		Matches:   matches,
		Signals:   signals,
		DecidedAt: time.Now().UTC(),
	}

	if c.tel != nil {
		c.tel.ObserveClassify(string(outcome), time.Since(start))
	}
	c.log.Debug("item classified",
		logger.String("item_id", item.ID),
		logger.String("outcome", string(outcome)),
		logger.String("reason", reason),
		logger.Bool("directed", directed),
		logger.Int("matches", len(matches)))
	return decision
}

// needSignals reports whether the decision can be reached without
// scorer output. Only the undirected benign short-circuit qualifies.
func needSignals(matches []domain.MatchResult, directed bool) bool {
	top, ok := TopTier(matches)
	if !ok {
		return true
	}
	if top == domain.TierBenignSkip && !directed {
		return false
	}
	return true
}

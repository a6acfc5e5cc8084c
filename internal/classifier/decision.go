package classifier

import (
	"fmt"

	"github.com/modwatch/modwatch/internal/domain"
)

// Decide folds rule matches and scorer signals into an escalation
// outcome. It is a pure function of its inputs so the policy can be
// tested without transports.
//
// Precedence, highest first:
//  1. a hard-escalate match always escalates
//  2. a benign-skip match on undirected text always skips
//  3. a soft-escalate match escalates unless every reporting scorer
//     disagrees with high confidence
//  4. otherwise signals decide, with cheap-scorer hits requiring
//     external validation
func Decide(matches []domain.MatchResult, signals []domain.SignalScore, directed bool, policy SignalPolicy) (domain.EscalationOutcome, string) {
	top, hasMatch := TopTier(matches)

	if hasMatch && top == domain.TierHardEscalate {
		return domain.OutcomeEscalate, fmt.Sprintf("rule match: %s (%s)", matches[0].Category, top)
	}
	if hasMatch && top == domain.TierBenignSkip && !directed {
		return domain.OutcomeSkip, fmt.Sprintf("benign match: %s, undirected", matches[0].Category)
	}

	if hasMatch && top == domain.TierSoftEscalate {
		if consensusBelow(signals, policy.LowConfidenceBound) {
			return domain.OutcomeSkip, fmt.Sprintf("soft match %s overridden: scorer consensus below %.2f", matches[0].Category, policy.LowConfidenceBound)
		}
		return domain.OutcomeEscalate, fmt.Sprintf("rule match: %s (%s)", matches[0].Category, top)
	}

	// Contextual matches and benign matches on directed text carry no
	// weight of their own; they fall through to the signal path.
	return decideBySignals(signals, policy)
}

func decideBySignals(signals []domain.SignalScore, policy SignalPolicy) (domain.EscalationOutcome, string) {
	var (
		localHit    *domain.SignalScore
		externalHit *domain.SignalScore
		externalMax float64
		externalSaw bool
	)
	for i := range signals {
		s := &signals[i]
		if !s.Known {
			continue
		}
		if s.Kind == domain.ScorerExternal {
			externalSaw = true
			if m := s.MaxLabel(); m > externalMax {
				externalMax = m
			}
		}
		if !s.Triggered {
			continue
		}
		switch s.Kind {
		case domain.ScorerLocal:
			if localHit == nil {
				localHit = s
			}
		case domain.ScorerExternal:
			if externalHit == nil {
				externalHit = s
			}
		}
	}

	if externalHit != nil {
		return domain.OutcomeEscalate, fmt.Sprintf("signal: %s %s=%.2f", externalHit.Scorer, topLabel(*externalHit), externalHit.MaxLabel())
	}
	if localHit != nil {
		// A lone cheap-scorer hit needs corroboration before it can cost
		// a review call. An absent external reading does not corroborate.
		if externalSaw && externalMax >= policy.ValidationFloor {
			return domain.OutcomeEscalate, fmt.Sprintf("signal: %s %s=%.2f, validated at %.2f", localHit.Scorer, topLabel(*localHit), localHit.MaxLabel(), externalMax)
		}
		return domain.OutcomeSkip, fmt.Sprintf("unvalidated signal: %s %s=%.2f", localHit.Scorer, topLabel(*localHit), localHit.MaxLabel())
	}
	return domain.OutcomeSkip, "no rule match, no triggered signal"
}

func topLabel(s domain.SignalScore) string {
	var (
		name string
		best float64
	)
	for k, v := range s.Labels {
		if v > best || name == "" {
			name, best = k, v
		}
	}
	return name
}

// consensusBelow reports whether at least one scorer responded and every
// scorer that responded scored its top label under bound. Failed scorers
// do not vote.
func consensusBelow(signals []domain.SignalScore, bound float64) bool {
	known := 0
	for _, s := range signals {
		if !s.Known {
			continue
		}
		known++
		if s.MaxLabel() >= bound {
			return false
		}
	}
	return known > 0
}

package classifier_test

import (
	"strings"
	"testing"

	"github.com/modwatch/modwatch/internal/classifier"
	"github.com/modwatch/modwatch/internal/domain"
)

func testPolicy() classifier.SignalPolicy {
	return classifier.SignalPolicy{
		Thresholds: map[string]classifier.LabelThreshold{
			"toxicity": {Directed: 0.80, Undirected: 0.90},
		},
		Default:            classifier.LabelThreshold{Directed: 0.80, Undirected: 0.90},
		LowConfidenceBound: 0.30,
		ValidationFloor:    0.60,
	}
}

func match(category string, tier domain.SeverityTier) domain.MatchResult {
	return domain.MatchResult{Category: category, Tier: tier, Pattern: "x"}
}

func signal(scorer string, kind domain.ScorerKind, score float64, triggered bool) domain.SignalScore {
	return domain.SignalScore{
		Scorer:    scorer,
		Kind:      kind,
		Labels:    map[string]float64{"toxicity": score},
		Triggered: triggered,
		Known:     true,
	}
}

func failedSignal(scorer string, kind domain.ScorerKind) domain.SignalScore {
	return domain.SignalScore{Scorer: scorer, Kind: kind, Err: "timeout"}
}

func TestDecide(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		name       string
		matches    []domain.MatchResult
		signals    []domain.SignalScore
		directed   bool
		want       domain.EscalationOutcome
		wantReason string
	}{
		{
			name:     "hard match escalates regardless of signals",
			matches:  []domain.MatchResult{match("threats", domain.TierHardEscalate)},
			signals:  []domain.SignalScore{signal("detox", domain.ScorerLocal, 0.05, false)},
			directed: true,
			want:     domain.OutcomeEscalate,
		},
		{
			name:     "benign match on undirected text skips",
			matches:  []domain.MatchResult{match("profanity-benign", domain.TierBenignSkip)},
			directed: false,
			want:     domain.OutcomeSkip,
		},
		{
			name:     "soft match escalates when a scorer agrees",
			matches:  []domain.MatchResult{match("harassment", domain.TierSoftEscalate)},
			signals:  []domain.SignalScore{signal("detox", domain.ScorerLocal, 0.75, false)},
			directed: true,
			want:     domain.OutcomeEscalate,
		},
		{
			name:    "soft match overridden by unanimous low-confidence consensus",
			matches: []domain.MatchResult{match("harassment", domain.TierSoftEscalate)},
			signals: []domain.SignalScore{
				signal("detox", domain.ScorerLocal, 0.12, false),
				signal("perspective", domain.ScorerExternal, 0.08, false),
			},
			directed:   true,
			want:       domain.OutcomeSkip,
			wantReason: "overridden",
		},
		{
			name:    "failed scorer does not vote in the consensus",
			matches: []domain.MatchResult{match("harassment", domain.TierSoftEscalate)},
			signals: []domain.SignalScore{
				signal("detox", domain.ScorerLocal, 0.12, false),
				failedSignal("perspective", domain.ScorerExternal),
			},
			directed: true,
			want:     domain.OutcomeSkip,
		},
		{
			name:     "soft match with no reporting scorer escalates",
			matches:  []domain.MatchResult{match("harassment", domain.TierSoftEscalate)},
			signals:  []domain.SignalScore{failedSignal("detox", domain.ScorerLocal)},
			directed: true,
			want:     domain.OutcomeEscalate,
		},
		{
			name:     "external trigger escalates without a rule match",
			signals:  []domain.SignalScore{signal("perspective", domain.ScorerExternal, 0.93, true)},
			directed: false,
			want:     domain.OutcomeEscalate,
		},
		{
			name: "lone local trigger needs external validation",
			signals: []domain.SignalScore{
				signal("detox", domain.ScorerLocal, 0.95, true),
				signal("perspective", domain.ScorerExternal, 0.05, false),
			},
			directed:   false,
			want:       domain.OutcomeSkip,
			wantReason: "unvalidated",
		},
		{
			name: "local trigger validated by external floor",
			signals: []domain.SignalScore{
				signal("detox", domain.ScorerLocal, 0.95, true),
				signal("perspective", domain.ScorerExternal, 0.65, false),
			},
			directed: false,
			want:     domain.OutcomeEscalate,
		},
		{
			name: "local trigger with external scorer down stays unvalidated",
			signals: []domain.SignalScore{
				signal("detox", domain.ScorerLocal, 0.95, true),
				failedSignal("perspective", domain.ScorerExternal),
			},
			directed: false,
			want:     domain.OutcomeSkip,
		},
		{
			name:     "directed benign match falls through to signals",
			matches:  []domain.MatchResult{match("profanity-benign", domain.TierBenignSkip)},
			signals:  []domain.SignalScore{signal("perspective", domain.ScorerExternal, 0.92, true)},
			directed: true,
			want:     domain.OutcomeEscalate,
		},
		{
			name:     "contextual match carries no weight",
			matches:  []domain.MatchResult{match("self-reference", domain.TierContextual)},
			signals:  []domain.SignalScore{signal("perspective", domain.ScorerExternal, 0.10, false)},
			directed: false,
			want:     domain.OutcomeSkip,
		},
		{
			name: "nothing triggers, skip",
			signals: []domain.SignalScore{
				signal("detox", domain.ScorerLocal, 0.10, false),
				signal("perspective", domain.ScorerExternal, 0.07, false),
			},
			directed: false,
			want:     domain.OutcomeSkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := classifier.Decide(tt.matches, tt.signals, tt.directed, policy)
			if got != tt.want {
				t.Errorf("Decide() = %s (%s), want %s", got, reason, tt.want)
			}
			if tt.wantReason != "" && !strings.Contains(reason, tt.wantReason) {
				t.Errorf("reason %q does not mention %q", reason, tt.wantReason)
			}
		})
	}
}

func TestDecide_ValidatedPositiveSentiment(t *testing.T) {
	// "it's a fucking great photo" trips a naive profanity scorer but
	// the external scorer reads the sentiment correctly.
	policy := testPolicy()
	signals := []domain.SignalScore{
		signal("detox", domain.ScorerLocal, 0.95, true),
		signal("perspective", domain.ScorerExternal, 0.05, false),
	}
	got, _ := classifier.Decide(nil, signals, false, policy)
	if got != domain.OutcomeSkip {
		t.Errorf("positive-sentiment profanity escalated, want skip")
	}
}

package domain

import "time"

// EscalationOutcome is the terminal output of the decision engine.
type EscalationOutcome string

const (
	OutcomeEscalate EscalationOutcome = "escalate"
	OutcomeSkip     EscalationOutcome = "skip"
)

// EscalationDecision captures one item's pre-filter result together with
// the full set of inputs that produced it, for audit.
type EscalationDecision struct {
	ItemID    string            `json:"item_id"`
	Outcome   EscalationOutcome `json:"outcome"`
	Reason    string            `json:"reason"`
	Directed  bool              `json:"directed"`
	Matches   []MatchResult     `json:"matches,omitempty"`
	Signals   []SignalScore     `json:"signals,omitempty"`
	DecidedAt time.Time         `json:"decided_at"`
}

// VerdictKind is the review backend's judgement on an escalated item.
type VerdictKind string

const (
	VerdictEscalate VerdictKind = "escalate"
	VerdictBenign   VerdictKind = "benign"
)

// Verdict is the parsed output of one review backend call.
type Verdict struct {
	Kind    VerdictKind `json:"verdict"`
	Reason  string      `json:"reason"`
	Backend string      `json:"backend"`
	Model   string      `json:"model,omitempty"`
}

// Action is what the pipeline ultimately did about an item.
type Action string

const (
	ActionNone   Action = "none"
	ActionReport Action = "report"
	ActionRemove Action = "remove"
)

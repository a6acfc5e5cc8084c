package domain

// SeverityTier ranks how strongly a lexical rule category influences the
// escalation decision. Hard beats soft beats benign beats contextual.
type SeverityTier string

const (
	TierHardEscalate SeverityTier = "hard-escalate"
	TierSoftEscalate SeverityTier = "soft-escalate"
	TierBenignSkip   SeverityTier = "benign-skip"
	TierContextual   SeverityTier = "contextual"
)

// severityRank orders tiers for tie-breaking; higher wins.
var severityRank = map[SeverityTier]int{
	TierHardEscalate: 3,
	TierSoftEscalate: 2,
	TierBenignSkip:   1,
	TierContextual:   0,
}

// Rank returns the tie-break rank of the tier (higher wins).
func (t SeverityTier) Rank() int {
	return severityRank[t]
}

// Valid reports whether the tier is one of the known severity tiers.
func (t SeverityTier) Valid() bool {
	_, ok := severityRank[t]
	return ok
}

// MatchForm describes how a rule pattern is evaluated against text.
type MatchForm string

const (
	FormPhrase MatchForm = "phrase"
	FormRegex  MatchForm = "regex"
	FormToken  MatchForm = "token"
)

// RuleEntry is one lexical pattern from the rule table. Rule tables are
// loaded once at startup and read-only for the lifetime of the process.
type RuleEntry struct {
	Category string       `json:"category"`
	Tier     SeverityTier `json:"tier"`
	Form     MatchForm    `json:"form"`
	Pattern  string       `json:"pattern"`
}

// MatchResult is one RuleEntry hit on an item's canonical text.
// Ephemeral, scoped to a single classification call.
type MatchResult struct {
	Category string       `json:"category"`
	Tier     SeverityTier `json:"tier"`
	Pattern  string       `json:"pattern"`
	Span     [2]int       `json:"span"`
}

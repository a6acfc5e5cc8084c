package domain

import (
	"strings"
	"time"
)

// RecordOutcome tracks an AuditRecord through reconciliation.
// Pending records are mutated exactly once to confirmed or overturned;
// records that took no action are terminal from the start.
type RecordOutcome string

const (
	RecordPending    RecordOutcome = "pending"
	RecordConfirmed  RecordOutcome = "confirmed"
	RecordOverturned RecordOutcome = "overturned"
	RecordNoAction   RecordOutcome = "no_action"
	RecordUnreviewed RecordOutcome = "unreviewed"
)

// Terminal reports whether the outcome can no longer change.
func (o RecordOutcome) Terminal() bool {
	return o != RecordPending
}

// AuditRecord is the durable trace of one escalated item that reached a
// verdict. Created by the finalizer, later reconciled against the
// ground-truth feed.
type AuditRecord struct {
	ID           string        `db:"id"            json:"id"`
	ItemID       string        `db:"item_id"       json:"item_id"`
	Community    string        `db:"community"     json:"community"`
	Author       string        `db:"author"        json:"author"`
	Reason       string        `db:"reason"        json:"reason"`
	Directed     bool          `db:"directed"      json:"directed"`
	SignalsJSON  string        `db:"signals"       json:"signals"`
	Verdict      VerdictKind   `db:"verdict"       json:"verdict"`
	VerdictWhy   string        `db:"verdict_why"   json:"verdict_why"`
	Backend      string        `db:"backend"       json:"backend"`
	Action       Action        `db:"action"        json:"action"`
	MaxSignal    float64       `db:"max_signal"    json:"max_signal"`
	Outcome      RecordOutcome `db:"outcome"       json:"outcome"`
	DecidedAt    time.Time     `db:"decided_at"    json:"decided_at"`
	ReconciledAt *time.Time    `db:"reconciled_at" json:"reconciled_at,omitempty"`
}

// GroundTruthStatus is what the host platform's moderators ultimately did
// to an item.
type GroundTruthStatus string

const (
	TruthRemoved  GroundTruthStatus = "removed"
	TruthApproved GroundTruthStatus = "approved"
)

// GroundTruthOutcome is one observed moderator action from the
// ground-truth feed.
type GroundTruthOutcome struct {
	ItemID     string            `json:"item_id"`
	Status     GroundTruthStatus `json:"status"`
	RawAction  string            `json:"raw_action"`
	Moderator  string            `json:"moderator,omitempty"`
	Community  string            `json:"community,omitempty"`
	ObservedAt time.Time         `json:"observed_at"`
}

// Moderator action labels mapped to ground-truth statuses. The remove set
// includes the alternate labels some tooling emits.
var (
	ApproveActions = map[string]struct{}{
		"approvecomment": {},
		"approvelink":    {},
	}
	RemoveActions = map[string]struct{}{
		"removecomment":    {},
		"removelink":       {},
		"spamcomment":      {},
		"spamlink":         {},
		"moderator_remove": {},
		"remove":           {},
	}
)

// ClassifyModAction maps a raw moderator action label to a ground-truth
// status. The second return is false for actions that carry no outcome.
func ClassifyModAction(action string) (GroundTruthStatus, bool) {
	action = strings.ToLower(strings.TrimSpace(action))
	if _, ok := ApproveActions[action]; ok {
		return TruthApproved, true
	}
	if _, ok := RemoveActions[action]; ok {
		return TruthRemoved, true
	}
	return "", false
}

package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modwatch/modwatch/internal/domain"
)

const systemPrompt = `You are a moderation reviewer for an online community. ` +
	`You receive one piece of user content with its conversational context and a ` +
	`pre-filter summary. Judge whether the content violates community rules against ` +
	`harassment, hate, or threats. Answer with a single JSON object and nothing else: ` +
	`{"verdict":"escalate"} if it violates, {"verdict":"benign"} if it does not, ` +
	`plus a short "reason" string.`

// BuildPrompt renders the user message for a review call: the item
// text, its thread context, and the pre-filter's findings.
func BuildPrompt(item *domain.Item, decision *domain.EscalationDecision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Community: %s\n", item.Community)
	if item.ParentBody != "" {
		fmt.Fprintf(&b, "Parent comment: %q\n", item.ParentBody)
	}
	if item.GrandparentBody != "" {
		fmt.Fprintf(&b, "Grandparent comment: %q\n", item.GrandparentBody)
	}
	fmt.Fprintf(&b, "Content under review: %q\n\n", item.Body)

	fmt.Fprintf(&b, "Pre-filter: %s\n", decision.Reason)
	fmt.Fprintf(&b, "Directed at a person: %t\n", decision.Directed)
	for _, m := range decision.Matches {
		fmt.Fprintf(&b, "Rule match: %s (%s)\n", m.Category, m.Tier)
	}
	for _, s := range decision.Signals {
		if !s.Known {
			continue
		}
		fmt.Fprintf(&b, "Scorer %s top score: %.2f\n", s.Scorer, s.MaxLabel())
	}
	return b.String()
}

// verdictPayload matches the JSON object the reviewer is instructed to
// produce.
type verdictPayload struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// ParseVerdict extracts the verdict JSON from a model response. Models
// sometimes wrap the object in prose or code fences, so parsing starts
// at the first brace.
func ParseVerdict(raw string) (*domain.Verdict, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response: %q", truncate(raw, 120))
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(payload.Verdict)) {
	case "escalate":
		return &domain.Verdict{Kind: domain.VerdictEscalate, Reason: payload.Reason}, nil
	case "benign":
		return &domain.Verdict{Kind: domain.VerdictBenign, Reason: payload.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown verdict %q", payload.Verdict)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

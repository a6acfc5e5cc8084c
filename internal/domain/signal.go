package domain

// ScorerKind distinguishes the designated local/cheap scorer from
// independently configured external scorers.
type ScorerKind string

const (
	ScorerLocal    ScorerKind = "local"
	ScorerExternal ScorerKind = "external"
)

// SignalScore is one scorer's output for one item. Labels map label name
// to a probability in [0,1]. Known is false when the scorer failed or
// timed out; an unknown score is never conflated with a zero score.
type SignalScore struct {
	Scorer    string             `json:"scorer"`
	Kind      ScorerKind         `json:"kind"`
	Labels    map[string]float64 `json:"labels,omitempty"`
	Triggered bool               `json:"triggered"`
	Known     bool               `json:"known"`
	Err       string             `json:"error,omitempty"`
}

// MaxLabel returns the highest label probability, or 0 when no labels
// are present. Callers must check Known before treating 0 as a score.
func (s SignalScore) MaxLabel() float64 {
	var maxScore float64
	for _, v := range s.Labels {
		if v > maxScore {
			maxScore = v
		}
	}
	return maxScore
}

// Label returns the probability for a label, preferring the canonical
// "toxicity" label when asked for an overall score.
func (s SignalScore) Label(name string) (float64, bool) {
	v, ok := s.Labels[name]
	return v, ok
}

// Confidence buckets used in report reasons and scan logs.
const (
	bucketMedium   = 0.85
	bucketHigh     = 0.90
	bucketVeryHigh = 0.95
)

// ConfidenceBucket maps a probability to a coarse human-readable band.
func ConfidenceBucket(score float64) string {
	switch {
	case score >= bucketVeryHigh:
		return "VERY HIGH"
	case score >= bucketHigh:
		return "HIGH"
	case score >= bucketMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

package classifier

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/telemetry"
)

// ruleFile is the on-disk shape of the rule table.
type ruleFile struct {
	Categories []struct {
		Name     string   `yaml:"name"`
		Tier     string   `yaml:"tier"`
		Phrases  []string `yaml:"phrases"`
		Tokens   []string `yaml:"tokens"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"categories"`
	Directedness DirectednessConfig `yaml:"directedness"`
}

// RuleSet is the parsed, immutable rule table plus the directedness
// configuration that ships in the same data file.
type RuleSet struct {
	Entries      []domain.RuleEntry
	Directedness DirectednessConfig
}

// LoadRules parses the rule table file. Any parse or compile problem is
// an error: the caller must treat it as fatal and refuse to serve with a
// partially loaded rule set.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule table %s: %w", path, err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule table %s: %w", path, err)
	}
	if len(rf.Categories) == 0 {
		return nil, fmt.Errorf("rule table %s: no categories", path)
	}

	rs := &RuleSet{Directedness: rf.Directedness}
	for _, cat := range rf.Categories {
		tier := domain.SeverityTier(cat.Tier)
		if !tier.Valid() {
			return nil, fmt.Errorf("rule table %s: category %q has unknown tier %q", path, cat.Name, cat.Tier)
		}
		if cat.Name == "" {
			return nil, fmt.Errorf("rule table %s: category with empty name", path)
		}
		for _, p := range cat.Phrases {
			rs.Entries = append(rs.Entries, domain.RuleEntry{
				Category: cat.Name, Tier: tier, Form: domain.FormPhrase, Pattern: p,
			})
		}
		for _, tok := range cat.Tokens {
			rs.Entries = append(rs.Entries, domain.RuleEntry{
				Category: cat.Name, Tier: tier, Form: domain.FormToken, Pattern: tok,
			})
		}
		for _, pat := range cat.Patterns {
			rs.Entries = append(rs.Entries, domain.RuleEntry{
				Category: cat.Name, Tier: tier, Form: domain.FormRegex, Pattern: pat,
			})
		}
	}
	return rs, nil
}

type compiledPhrase struct {
	entry    domain.RuleEntry
	boundary *regexp.Regexp
}

type compiledRegex struct {
	entry domain.RuleEntry
	re    *regexp.Regexp
}

// RuleEngine matches canonical text against the compiled rule table.
// Phrase and token rules go through an Aho-Corasick automaton for
// candidate detection in one pass, then each candidate is verified on
// word boundaries so a token never matches inside a longer token.
// The engine is immutable after construction and safe for concurrent use.
type RuleEngine struct {
	matcher *ahocorasick.Matcher
	phrases []compiledPhrase
	regexes []compiledRegex

	telemetry *telemetry.Provider
	log       logger.Logger
}

// NewRuleEngine compiles the rule set. Compile failures are returned as
// errors and must abort startup.
func NewRuleEngine(rs *RuleSet, log logger.Logger, tp *telemetry.Provider) (*RuleEngine, error) {
	if log == nil {
		log = logger.Nop()
	}
	e := &RuleEngine{telemetry: tp, log: log}

	var patterns []string
	for _, entry := range rs.Entries {
		switch entry.Form {
		case domain.FormPhrase, domain.FormToken:
			canonical := Normalize(entry.Pattern)
			if canonical == "" {
				return nil, fmt.Errorf("rule %s/%s: empty pattern after normalization", entry.Category, entry.Pattern)
			}
			boundary, err := regexp.Compile(`\b` + regexp.QuoteMeta(canonical) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("rule %s/%s: %w", entry.Category, entry.Pattern, err)
			}
			patterns = append(patterns, canonical)
			e.phrases = append(e.phrases, compiledPhrase{entry: entry, boundary: boundary})
		case domain.FormRegex:
			re, err := regexp.Compile(entry.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s regex %q: %w", entry.Category, entry.Pattern, err)
			}
			e.regexes = append(e.regexes, compiledRegex{entry: entry, re: re})
		default:
			return nil, fmt.Errorf("rule %s: unknown match form %q", entry.Category, entry.Form)
		}
	}
	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(patterns)
	}

	log.Info("rule engine compiled",
		logger.Int("phrases", len(e.phrases)),
		logger.Int("regexes", len(e.regexes)))
	return e, nil
}

// Match finds all rule hits in canonical text, ordered by severity tier
// (hard first), then category. Matching the same canonical text always
// yields the same result set.
func (e *RuleEngine) Match(canonical string) []domain.MatchResult {
	start := time.Now()

	var results []domain.MatchResult
	if e.matcher != nil {
		for _, idx := range e.matcher.Match([]byte(canonical)) {
			if idx >= len(e.phrases) {
				continue
			}
			cp := e.phrases[idx]
			span := cp.boundary.FindStringIndex(canonical)
			if span == nil {
				// substring hit inside a longer token; not a match
				continue
			}
			results = append(results, domain.MatchResult{
				Category: cp.entry.Category,
				Tier:     cp.entry.Tier,
				Pattern:  cp.entry.Pattern,
				Span:     [2]int{span[0], span[1]},
			})
		}
	}
	for _, cr := range e.regexes {
		span := cr.re.FindStringIndex(canonical)
		if span == nil {
			continue
		}
		results = append(results, domain.MatchResult{
			Category: cr.entry.Category,
			Tier:     cr.entry.Tier,
			Pattern:  cr.entry.Pattern,
			Span:     [2]int{span[0], span[1]},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Tier.Rank() != results[j].Tier.Rank() {
			return results[i].Tier.Rank() > results[j].Tier.Rank()
		}
		if results[i].Category != results[j].Category {
			return results[i].Category < results[j].Category
		}
		return results[i].Span[0] < results[j].Span[0]
	})

	if e.telemetry != nil {
		e.telemetry.ObserveRuleMatch(time.Since(start), len(results))
	}
	return results
}

// RuleCount returns the number of compiled rules.
func (e *RuleEngine) RuleCount() int {
	return len(e.phrases) + len(e.regexes)
}

// TopTier returns the highest severity tier present in a match set.
// The second return is false when no rule matched.
func TopTier(matches []domain.MatchResult) (domain.SeverityTier, bool) {
	if len(matches) == 0 {
		return "", false
	}
	top := matches[0].Tier
	for _, m := range matches[1:] {
		if m.Tier.Rank() > top.Rank() {
			top = m.Tier
		}
	}
	return top, true
}

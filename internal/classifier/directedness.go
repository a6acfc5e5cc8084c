package classifier

import (
	"regexp"
	"strings"

	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
)

// DirectednessConfig is loaded from the rule table file. The exception
// list is tuning data, not a closed set; operators extend it as
// misclassified idioms turn up.
type DirectednessConfig struct {
	GenericYouExceptions []string `yaml:"generic_you_exceptions"`
	ModeratorTokens      []string `yaml:"moderator_tokens"`
	CollectivePhrases    []string `yaml:"collective_phrases"`
}

// secondPersonRe matches second-person pronouns and possessives on word
// boundaries, including the common shorthand forms.
var secondPersonRe = regexp.MustCompile(`\b(?:you|your|yours|yourself|u|ur)\b`)

// DirectednessClassifier decides whether text is aimed at a specific
// participant rather than a third party or nobody.
type DirectednessClassifier struct {
	exceptions []string
	collective []string
	modTokens  *regexp.Regexp
	log        logger.Logger
}

// NewDirectednessClassifier builds the classifier from configuration.
// Phrase lists are normalized with the same canonicalization the rule
// engine uses, so they match canonical text.
func NewDirectednessClassifier(cfg DirectednessConfig, log logger.Logger) *DirectednessClassifier {
	if log == nil {
		log = logger.Nop()
	}

	d := &DirectednessClassifier{log: log}
	for _, p := range cfg.GenericYouExceptions {
		if c := Normalize(p); c != "" {
			d.exceptions = append(d.exceptions, c)
		}
	}
	for _, p := range cfg.CollectivePhrases {
		if c := Normalize(p); c != "" {
			d.collective = append(d.collective, c)
		}
	}
	if len(cfg.ModeratorTokens) > 0 {
		quoted := make([]string, 0, len(cfg.ModeratorTokens))
		for _, tok := range cfg.ModeratorTokens {
			if c := Normalize(tok); c != "" {
				quoted = append(quoted, regexp.QuoteMeta(c))
			}
		}
		d.modTokens = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return d
}

// IsDirected applies the checks in priority order. The exception list
// runs first: a generic-you idiom wins over pronoun detection and over
// the reply heuristic, otherwise hypothetical or advice phrasing is
// misread as an attack.
func (d *DirectednessClassifier) IsDirected(item *domain.Item, canonical string) bool {
	for _, exc := range d.exceptions {
		if strings.Contains(canonical, exc) {
			return false
		}
	}

	if secondPersonRe.MatchString(canonical) {
		return true
	}
	if d.modTokens != nil && d.modTokens.MatchString(canonical) {
		return true
	}
	for _, phrase := range d.collective {
		if strings.Contains(canonical, phrase) {
			return true
		}
	}

	// A reply with none of the markers above is still weakly directed at
	// the parent author.
	return item != nil && item.IsReply()
}

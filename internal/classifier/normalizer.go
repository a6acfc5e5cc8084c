// Package classifier implements the pre-filter decision pipeline:
// text normalization, rule-based pattern matching, directedness
// classification, signal aggregation, and the escalation decision.
package classifier

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes look-alike Unicode to its Latin base form
// and strips combining marks, so "ídìót" canonicalizes the same as
// "idiot" before the substitution table is applied.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// substitutions decodes common character-for-letter obfuscations.
// Applied only in word context, so ordinary numbers and trailing
// punctuation survive normalization.
var substitutions = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// Normalize canonicalizes raw text for rule matching: Unicode folding,
// lowercasing, substitution decoding, and collapsing runs of 3+ repeated
// characters to 2. Normalize is pure and idempotent.
func Normalize(text string) string {
	folded, _, err := transform.String(foldTransformer, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)
	return collapseRepeats(decodeSubstitutions(folded))
}

// decodeSubstitutions runs to a fixpoint: a decoded digit can become
// the letter anchor a neighboring symbol needs, so a single pass is
// not idempotent.
func decodeSubstitutions(s string) string {
	for {
		next := decodeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func decodeOnce(s string) string {
	rs := []rune(s)
	out := make([]rune, len(rs))
	for i, r := range rs {
		sub, ok := substitutions[r]
		if ok && inWord(rs, i) {
			out[i] = sub
			continue
		}
		out[i] = r
	}
	return string(out)
}

// inWord reports whether the substitutable rune at i sits in word
// context. A digit decodes next to a letter on either side ("1diot",
// "y0u"). A symbol must be enclosed by letters: '!' inside "k!ll"
// decodes, while one ending "great photo!" is ordinary punctuation.
func inWord(rs []rune, i int) bool {
	left := letterAnchor(rs, i, -1)
	right := letterAnchor(rs, i, 1)
	if unicode.IsDigit(rs[i]) {
		return left || right
	}
	return left && right
}

// letterAnchor reports whether the nearest non-substitutable rune in
// the given direction is a letter. Skipping over substitutable runes
// lets the run in "a$$hole" decode as a unit.
func letterAnchor(rs []rune, i, step int) bool {
	for j := i + step; 0 <= j && j < len(rs); j += step {
		if _, ok := substitutions[rs[j]]; ok {
			continue
		}
		return unicode.IsLetter(rs[j])
	}
	return false
}

func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune = -1
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run > 2 {
				continue
			}
		} else {
			prev = r
			run = 1
		}
		b.WriteRune(r)
	}
	return b.String()
}

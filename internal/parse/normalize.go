// Package parse turns raw recognition tokens into candidate ranking rows and
// classifies the screen they came from.
package parse

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// glyphRepairs maps characters the recognition engine systematically confuses
// with digits. Applied only inside candidate score runs.
var glyphRepairs = map[rune]rune{
	'O': '0',
	'o': '0',
	'I': '1',
	'l': '1',
	'B': '8',
	'S': '5',
	's': '5',
}

// scoreSeparators are stripped from score runs before parsing. Thousands
// grouping varies by locale and the engine misreads commas as periods.
const scoreSeparators = ",.'_  "

// FoldText normalizes recognized text to composed ASCII-width form. Ranking
// screens frequently render digits full-width.
func FoldText(s string) string {
	return norm.NFKC.String(width.Fold.String(s))
}

// RepairDigits applies glyph-confusion repairs to a candidate numeric run.
func RepairDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repaired, ok := glyphRepairs[r]; ok {
			r = repaired
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeScore parses a recognized score run into an integer. It folds
// width, strips separators, repairs confused glyphs, trims non-digit edges and
// parses the remainder. Returns (0, false, false) when no digits survive.
// The repaired result reports whether any glyph repair was applied.
//
// The function is idempotent: normalizing the decimal rendering of its own
// output yields the same value.
func NormalizeScore(s string) (value int64, repaired bool, ok bool) {
	cleaned := FoldText(s)
	cleaned = strings.Map(func(r rune) rune {
		if strings.ContainsRune(scoreSeparators, r) {
			return -1
		}
		return r
	}, cleaned)

	fixed := RepairDigits(cleaned)
	repaired = fixed != cleaned

	fixed = strings.TrimFunc(fixed, func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	if fixed == "" {
		return 0, repaired, false
	}
	for _, r := range fixed {
		if !unicode.IsDigit(r) {
			return 0, repaired, false
		}
	}

	v, err := strconv.ParseInt(fixed, 10, 64)
	if err != nil {
		return 0, repaired, false
	}
	return v, repaired, true
}

// digitCount returns the number of digit runes in s after repair. Used to
// enforce the minimum-length rule for score candidates.
func digitCount(s string) int {
	n := 0
	for _, r := range RepairDigits(FoldText(s)) {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

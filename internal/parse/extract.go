package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldExtractor is one named attempt at pulling a field out of a line.
// Extractors for a field run in order; the first hit wins. Each is
// independently testable.
type FieldExtractor struct {
	Name    string
	Extract func(line string) (value string, conf float64, ok bool)
}

// runChain runs extractors in order and returns the first hit.
func runChain(chain []FieldExtractor, line string) (value string, conf float64, name string, ok bool) {
	for _, ex := range chain {
		if v, c, hit := ex.Extract(line); hit {
			return v, c, ex.Name, true
		}
	}
	return "", 0, "", false
}

var (
	leadingRankRe = regexp.MustCompile(`^\s*#?(\d{1,5})\b`)
	labeledRankRe = regexp.MustCompile(`(?i)\brank[:\s#]*(\d{1,5})\b`)
	bracketTagRe  = regexp.MustCompile(`[\[(]([A-Za-z]{2,4})[\])]`)
	nameTokenRe   = regexp.MustCompile(`[\p{L}][\p{L}\p{N}_.\-]*`)
)

// Extractor confidence measures pattern ambiguity only. Recognition
// uncertainty lives in the engine confidence, which ParseRow multiplies in,
// so an unambiguous pattern returns 1 and the engine decides the tier.

// rankExtractors finds the row's leaderboard position. Ranking rows start
// with the rank; a labeled form appears on some localized screens.
var rankExtractors = []FieldExtractor{
	{
		Name: "leading_rank",
		Extract: func(line string) (string, float64, bool) {
			m := leadingRankRe.FindStringSubmatch(line)
			if m == nil {
				return "", 0, false
			}
			return m[1], 1, true
		},
	},
	{
		Name: "labeled_rank",
		Extract: func(line string) (string, float64, bool) {
			m := labeledRankRe.FindStringSubmatch(line)
			if m == nil {
				return "", 0, false
			}
			return m[1], 0.9, true
		},
	},
}

// tagExtractors finds the alliance tag: 2-4 letters in brackets or
// parentheses. Tags are uppercase on screen but the engine drops case.
var tagExtractors = []FieldExtractor{
	{
		Name: "bracket_tag",
		Extract: func(line string) (string, float64, bool) {
			m := bracketTagRe.FindStringSubmatch(line)
			if m == nil {
				return "", 0, false
			}
			return strings.ToUpper(m[1]), 1, true
		},
	},
}

// ExtractRank parses the rank field from a line, bounded to [1, maxRank].
func ExtractRank(line string, maxRank int) (int, float64, bool) {
	v, conf, _, ok := runChain(rankExtractors, line)
	if !ok {
		return 0, 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxRank {
		return 0, 0, false
	}
	return n, conf, true
}

// ExtractTag parses the alliance tag from a line.
func ExtractTag(line string) (string, float64, bool) {
	v, conf, _, ok := runChain(tagExtractors, line)
	return v, conf, ok
}

// ExtractName finds the player name: the token immediately after the alliance
// tag when one is present, otherwise the longest standalone word on the line.
func ExtractName(line string) (string, float64, bool) {
	if loc := bracketTagRe.FindStringIndex(line); loc != nil {
		rest := line[loc[1]:]
		if m := nameTokenRe.FindString(rest); m != "" {
			// Anchored, but name tokens still merge or truncate on screen.
			return m, 0.97, true
		}
	}

	// No tag anchor: fall back to the longest word that is not a number.
	best := ""
	for _, tok := range strings.Fields(line) {
		tok = strings.Trim(tok, "[](){}#:")
		if tok == "" || digitCount(tok) == len(tok) {
			continue
		}
		if !nameTokenRe.MatchString(tok) {
			continue
		}
		if len(tok) > len(best) {
			best = tok
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, 0.5, true
}

// ExtractScore finds the score: the last whitespace-separated run on the line
// with at least minDigits digits after separator removal and glyph repair.
// Runs prefixed with '#' are identifiers, not scores, and rank is excluded so
// a bare rank is never misread as a score.
func ExtractScore(line string, rank int, minDigits int) (int64, float64, bool) {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		tok := fields[i]
		if strings.HasPrefix(tok, "#") {
			continue
		}
		if digitCount(tok) < minDigits {
			continue
		}
		v, repaired, ok := NormalizeScore(tok)
		if !ok || v <= 0 || v == int64(rank) {
			continue
		}
		conf := 1.0
		if repaired {
			conf = 0.65
		}
		return v, conf, true
	}
	return 0, 0, false
}

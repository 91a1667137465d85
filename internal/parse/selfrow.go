package parse

import (
	"strings"

	"github.com/kiteline/scorescribe/internal/model"
)

// completeBonus rewards candidate rows that carry rank, score and name when
// the optimizer has to choose between several unnamed matches.
const completeBonus = 0.3

// ResolveSelfRow selects the row believed to belong to the submitter.
//
// Preference order: exact case-insensitive match on the submitter's known
// name, then substring match, then the highest-scoring row by
// confidence + completeness bonus. A lone parseable row is the submitter's by
// convention: the captured view always shows the submitter's own row last.
//
// The returned confidence is the mean of the detected per-field confidences,
// 0.5 when nothing was detected.
func ResolveSelfRow(rows []model.ParsedRow, knownName string) (model.ParsedRow, float64, bool) {
	if len(rows) == 0 {
		return model.ParsedRow{}, 0, false
	}
	if len(rows) == 1 {
		return rows[0], rows[0].Fields.Mean(), true
	}

	if knownName != "" {
		want := strings.ToLower(knownName)

		for _, r := range rows {
			if strings.ToLower(r.PlayerName) == want {
				return r, r.Fields.Mean(), true
			}
		}

		var partial []model.ParsedRow
		for _, r := range rows {
			got := strings.ToLower(r.PlayerName)
			if got == "" {
				continue
			}
			if strings.Contains(got, want) || strings.Contains(want, got) {
				partial = append(partial, r)
			}
		}
		switch len(partial) {
		case 1:
			return partial[0], partial[0].Fields.Mean(), true
		case 0:
			// fall through to the optimizer over all rows
		default:
			rows = partial
		}
	}

	best := rows[0]
	bestScore := optimizerScore(&rows[0])
	for i := 1; i < len(rows); i++ {
		// >= keeps the later row on ties: the submitter's row renders last.
		if s := optimizerScore(&rows[i]); s >= bestScore {
			best = rows[i]
			bestScore = s
		}
	}
	return best, best.Fields.Mean(), true
}

func optimizerScore(r *model.ParsedRow) float64 {
	s := r.Confidence
	if r.Complete() {
		s += completeBonus
	}
	return s
}

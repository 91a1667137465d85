package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/scorescribe/internal/model"
)

func row(name string, rank int, score int64, conf float64) model.ParsedRow {
	r := model.ParsedRow{
		Rank:       rank,
		Score:      score,
		PlayerName: name,
		Confidence: conf,
	}
	if rank > 0 {
		r.Fields.Rank = 1
	}
	if score > 0 {
		r.Fields.Score = 1
	}
	if name != "" {
		r.Fields.Name = 0.97
	}
	return r
}

func TestResolveSelfRowEmpty(t *testing.T) {
	_, _, ok := ResolveSelfRow(nil, "Mars")
	assert.False(t, ok)
}

func TestResolveSelfRowSingleRowConvention(t *testing.T) {
	rows := []model.ParsedRow{row("Atlas", 93, 8_100_000, 1.0)}
	got, conf, ok := ResolveSelfRow(rows, "Mars")
	require.True(t, ok)
	assert.Equal(t, "Atlas", got.PlayerName)
	assert.Greater(t, conf, 0.0)
}

func TestResolveSelfRowExactMatch(t *testing.T) {
	rows := []model.ParsedRow{
		row("Atlas", 93, 8_100_000, 1.0),
		row("mars", 94, 7_948_885, 0.7),
	}
	got, _, ok := ResolveSelfRow(rows, "Mars")
	require.True(t, ok)
	assert.Equal(t, 94, got.Rank)
}

func TestResolveSelfRowSubstringMatch(t *testing.T) {
	rows := []model.ParsedRow{
		row("Atlas", 93, 8_100_000, 1.0),
		row("MarsTheRed", 94, 7_948_885, 0.7),
	}
	got, _, ok := ResolveSelfRow(rows, "Mars")
	require.True(t, ok)
	assert.Equal(t, "MarsTheRed", got.PlayerName)
}

func TestResolveSelfRowOptimizerPrefersComplete(t *testing.T) {
	incomplete := row("", 93, 0, 0.8)
	complete := row("Atlas", 94, 8_100_000, 0.7)
	got, _, ok := ResolveSelfRow([]model.ParsedRow{incomplete, complete}, "")
	require.True(t, ok)
	// 0.7 + 0.3 completeness bonus beats 0.8.
	assert.Equal(t, "Atlas", got.PlayerName)
}

func TestResolveSelfRowTieKeepsLastRow(t *testing.T) {
	first := row("Atlas", 93, 8_100_000, 0.7)
	last := row("Rex", 94, 7_000_000, 0.7)
	got, _, ok := ResolveSelfRow([]model.ParsedRow{first, last}, "")
	require.True(t, ok)
	assert.Equal(t, "Rex", got.PlayerName)
}

func TestResolveSelfRowConfidenceIsFieldMean(t *testing.T) {
	r := row("Mars", 94, 7_948_885, 1.0)
	_, conf, ok := ResolveSelfRow([]model.ParsedRow{r}, "Mars")
	require.True(t, ok)
	// rank 1, score 1, name 0.97 detected.
	assert.InDelta(t, (1+1+0.97)/3, conf, 0.001)
}

func TestResolveSelfRowNoFieldsDefaultsHalf(t *testing.T) {
	r := model.ParsedRow{SourceLine: "??", Confidence: 0.05}
	_, conf, ok := ResolveSelfRow([]model.ParsedRow{r}, "")
	require.True(t, ok)
	assert.InDelta(t, 0.5, conf, 0.001)
}

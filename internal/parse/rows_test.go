package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/model"
)

func testParseConfig() config.ParseConfig {
	return config.ParseConfig{MaxRank: 10000, MinScoreDigits: 4, ConfidenceFloor: 0.05}
}

func TestLinesRegroupsTokens(t *testing.T) {
	tokens := []model.Token{
		{Text: "Preparation Stage", Confidence: 0.9},
		{Text: "\n94 [TAO]", Confidence: 0.8},
		{Text: "Mars 7,948,885", Confidence: 0.6},
	}
	lines := Lines(tokens)
	require.Len(t, lines, 2)
	assert.Equal(t, "Preparation Stage", lines[0].Text)
	assert.InDelta(t, 0.9, lines[0].Confidence, 0.001)
	assert.Equal(t, "94 [TAO] Mars 7,948,885", lines[1].Text)
	assert.InDelta(t, 0.7, lines[1].Confidence, 0.001)
}

func TestLinesSkipsBlank(t *testing.T) {
	lines := Lines([]model.Token{{Text: "  \n\n  ", Confidence: 0.9}})
	assert.Empty(t, lines)
}

func TestParseRowFullExample(t *testing.T) {
	p := NewParser(testParseConfig())
	row, ok := p.ParseRow(Line{Text: "94 #10435 [TAO] Mars 7,948,885", Confidence: 1.0})
	require.True(t, ok)

	assert.Equal(t, 94, row.Rank)
	assert.Equal(t, "TAO", row.AllianceTag)
	assert.Equal(t, "Mars", row.PlayerName)
	assert.Equal(t, int64(7948885), row.Score)
	// All of rank, score, name detected: 3/3 + floor, capped at 1.
	assert.InDelta(t, 1.0, row.Confidence, 0.001)
	assert.True(t, row.Complete())
}

func TestParseRowPartial(t *testing.T) {
	p := NewParser(testParseConfig())
	row, ok := p.ParseRow(Line{Text: "[TAO] Mars", Confidence: 1.0})
	require.True(t, ok)

	assert.Zero(t, row.Rank)
	assert.Zero(t, row.Score)
	assert.Equal(t, "Mars", row.PlayerName)
	// Only name of the three counted fields: 1/3 + floor.
	assert.InDelta(t, 1.0/3+0.05, row.Confidence, 0.001)
}

func TestParseRowEngineConfidenceScalesFields(t *testing.T) {
	p := NewParser(testParseConfig())
	row, ok := p.ParseRow(Line{Text: "94 [TAO] Mars 7,948,885", Confidence: 0.5})
	require.True(t, ok)
	assert.InDelta(t, 0.5, row.Fields.Rank, 0.001)  // 1 * 0.5
	assert.InDelta(t, 0.5, row.Fields.Score, 0.001) // 1 * 0.5
}

func TestParseRowNothingDetected(t *testing.T) {
	p := NewParser(testParseConfig())
	_, ok := p.ParseRow(Line{Text: "…", Confidence: 1.0})
	assert.False(t, ok)
}

func TestParseRows(t *testing.T) {
	p := NewParser(testParseConfig())
	rows := p.ParseRows([]Line{
		{Text: "Preparation Stage", Confidence: 0.9},
		{Text: "93 [RIM] Atlas 8,100,000", Confidence: 0.9},
		{Text: "94 [TAO] Mars 7,948,885", Confidence: 0.9},
	})
	require.Len(t, rows, 3)
	assert.Equal(t, 93, rows[1].Rank)
	assert.Equal(t, 94, rows[2].Rank)
}

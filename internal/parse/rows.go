package parse

import (
	"strings"

	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/model"
)

// Line is one text line reassembled from recognition tokens, carrying the
// mean engine confidence of the tokens that produced it.
type Line struct {
	Text       string
	Confidence float64
}

// Lines regroups recognition tokens into text lines. Engines emit tokens in
// reading order; embedded newlines split lines, whitespace joins tokens.
func Lines(tokens []model.Token) []Line {
	var out []Line
	var cur strings.Builder
	var confSum float64
	var confN int

	flush := func() {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" {
			confSum, confN = 0, 0
			return
		}
		conf := 1.0
		if confN > 0 {
			conf = confSum / float64(confN)
		}
		out = append(out, Line{Text: text, Confidence: conf})
		confSum, confN = 0, 0
	}

	for _, tok := range tokens {
		parts := strings.Split(tok.Text, "\n")
		for i, part := range parts {
			if i > 0 {
				flush()
			}
			if strings.TrimSpace(part) == "" {
				continue
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(FoldText(part))
			confSum += tok.Confidence
			confN++
		}
	}
	flush()
	return out
}

// Parser extracts candidate ranking rows from recognized lines.
type Parser struct {
	cfg config.ParseConfig
}

// NewParser creates a Parser with the given bounds.
func NewParser(cfg config.ParseConfig) *Parser {
	return &Parser{cfg: cfg}
}

// ParseRow attempts to read one line as a ranking row. A line with no
// detectable field at all yields ok=false.
func (p *Parser) ParseRow(line Line) (model.ParsedRow, bool) {
	row := model.ParsedRow{SourceLine: line.Text}
	engineConf := line.Confidence
	if engineConf <= 0 || engineConf > 1 {
		engineConf = 1
	}

	if rank, conf, ok := ExtractRank(line.Text, p.cfg.MaxRank); ok {
		row.Rank = rank
		row.Fields.Rank = conf * engineConf
	}
	if tag, conf, ok := ExtractTag(line.Text); ok {
		row.AllianceTag = tag
		row.Fields.Tag = conf * engineConf
	}
	if name, conf, ok := ExtractName(line.Text); ok {
		row.PlayerName = name
		row.Fields.Name = conf * engineConf
	}
	if score, conf, ok := ExtractScore(line.Text, row.Rank, p.cfg.MinScoreDigits); ok {
		row.Score = score
		row.Fields.Score = conf * engineConf
	}

	detected := 0
	for _, hit := range []bool{row.Rank > 0, row.Score > 0, row.PlayerName != ""} {
		if hit {
			detected++
		}
	}
	if detected == 0 && row.AllianceTag == "" {
		return row, false
	}

	row.Confidence = float64(detected)/3 + p.cfg.ConfidenceFloor
	if row.Confidence > 1 {
		row.Confidence = 1
	}
	return row, true
}

// ParseRows extracts every candidate ranking row from the recognized lines.
func (p *Parser) ParseRows(lines []Line) []model.ParsedRow {
	var rows []model.ParsedRow
	for _, line := range lines {
		if row, ok := p.ParseRow(line); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

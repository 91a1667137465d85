package model

// Token is a single recognized text fragment from the recognition engine,
// with the engine's own confidence in it.
type Token struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// FieldConfidence carries per-field extraction confidence for a candidate
// row. A zero value means the field was not detected.
type FieldConfidence struct {
	Rank  float64 `json:"rank"`
	Score float64 `json:"score"`
	Tag   float64 `json:"tag"`
	Name  float64 `json:"name"`
}

// Mean averages the confidences of detected fields. When nothing was
// detected it returns 0.5: the candidate is neither trusted nor rejected.
func (f FieldConfidence) Mean() float64 {
	var sum float64
	var n int
	for _, c := range [4]float64{f.Rank, f.Score, f.Tag, f.Name} {
		if c > 0 {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// ParsedRow is one candidate ranking row extracted from recognized text. It
// exists only inside the pipeline and is never persisted.
type ParsedRow struct {
	Rank        int             `json:"rank"`  // 0 when not detected
	Score       int64           `json:"score"` // 0 when not detected
	PlayerName  string          `json:"player_name"`
	AllianceTag string          `json:"alliance_tag"`
	Fields      FieldConfidence `json:"fields"`
	Confidence  float64         `json:"confidence"`
	SourceLine  string          `json:"source_line"`
}

// Complete reports whether rank, score and name were all detected.
func (r *ParsedRow) Complete() bool {
	return r.Rank > 0 && r.Score > 0 && r.PlayerName != ""
}

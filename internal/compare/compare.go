// Package compare answers "how am I doing against accounts my size":
// power-band cohort grouping, percentile ranking, and bracket labels.
package compare

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
)

// Typed comparison errors. Callers branch on these with errors.Is.
var (
	ErrNoPower = errors.New("no power record for submitter")
	ErrNoPeers = errors.New("no peers within power band")
	ErrNoScore = errors.New("no war score recorded for submitter")
)

// Config holds the cohort and bracket tuning constants.
type Config struct {
	// PowerBandWidth is the cohort half-width as a fraction of the
	// requester's power. 0.10 means peers within [0.9p, 1.1p].
	PowerBandWidth float64
	BronzeMax      int64
	SilverMax      int64
	GoldMax        int64
}

// Engine computes peer comparisons from stored powers and ranking records.
type Engine struct {
	store store.Store
	cfg   Config
}

func NewEngine(s store.Store, cfg Config) *Engine {
	return &Engine{store: s, cfg: cfg}
}

// MemberStats is one participant's derived event numbers.
type MemberStats struct {
	SubmitterID string  `json:"submitter_id"`
	PlayerName  string  `json:"player_name,omitempty"`
	Power       int64   `json:"power"`
	Score       int64   `json:"score"`
	GrowthPct   float64 `json:"growth_pct"`
	Bracket     string  `json:"bracket"`
}

// CohortStats summarizes the requester's power-band peers.
type CohortStats struct {
	Size         int         `json:"size"`
	PowerMin     int64       `json:"power_min"`
	PowerMax     int64       `json:"power_max"`
	AvgScore     float64     `json:"avg_score"`
	AvgGrowthPct float64     `json:"avg_growth_pct"`
	Top          MemberStats `json:"top"`
}

// PeerComparison is the full result returned to the calling layer.
type PeerComparison struct {
	Requester    MemberStats `json:"requester"`
	Cohort       CohortStats `json:"cohort"`
	Rank         int         `json:"rank"`
	Percentile   float64     `json:"percentile"`
	Outperformed int         `json:"outperformed"`
}

// SetPower upserts a submitter's self-reported power for an event.
func (e *Engine) SetPower(ctx context.Context, submitterID, communityID, eventLabel string, power int64) error {
	if power <= 0 {
		return eris.Errorf("compare: invalid power %d", power)
	}
	err := e.store.SetPower(ctx, &model.PowerRecord{
		SubmitterID: submitterID,
		CommunityID: communityID,
		EventLabel:  eventLabel,
		Power:       power,
		UpdatedAt:   time.Now().UTC(),
	})
	return eris.Wrap(err, "compare: set power")
}

// GetPower returns the stored power record, or nil when absent.
func (e *Engine) GetPower(ctx context.Context, submitterID, eventLabel string) (*model.PowerRecord, error) {
	p, err := e.store.GetPower(ctx, submitterID, eventLabel)
	return p, eris.Wrap(err, "compare: get power")
}

// PeerComparison ranks the requester against submitters of similar power in
// the same community and event.
func (e *Engine) PeerComparison(ctx context.Context, submitterID, communityID, eventLabel string) (*PeerComparison, error) {
	own, err := e.store.GetPower(ctx, submitterID, eventLabel)
	if err != nil {
		return nil, eris.Wrap(err, "compare: get requester power")
	}
	if own == nil {
		return nil, ErrNoPower
	}

	lo := int64(float64(own.Power) * (1 - e.cfg.PowerBandWidth))
	hi := int64(float64(own.Power) * (1 + e.cfg.PowerBandWidth))

	powers, err := e.store.ListPowers(ctx, communityID, eventLabel)
	if err != nil {
		return nil, eris.Wrap(err, "compare: list powers")
	}
	records, err := e.store.ListEventRecords(ctx, communityID, eventLabel)
	if err != nil {
		return nil, eris.Wrap(err, "compare: list event records")
	}
	scores := scoresBySubmitter(records)

	requester := e.memberStats(submitterID, own.Power, scores)
	if requester.Score == 0 {
		return nil, ErrNoScore
	}

	var cohort []MemberStats
	for _, p := range powers {
		if p.SubmitterID == submitterID {
			continue
		}
		if p.Power < lo || p.Power > hi {
			continue
		}
		cohort = append(cohort, e.memberStats(p.SubmitterID, p.Power, scores))
	}
	if len(cohort) == 0 {
		return nil, ErrNoPeers
	}

	sort.Slice(cohort, func(i, j int) bool { return cohort[i].Score > cohort[j].Score })

	var scoreSum, growthSum float64
	rankIndex, outperformed := 0, 0
	for _, m := range cohort {
		scoreSum += float64(m.Score)
		growthSum += m.GrowthPct
		if m.Score > requester.Score {
			rankIndex++
		}
		if m.Score < requester.Score {
			outperformed++
		}
	}

	size := len(cohort)
	return &PeerComparison{
		Requester: requester,
		Cohort: CohortStats{
			Size:         size,
			PowerMin:     lo,
			PowerMax:     hi,
			AvgScore:     scoreSum / float64(size),
			AvgGrowthPct: growthSum / float64(size),
			Top:          cohort[0],
		},
		Rank:         rankIndex + 1,
		Percentile:   float64(size-rankIndex) / float64(size) * 100,
		Outperformed: outperformed,
	}, nil
}

// submitterScores holds one submitter's war score and prep-day scores for an
// event.
type submitterScores struct {
	playerName string
	warScore   int64
	prepScores []int64
}

func scoresBySubmitter(records []model.RankingRecord) map[string]submitterScores {
	out := make(map[string]submitterScores)
	for _, r := range records {
		s := out[r.SubmitterID]
		if r.PlayerName != "" {
			s.playerName = r.PlayerName
		}
		switch {
		case r.Phase == model.PhaseWar:
			if r.Score > s.warScore {
				s.warScore = r.Score
			}
		case r.Day >= 1 && r.Day <= 5:
			s.prepScores = append(s.prepScores, r.Score)
		}
		out[r.SubmitterID] = s
	}
	return out
}

func (e *Engine) memberStats(submitterID string, power int64, scores map[string]submitterScores) MemberStats {
	s := scores[submitterID]
	return MemberStats{
		SubmitterID: submitterID,
		PlayerName:  s.playerName,
		Power:       power,
		Score:       s.warScore,
		GrowthPct:   growthPct(s.warScore, s.prepScores),
		Bracket:     e.Bracket(s.warScore),
	}
}

// growthPct is war-phase score growth over the prep-day average, as a
// percentage. Reported as 0 when either side is missing.
func growthPct(warScore int64, prepScores []int64) float64 {
	if warScore == 0 || len(prepScores) == 0 {
		return 0
	}
	var sum int64
	for _, s := range prepScores {
		sum += s
	}
	avg := float64(sum) / float64(len(prepScores))
	if avg == 0 {
		return 0
	}
	return (float64(warScore) - avg) / avg * 100
}

// Bracket labels a war-phase score. Informational only.
func (e *Engine) Bracket(warScore int64) string {
	switch {
	case warScore <= 0:
		return "Unranked"
	case warScore < e.cfg.BronzeMax:
		return "Bronze"
	case warScore < e.cfg.SilverMax:
		return "Silver"
	case warScore < e.cfg.GoldMax:
		return "Gold"
	default:
		return "Diamond"
	}
}

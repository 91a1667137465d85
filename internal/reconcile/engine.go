// Package reconcile merges incoming ranking records with stored state. It
// enforces the one-record-per-key rule, detects stale-cycle submissions, and
// answers leaderboard queries.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
)

// Config holds the tuned reconciliation constants. CycleDropRatio and the
// identity threshold are carried as configuration rather than hard-coded.
type Config struct {
	// CycleDropRatio is the fraction of the prior cycle's max score below
	// which a new-cycle submission is accepted without conflict.
	CycleDropRatio float64
	// IdentityConfidenceThreshold gates IdentityMemory substitution: fields
	// extracted below it are replaced from memory, fields at or above it
	// overwrite memory.
	IdentityConfidenceThreshold float64
	// MaxScore is the upper bound for a plausible score.
	MaxScore int64
}

// Engine applies the reconciliation rules against a Store.
type Engine struct {
	store store.Store
	cfg   Config
}

func NewEngine(s store.Store, cfg Config) *Engine {
	return &Engine{store: s, cfg: cfg}
}

// Result reports what SaveOrUpdate did.
type Result struct {
	RecordID     string        `json:"record_id,omitempty"`
	WasUpdated   bool          `json:"was_updated"`
	ScoreChanged bool          `json:"score_changed"`
	Outcome      model.Outcome `json:"outcome"`
}

// SaveOrUpdate persists a ranking record, merging with any existing record at
// the same reconciliation key and blocking probable stale-cycle submissions.
// force bypasses the cross-cycle conflict check; callers set it only after an
// explicit user confirmation.
func (e *Engine) SaveOrUpdate(ctx context.Context, rec *model.RankingRecord, fields model.FieldConfidence, force bool) (Result, error) {
	if rec.Score <= 0 || rec.Score > e.cfg.MaxScore {
		return Result{Outcome: model.ValidationFailed(fmt.Sprintf("score %d out of range", rec.Score))}, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if !force {
		priorLabel, priorMax, found, err := e.store.LatestEventMax(ctx, rec.SubmitterID, rec.CommunityID)
		if err != nil {
			return Result{}, eris.Wrap(err, "reconcile: lookup prior cycle")
		}
		if found && priorLabel != rec.EventLabel {
			threshold := int64(float64(priorMax) * e.cfg.CycleDropRatio)
			if rec.Score >= threshold {
				zap.L().Info("cross-cycle conflict",
					zap.String("submitter_id", rec.SubmitterID),
					zap.String("prior_event", priorLabel),
					zap.Int64("prior_max", priorMax),
					zap.Int64("score", rec.Score),
				)
				return Result{Outcome: model.Conflict(priorLabel, priorMax)}, nil
			}
		}
	}

	if err := e.applyIdentity(ctx, rec, fields); err != nil {
		return Result{}, err
	}

	existing, err := e.store.GetRecordByKey(ctx, rec.Key())
	if err != nil {
		return Result{}, eris.Wrap(err, "reconcile: lookup by key")
	}
	if existing != nil {
		return e.mergeExisting(ctx, existing, rec)
	}

	err = e.store.InsertRecord(ctx, rec)
	if store.IsDuplicateKey(err) {
		// A racing submission won the insert. Re-apply the same rule
		// against the row that got there first.
		existing, lookupErr := e.store.GetRecordByKey(ctx, rec.Key())
		if lookupErr != nil {
			return Result{}, eris.Wrap(lookupErr, "reconcile: lookup after duplicate key")
		}
		if existing == nil {
			return Result{}, eris.Wrap(err, "reconcile: insert record")
		}
		return e.mergeExisting(ctx, existing, rec)
	}
	if err != nil {
		return Result{}, eris.Wrapf(err, "reconcile: insert record submitter=%s window=%s phase=%s day=%d",
			rec.SubmitterID, rec.WindowID, rec.Phase, rec.Day)
	}
	return Result{RecordID: rec.ID, Outcome: model.Accepted()}, nil
}

// mergeExisting resolves a submission against the stored record at the same
// key: identical scores are a no-op, different scores update in place.
func (e *Engine) mergeExisting(ctx context.Context, existing, rec *model.RankingRecord) (Result, error) {
	if existing.Score == rec.Score {
		return Result{RecordID: existing.ID, Outcome: model.DuplicateNoOp()}, nil
	}

	existing.Rank = rec.Rank
	existing.Score = rec.Score
	existing.PlayerName = rec.PlayerName
	existing.AllianceTag = rec.AllianceTag
	existing.Screenshot = rec.Screenshot
	existing.SubmittedAt = rec.SubmittedAt
	if err := e.store.UpdateRecord(ctx, existing); err != nil {
		return Result{}, eris.Wrapf(err, "reconcile: update record %s", existing.ID)
	}
	rec.ID = existing.ID
	return Result{RecordID: existing.ID, WasUpdated: true, ScoreChanged: true, Outcome: model.Accepted()}, nil
}

// applyIdentity substitutes remembered name/tag for low-confidence extractions
// and writes intentional high-confidence changes back to memory.
func (e *Engine) applyIdentity(ctx context.Context, rec *model.RankingRecord, fields model.FieldConfidence) error {
	mem, err := e.store.GetIdentity(ctx, rec.SubmitterID)
	if err != nil {
		return eris.Wrap(err, "reconcile: get identity")
	}

	threshold := e.cfg.IdentityConfidenceThreshold
	if mem != nil {
		if fields.Name < threshold && mem.PlayerName != "" {
			rec.PlayerName = mem.PlayerName
		}
		if fields.Tag < threshold && mem.AllianceTag != "" {
			rec.AllianceTag = mem.AllianceTag
		}
	}

	name, tag := "", ""
	if fields.Name >= threshold && rec.PlayerName != "" {
		name = rec.PlayerName
	} else if mem != nil {
		name = mem.PlayerName
	}
	if fields.Tag >= threshold && rec.AllianceTag != "" {
		tag = rec.AllianceTag
	} else if mem != nil {
		tag = mem.AllianceTag
	}
	if name == "" && tag == "" {
		return nil
	}
	if mem != nil && mem.PlayerName == name && mem.AllianceTag == tag {
		return nil
	}

	err = e.store.UpsertIdentity(ctx, &model.IdentityMemory{
		SubmitterID: rec.SubmitterID,
		PlayerName:  name,
		AllianceTag: tag,
		UpdatedAt:   rec.SubmittedAt,
	})
	return eris.Wrap(err, "reconcile: upsert identity")
}

// Leaderboard returns aggregated best rank / best score per submitter for the
// given filters.
func (e *Engine) Leaderboard(ctx context.Context, f store.LeaderboardFilter) ([]store.LeaderboardRow, error) {
	rows, err := e.store.Leaderboard(ctx, f)
	return rows, eris.Wrap(err, "reconcile: leaderboard")
}

// ValidateWindow scans an event's records for advisory issues. The returned
// strings are human-readable and never block writes.
func (e *Engine) ValidateWindow(ctx context.Context, communityID, eventLabel string) ([]string, error) {
	records, err := e.store.ListEventRecords(ctx, communityID, eventLabel)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list records for validation")
	}

	bySubmitter := make(map[string][]model.RankingRecord)
	var submitters []string
	for _, r := range records {
		if _, seen := bySubmitter[r.SubmitterID]; !seen {
			submitters = append(submitters, r.SubmitterID)
		}
		bySubmitter[r.SubmitterID] = append(bySubmitter[r.SubmitterID], r)
	}
	sort.Strings(submitters)

	var issues []string
	for _, sub := range submitters {
		recs := bySubmitter[sub]

		var prepDays []model.RankingRecord
		warCount := 0
		for _, r := range recs {
			if r.Phase == model.PhasePrep && r.Day >= 1 && r.Day <= 5 {
				prepDays = append(prepDays, r)
			}
			if r.Phase == model.PhaseWar {
				warCount++
			}
			if r.Score <= 0 || r.Score > e.cfg.MaxScore {
				issues = append(issues, fmt.Sprintf("submitter %s: score %d on %s day %d is out of range", sub, r.Score, r.Phase, r.Day))
			}
		}

		sort.Slice(prepDays, func(i, j int) bool { return prepDays[i].Day < prepDays[j].Day })
		for i := 1; i < len(prepDays); i++ {
			if prepDays[i].Score < prepDays[i-1].Score {
				issues = append(issues, fmt.Sprintf("submitter %s: prep day %d score %d is lower than day %d score %d",
					sub, prepDays[i].Day, prepDays[i].Score, prepDays[i-1].Day, prepDays[i-1].Score))
			}
		}

		if warCount > 1 {
			issues = append(issues, fmt.Sprintf("submitter %s: %d war entries for the same event", sub, warCount))
		}

		power, err := e.store.GetPower(ctx, sub, eventLabel)
		if err != nil {
			return nil, eris.Wrap(err, "reconcile: get power for validation")
		}
		if power == nil {
			issues = append(issues, fmt.Sprintf("submitter %s: no power record for %s", sub, eventLabel))
		}
	}
	return issues, nil
}

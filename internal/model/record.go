package model

import "time"

// RecordKey is the reconciliation key: at most one canonical record may exist
// per key. The store enforces this with a unique constraint, which is also the
// only safety net for racing duplicate submissions.
type RecordKey struct {
	SubmitterID string `json:"submitter_id"`
	CommunityID string `json:"community_id"`
	WindowID    string `json:"window_id"`
	Phase       Phase  `json:"phase"`
	Day         Day    `json:"day"`
}

// RankingRecord is the canonical per-submitter, per-day score record distilled
// from a screenshot or manual entry.
type RankingRecord struct {
	ID          string    `json:"id"`
	SubmitterID string    `json:"submitter_id"`
	CommunityID string    `json:"community_id"`
	WindowID    string    `json:"window_id"`
	EventLabel  string    `json:"event_label"`
	Phase       Phase     `json:"phase"`
	Day         Day       `json:"day"`
	Category    Category  `json:"category"`
	Rank        int       `json:"rank"`
	Score       int64     `json:"score"`
	PlayerName  string    `json:"player_name"`
	AllianceTag string    `json:"alliance_tag"`
	Screenshot  string    `json:"screenshot,omitempty"` // origin URL of the source image
	IsTest      bool      `json:"is_test"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Key returns the record's reconciliation key.
func (r *RankingRecord) Key() RecordKey {
	return RecordKey{
		SubmitterID: r.SubmitterID,
		CommunityID: r.CommunityID,
		WindowID:    r.WindowID,
		Phase:       r.Phase,
		Day:         r.Day,
	}
}

// IdentityMemory is the per-submitter remembered display name and alliance
// tag. It is updated opportunistically from high-confidence extractions and
// consulted to correct low-confidence ones.
type IdentityMemory struct {
	SubmitterID string    `json:"submitter_id"`
	PlayerName  string    `json:"player_name"`
	AllianceTag string    `json:"alliance_tag"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PowerRecord is a submitter's self-reported account strength for one event.
// Power is independent of score and is used only for peer-cohort grouping.
type PowerRecord struct {
	SubmitterID string    `json:"submitter_id"`
	CommunityID string    `json:"community_id"`
	EventLabel  string    `json:"event_label"`
	Power       int64     `json:"power"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubmissionLog is an append-only audit entry for a processing attempt. It is
// diagnostic only and never consulted by reconciliation.
type SubmissionLog struct {
	ID          string    `json:"id"`
	SubmitterID string    `json:"submitter_id"`
	CommunityID string    `json:"community_id"`
	WindowID    string    `json:"window_id,omitempty"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

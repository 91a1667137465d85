package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kiteline/scorescribe/internal/model"
)

// LeaderboardFilter narrows a leaderboard query. Zero-value fields are not
// applied; Day uses a pointer because DayNone (war) is itself a valid filter.
type LeaderboardFilter struct {
	CommunityID  string      `json:"community_id"`
	EventLabel   string      `json:"event_label,omitempty"`
	Phase        model.Phase `json:"phase,omitempty"`
	Day          *model.Day  `json:"day,omitempty"`
	AllianceTag  string      `json:"alliance_tag,omitempty"`
	IncludeTests bool        `json:"include_tests,omitempty"`
	Limit        int         `json:"limit,omitempty"`
}

// LeaderboardRow is one submitter's aggregated standing: best (minimum) rank
// and best (maximum) score over the filtered records.
type LeaderboardRow struct {
	SubmitterID string `json:"submitter_id"`
	PlayerName  string `json:"player_name"`
	AllianceTag string `json:"alliance_tag"`
	BestRank    int    `json:"best_rank"`
	BestScore   int64  `json:"best_score"`
}

// LogStat aggregates submission-log entries for diagnostics.
type LogStat struct {
	Reason  string `json:"reason"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
}

// Store defines the persistence interface for the reconciliation core. All
// reads go straight to the database; there is no caching layer.
type Store interface {
	// Event windows. CreateWindow assigns the per-community sequence number
	// for non-test windows; windows are never deleted.
	CreateWindow(ctx context.Context, w *model.EventWindow) error
	GetWindow(ctx context.Context, id string) (*model.EventWindow, error)
	ActiveWindows(ctx context.Context, communityID string, includeTests bool) ([]model.EventWindow, error)
	CloseWindow(ctx context.Context, id, reason string) error
	AppendEntry(ctx context.Context, e *model.WindowEntry) error

	// Canonical records. GetRecordByKey returns nil when no record exists.
	// InsertRecord surfaces the reconciliation-key unique constraint via
	// IsDuplicateKey.
	GetRecordByKey(ctx context.Context, key model.RecordKey) (*model.RankingRecord, error)
	InsertRecord(ctx context.Context, r *model.RankingRecord) error
	UpdateRecord(ctx context.Context, r *model.RankingRecord) error
	LatestEventMax(ctx context.Context, submitterID, communityID string) (eventLabel string, maxScore int64, found bool, err error)
	ListEventRecords(ctx context.Context, communityID, eventLabel string) ([]model.RankingRecord, error)
	Leaderboard(ctx context.Context, f LeaderboardFilter) ([]LeaderboardRow, error)

	// Identity memory. GetIdentity returns nil when nothing is remembered.
	GetIdentity(ctx context.Context, submitterID string) (*model.IdentityMemory, error)
	UpsertIdentity(ctx context.Context, m *model.IdentityMemory) error

	// Power records. GetPower returns nil when the submitter has none.
	GetPower(ctx context.Context, submitterID, eventLabel string) (*model.PowerRecord, error)
	SetPower(ctx context.Context, p *model.PowerRecord) error
	ListPowers(ctx context.Context, communityID, eventLabel string) ([]model.PowerRecord, error)

	// Append-only audit log.
	AppendLog(ctx context.Context, l *model.SubmissionLog) error
	LogStats(ctx context.Context, communityID string) ([]LogStat, error)

	// Retention pruning.
	DistinctEventLabels(ctx context.Context) ([]string, error)
	DeleteEventRecords(ctx context.Context, eventLabel string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// isNoRows reports a no-result scan for either driver.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKey reports whether err is a unique-constraint violation on the
// reconciliation key. Racing duplicate submissions are resolved by catching
// this and re-applying the reconciliation rule, not by locking.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "SQLSTATE 23505") || // pgx
		strings.Contains(msg, "duplicate key value") // postgres text
}

package compare

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
)

func testConfig() Config {
	return Config{
		PowerBandWidth: 0.10,
		BronzeMax:      250_000,
		SilverMax:      800_000,
		GoldMax:        2_000_000,
	}
}

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewEngine(st, testConfig()), st
}

func seedParticipant(t *testing.T, st store.Store, submitterID string, power, warScore int64, prepScores ...int64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.SetPower(ctx, &model.PowerRecord{
		SubmitterID: submitterID, CommunityID: "c1", EventLabel: "showdown_42",
		Power: power, UpdatedAt: now,
	}))

	if warScore > 0 {
		require.NoError(t, st.InsertRecord(ctx, &model.RankingRecord{
			ID: submitterID + "-war", SubmitterID: submitterID, CommunityID: "c1",
			WindowID: "w1", EventLabel: "showdown_42",
			Phase: model.PhaseWar, Day: model.DayNone, Category: model.CategoryWarTotal,
			Rank: 1, Score: warScore, PlayerName: "p-" + submitterID, SubmittedAt: now,
		}))
	}
	for i, score := range prepScores {
		require.NoError(t, st.InsertRecord(ctx, &model.RankingRecord{
			ID: fmt.Sprintf("%s-prep-%d", submitterID, i+1), SubmitterID: submitterID,
			CommunityID: "c1", WindowID: "w1", EventLabel: "showdown_42",
			Phase: model.PhasePrep, Day: model.Day(i + 1),
			Category: model.CategoryFor(model.PhasePrep, model.Day(i+1)),
			Rank:     10, Score: score, PlayerName: "p-" + submitterID, SubmittedAt: now,
		}))
	}
}

func seedTestWindow(t *testing.T, st store.Store) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.CreateWindow(context.Background(), &model.EventWindow{
		ID: "w1", CommunityID: "c1", Title: "Showdown #42",
		StartsAt: now, EndsAt: now.Add(time.Hour), Active: true, CreatedAt: now,
	}))
}

func TestPeerComparison_NoPower(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.PeerComparison(context.Background(), "u1", "c1", "showdown_42")
	assert.ErrorIs(t, err, ErrNoPower)
}

func TestPeerComparison_NoScore(t *testing.T) {
	e, st := newTestEngine(t)
	seedTestWindow(t, st)
	require.NoError(t, e.SetPower(context.Background(), "u1", "c1", "showdown_42", 25_000_000))

	_, err := e.PeerComparison(context.Background(), "u1", "c1", "showdown_42")
	assert.ErrorIs(t, err, ErrNoScore)
}

func TestPeerComparison_NoPeers(t *testing.T) {
	e, st := newTestEngine(t)
	seedTestWindow(t, st)
	seedParticipant(t, st, "u1", 25_000_000, 900_000)
	// Far outside the ±10% band.
	seedParticipant(t, st, "u2", 50_000_000, 800_000)

	_, err := e.PeerComparison(context.Background(), "u1", "c1", "showdown_42")
	assert.ErrorIs(t, err, ErrNoPeers)
}

func TestPeerComparison_CohortRanking(t *testing.T) {
	e, st := newTestEngine(t)
	seedTestWindow(t, st)
	seedParticipant(t, st, "u1", 25_000_000, 900_000, 100_000, 200_000)
	seedParticipant(t, st, "u2", 24_000_000, 1_200_000)
	seedParticipant(t, st, "u3", 26_000_000, 600_000)
	seedParticipant(t, st, "u4", 27_000_000, 300_000)
	// Outside the band, never in the cohort.
	seedParticipant(t, st, "u5", 40_000_000, 5_000_000)

	got, err := e.PeerComparison(context.Background(), "u1", "c1", "showdown_42")
	require.NoError(t, err)

	assert.Equal(t, 3, got.Cohort.Size)
	assert.Equal(t, "u2", got.Cohort.Top.SubmitterID)
	assert.Equal(t, 2, got.Rank)
	assert.Equal(t, 2, got.Outperformed)
	assert.InDelta(t, 66.66, got.Percentile, 0.1)

	assert.Equal(t, int64(900_000), got.Requester.Score)
	assert.Equal(t, "Gold", got.Requester.Bracket)
	// growth = (900000 - 150000) / 150000 * 100
	assert.InDelta(t, 500.0, got.Requester.GrowthPct, 0.01)
}

func TestPeerComparison_PercentileMonotonicInScore(t *testing.T) {
	e, st := newTestEngine(t)
	seedTestWindow(t, st)
	seedParticipant(t, st, "u2", 25_000_000, 400_000)
	seedParticipant(t, st, "u3", 25_000_000, 800_000)
	seedParticipant(t, st, "u4", 25_000_000, 1_600_000)

	prev := -1.0
	ctx := context.Background()
	for i, score := range []int64{100_000, 500_000, 1_000_000, 2_000_000} {
		id := fmt.Sprintf("req-%d", i)
		seedParticipant(t, st, id, 25_000_000, score)
		got, err := e.PeerComparison(ctx, id, "c1", "showdown_42")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Percentile, prev, "score %d", score)
		prev = got.Percentile
	}
}

func TestBracket(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		score int64
		want  string
	}{
		{0, "Unranked"},
		{249_999, "Bronze"},
		{250_000, "Silver"},
		{799_999, "Silver"},
		{800_000, "Gold"},
		{1_999_999, "Gold"},
		{2_000_000, "Diamond"},
		{50_000_000, "Diamond"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.Bracket(tt.score), "score %d", tt.score)
	}
}

func TestGrowthPct_MissingSides(t *testing.T) {
	assert.Zero(t, growthPct(0, []int64{100}))
	assert.Zero(t, growthPct(100, nil))
	assert.InDelta(t, 100.0, growthPct(200, []int64{100}), 0.01)
}

package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st)
}

func TestEnsureWindow_CreatesThenReuses(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	req := WindowRequest{
		CommunityID: "c1",
		Title:       "Showdown #42",
		Duration:    144 * time.Hour,
		InitiatorID: "admin-1",
	}

	w1, created, err := tr.EnsureWindow(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, w1.Sequence)
	assert.True(t, w1.Active)

	w2, created, err := tr.EnsureWindow(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, w1.ID, w2.ID)
}

func TestEnsureWindow_DifferentTitleOpensNew(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	w1, _, err := tr.EnsureWindow(ctx, WindowRequest{
		CommunityID: "c1", Title: "Showdown #42", Duration: time.Hour,
	})
	require.NoError(t, err)

	w2, created, err := tr.EnsureWindow(ctx, WindowRequest{
		CommunityID: "c1", Title: "Showdown #43", Duration: time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, w1.ID, w2.ID)
	assert.Equal(t, 2, w2.Sequence)
}

func TestEnsureWindow_Validation(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, _, err := tr.EnsureWindow(ctx, WindowRequest{Title: "x", Duration: time.Hour})
	assert.Error(t, err)

	_, _, err = tr.EnsureWindow(ctx, WindowRequest{CommunityID: "c1", Duration: time.Hour})
	assert.Error(t, err)

	_, _, err = tr.EnsureWindow(ctx, WindowRequest{CommunityID: "c1", Title: "x"})
	assert.Error(t, err)
}

func TestActiveWindow_LazyExpiry(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	w, _, err := tr.EnsureWindow(ctx, WindowRequest{
		CommunityID: "c1", Title: "Showdown #42", Duration: time.Hour,
	})
	require.NoError(t, err)

	got, err := tr.ActiveWindow(ctx, "c1", false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.ID, got.ID)

	// Jump past the window's end time; the next read closes it.
	tr.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	got, err = tr.ActiveWindow(ctx, "c1", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	closed, err := tr.store.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	assert.Equal(t, "expired", closed.CloseReason)
}

func TestActiveWindow_ExcludesTestWindows(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, _, err := tr.EnsureWindow(ctx, WindowRequest{
		CommunityID: "c1", Title: "dry run", Duration: time.Hour, IsTest: true,
	})
	require.NoError(t, err)

	got, err := tr.ActiveWindow(ctx, "c1", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = tr.ActiveWindow(ctx, "c1", true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsTest)
}

func TestCloseWindow_Terminal(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	w, _, err := tr.EnsureWindow(ctx, WindowRequest{
		CommunityID: "c1", Title: "Showdown #42", Duration: time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, tr.CloseWindow(ctx, w.ID, "finished"))
	assert.Error(t, tr.CloseWindow(ctx, w.ID, "again"))

	got, err := tr.ActiveWindow(ctx, "c1", false)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordSubmission(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	w, _, err := tr.EnsureWindow(ctx, WindowRequest{
		CommunityID: "c1", Title: "Showdown #42", Duration: time.Hour,
	})
	require.NoError(t, err)

	rec := &model.RankingRecord{
		ID: "r1", SubmitterID: "u1", CommunityID: "c1", WindowID: w.ID,
		EventLabel: "showdown_42", Phase: model.PhasePrep, Day: 3,
		Category: model.CategoryResourceMob, Rank: 94, Score: 7_948_885,
		PlayerName: "Mars", SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, tr.store.InsertRecord(ctx, rec))
	require.NoError(t, tr.RecordSubmission(ctx, w, rec))
}

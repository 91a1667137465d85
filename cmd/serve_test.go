package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/scorescribe/internal/compare"
	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/parse"
	"github.com/kiteline/scorescribe/internal/recognize"
	"github.com/kiteline/scorescribe/internal/reconcile"
	"github.com/kiteline/scorescribe/internal/store"
	"github.com/kiteline/scorescribe/internal/tracker"
	"github.com/kiteline/scorescribe/internal/workflow"
)

func newTestEnv(t *testing.T) *env {
	t.Helper()

	cfg = &config.Config{
		Parse:    config.ParseConfig{MaxRank: 10000, MinScoreDigits: 4, ConfidenceFloor: 0.05},
		Workflow: config.WorkflowConfig{AutoAcceptThreshold: 0.99, ConfirmThreshold: 0.95, ConfirmTimeoutSecs: 120, MinImageBytes: 16, MaxImageBytes: 1 << 20},
		Reconcile: config.ReconcileConfig{
			CycleDropRatio: 0.6, IdentityConfidenceThreshold: 0.8, MaxScore: 500_000_000,
		},
		Compare: config.CompareConfig{PowerBandWidth: 0.10, BronzeMax: 250_000, SilverMax: 800_000, GoldMax: 2_000_000},
		Window:  config.WindowConfig{DefaultDurationHours: 144},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	pool := recognize.NewPool(recognize.NewCommandEngine("no-such-binary"), 1, 0)
	tr := tracker.New(st)
	rec := reconcile.NewEngine(st, reconcile.Config{
		CycleDropRatio: 0.6, IdentityConfidenceThreshold: 0.8, MaxScore: 500_000_000,
	})
	cmp := compare.NewEngine(st, compare.Config{PowerBandWidth: 0.10, BronzeMax: 250_000, SilverMax: 800_000, GoldMax: 2_000_000})
	parser := parse.NewParser(cfg.Parse)

	return &env{
		Store:      st,
		Tracker:    tr,
		Reconciler: rec,
		Comparer:   cmp,
		Processor:  workflow.NewProcessor(cfg.Workflow, pool, parser, tr, rec, st),
		Recognizer: pool,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestServe_Healthz(t *testing.T) {
	router := newRouter(newTestEnv(t))
	rr := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestServe_WindowEnsureIdempotent(t *testing.T) {
	router := newRouter(newTestEnv(t))
	body := map[string]any{"community_id": "c1", "title": "Showdown #42"}

	rr := doJSON(t, router, http.MethodPost, "/api/v1/windows", body)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/v1/windows", body)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"created":false`)

	rr = doJSON(t, router, http.MethodGet, "/api/v1/windows/active?community=c1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServe_ManualSubmission(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := doJSON(t, router, http.MethodPost, "/api/v1/windows", map[string]any{
		"community_id": "c1", "title": "Showdown #42",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/v1/submissions", map[string]any{
		"submitter_id": "u1", "community_id": "c1",
		"manual": map[string]any{
			"phase": "prep", "day": 3, "rank": 94, "score": 7948885,
			"player_name": "Mars", "alliance_tag": "TAO",
		},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"action":"saved"`)

	// Identical resubmission is a no-op, still 200.
	rr = doJSON(t, router, http.MethodPost, "/api/v1/submissions", map[string]any{
		"submitter_id": "u1", "community_id": "c1",
		"manual": map[string]any{
			"phase": "prep", "day": 3, "rank": 94, "score": 7948885,
			"player_name": "Mars", "alliance_tag": "TAO",
		},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"duplicate_noop"`)
}

func TestServe_TestWindowSubmission(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := doJSON(t, router, http.MethodPost, "/api/v1/windows", map[string]any{
		"community_id": "c1", "title": "Dry Run", "is_test": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	manual := map[string]any{
		"phase": "war", "score": 1000000,
		"player_name": "Mars", "alliance_tag": "TAO",
	}

	// Without include_tests the open test window is invisible.
	rr = doJSON(t, router, http.MethodPost, "/api/v1/submissions", map[string]any{
		"submitter_id": "u1", "community_id": "c1", "manual": manual,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/v1/submissions", map[string]any{
		"submitter_id": "u1", "community_id": "c1", "include_tests": true, "manual": manual,
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"action":"saved"`)
}

func TestServe_ManualSubmissionRejected(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := doJSON(t, router, http.MethodPost, "/api/v1/submissions", map[string]any{
		"submitter_id": "u1", "community_id": "c1",
		"manual": map[string]any{"phase": "prep", "day": 3, "score": 100},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestServe_NoPendingSession(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := doJSON(t, router, http.MethodPost, "/api/v1/submissions/u1/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/v1/submissions/u1/pending", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/submissions/u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_CompareTypedErrors(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := doJSON(t, router, http.MethodGet, "/api/v1/compare?submitter=u1&community=c1&event=showdown_42", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_power")

	rr = doJSON(t, router, http.MethodPut, "/api/v1/power", map[string]any{
		"submitter_id": "u1", "community_id": "c1", "event_label": "showdown_42", "power": 25_000_000,
	})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/v1/compare?submitter=u1&community=c1&event=showdown_42", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_score")
}

func TestServe_LeaderboardRequiresCommunity(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := doJSON(t, router, http.MethodGet, "/api/v1/leaderboard", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/v1/leaderboard?community=c1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiteline/scorescribe/internal/compare"
	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
	"github.com/kiteline/scorescribe/internal/tracker"
	"github.com/kiteline/scorescribe/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the submission and query HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(e),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":               "ok",
			"recognizer_available": e.Recognizer.Available(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/submissions", handleSubmit(e))
		r.Get("/submissions/{submitter}/pending", handlePending(e))
		r.Post("/submissions/{submitter}/confirm", handleConfirm(e))
		r.Post("/submissions/{submitter}/correct", handleCorrect(e))
		r.Delete("/submissions/{submitter}", handleDiscard(e))

		r.Post("/windows", handleWindowEnsure(e))
		r.Get("/windows/active", handleWindowActive(e))
		r.Delete("/windows/{id}", handleWindowClose(e))

		r.Get("/leaderboard", handleLeaderboard(e))
		r.Put("/power", handlePowerSet(e))
		r.Get("/compare", handleCompare(e))
		r.Get("/validate", handleValidate(e))
		r.Get("/stats", handleStats(e))
	})
	return r
}

type submitRequest struct {
	SubmitterID  string `json:"submitter_id"`
	CommunityID  string `json:"community_id"`
	Image        string `json:"image,omitempty"` // base64-encoded
	Origin       string `json:"origin,omitempty"`
	IncludeTests bool   `json:"include_tests,omitempty"`

	Manual *manualRequest `json:"manual,omitempty"`
}

type manualRequest struct {
	Phase       string `json:"phase"`
	Day         int    `json:"day"`
	Rank        int    `json:"rank"`
	Score       int64  `json:"score"`
	PlayerName  string `json:"player_name"`
	AllianceTag string `json:"alliance_tag"`
}

func (m *manualRequest) fields() workflow.ManualFields {
	return workflow.ManualFields{
		Phase:       model.Phase(m.Phase),
		Day:         model.Day(m.Day),
		Rank:        m.Rank,
		Score:       m.Score,
		PlayerName:  m.PlayerName,
		AllianceTag: m.AllianceTag,
	}
}

func handleSubmit(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body submitRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.SubmitterID == "" || body.CommunityID == "" {
			writeError(w, http.StatusBadRequest, "submitter_id and community_id are required")
			return
		}

		sub := workflow.Submission{
			SubmitterID:        body.SubmitterID,
			CommunityID:        body.CommunityID,
			Origin:             body.Origin,
			IncludeTestWindows: body.IncludeTests,
		}

		if body.Manual != nil {
			res, err := e.Processor.ProcessManual(req.Context(), sub, body.Manual.fields())
			writeWorkflowResult(w, res, err)
			return
		}

		image, err := base64.StdEncoding.DecodeString(body.Image)
		if err != nil {
			writeError(w, http.StatusBadRequest, "image must be base64-encoded")
			return
		}
		sub.Image = image

		res, err := e.Processor.ProcessImage(req.Context(), sub)
		writeWorkflowResult(w, res, err)
	}
}

func handlePending(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		res, ok := e.Processor.Pending(chi.URLParam(req, "submitter"))
		if !ok {
			writeError(w, http.StatusNotFound, "no pending submission")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleConfirm(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		res, err := e.Processor.Confirm(req.Context(), chi.URLParam(req, "submitter"))
		writeWorkflowResult(w, res, err)
	}
}

func handleCorrect(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body manualRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := e.Processor.Correct(req.Context(), chi.URLParam(req, "submitter"), body.fields())
		writeWorkflowResult(w, res, err)
	}
}

func handleDiscard(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := e.Processor.Discard(chi.URLParam(req, "submitter")); err != nil {
			writeError(w, http.StatusNotFound, "no pending submission")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleWindowEnsure(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			CommunityID string `json:"community_id"`
			Title       string `json:"title"`
			Hours       int    `json:"hours"`
			IsTest      bool   `json:"is_test"`
			InitiatorID string `json:"initiator_id"`
			ChannelID   string `json:"channel_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		hours := body.Hours
		if hours <= 0 {
			hours = cfg.Window.DefaultDurationHours
		}

		window, created, err := e.Tracker.EnsureWindow(req.Context(), tracker.WindowRequest{
			CommunityID: body.CommunityID,
			Title:       body.Title,
			Duration:    time.Duration(hours) * time.Hour,
			IsTest:      body.IsTest,
			InitiatorID: body.InitiatorID,
			ChannelID:   body.ChannelID,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, map[string]any{"window": window, "created": created})
	}
}

func handleWindowActive(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		includeTests, _ := strconv.ParseBool(req.URL.Query().Get("include_tests"))
		window, err := e.Tracker.ActiveWindow(req.Context(), req.URL.Query().Get("community"), includeTests)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if window == nil {
			writeError(w, http.StatusNotFound, "no active window")
			return
		}
		writeJSON(w, http.StatusOK, window)
	}
}

func handleWindowClose(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reason := req.URL.Query().Get("reason")
		if err := e.Tracker.CloseWindow(req.Context(), chi.URLParam(req, "id"), reason); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleLeaderboard(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := store.LeaderboardFilter{
			CommunityID: q.Get("community"),
			EventLabel:  q.Get("event"),
			Phase:       model.Phase(q.Get("phase")),
			AllianceTag: q.Get("tag"),
		}
		if filter.CommunityID == "" {
			writeError(w, http.StatusBadRequest, "community is required")
			return
		}
		if v := q.Get("day"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid day")
				return
			}
			day := model.Day(n)
			filter.Day = &day
		}
		if v := q.Get("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}

		rows, err := e.Reconciler.Leaderboard(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
	}
}

func handlePowerSet(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SubmitterID string `json:"submitter_id"`
			CommunityID string `json:"community_id"`
			EventLabel  string `json:"event_label"`
			Power       int64  `json:"power"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := e.Comparer.SetPower(req.Context(), body.SubmitterID, body.CommunityID, body.EventLabel, body.Power); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCompare(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		result, err := e.Comparer.PeerComparison(req.Context(), q.Get("submitter"), q.Get("community"), q.Get("event"))
		switch {
		case errors.Is(err, compare.ErrNoPower):
			writeError(w, http.StatusNotFound, "no_power")
		case errors.Is(err, compare.ErrNoScore):
			writeError(w, http.StatusNotFound, "no_score")
		case errors.Is(err, compare.ErrNoPeers):
			writeError(w, http.StatusNotFound, "no_peers")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "comparison failed")
		default:
			writeJSON(w, http.StatusOK, result)
		}
	}
}

func handleValidate(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		issues, err := e.Reconciler.ValidateWindow(req.Context(), q.Get("community"), q.Get("event"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "validation scan failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
	}
}

func handleStats(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		stats, err := e.Store.LogStats(req.Context(), req.URL.Query().Get("community"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
	}
}

// writeWorkflowResult maps processor results and typed errors onto HTTP
// status codes.
func writeWorkflowResult(w http.ResponseWriter, res *workflow.Result, err error) {
	switch {
	case errors.Is(err, workflow.ErrEngineUnavailable):
		writeError(w, http.StatusServiceUnavailable, "recognition engine unavailable, submit manual fields")
		return
	case errors.Is(err, workflow.ErrNoSession):
		writeError(w, http.StatusNotFound, "no pending submission")
		return
	case err != nil:
		zap.L().Error("submission processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	status := http.StatusOK
	switch res.Action {
	case workflow.ActionRejected:
		status = http.StatusUnprocessableEntity
	case workflow.ActionAwaitConfirm, workflow.ActionAwaitCorrection:
		status = http.StatusAccepted
	case workflow.ActionAwaitConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

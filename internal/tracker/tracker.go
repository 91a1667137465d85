// Package tracker manages event windows: the bounded submission periods
// that ranking records are reconciled within.
package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/store"
)

// Tracker coordinates window lifecycle against the store. Expiry is
// evaluated lazily on read; there are no background timers.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// WindowRequest describes a window to open.
type WindowRequest struct {
	CommunityID string
	Title       string
	Duration    time.Duration
	IsTest      bool
	InitiatorID string
	ChannelID   string
}

// EnsureWindow opens a window for the community, or returns the existing
// active window when one with the same title is already open. The created
// flag reports whether a new window was opened by this call.
func (t *Tracker) EnsureWindow(ctx context.Context, req WindowRequest) (*model.EventWindow, bool, error) {
	if req.CommunityID == "" {
		return nil, false, eris.New("tracker: community id is required")
	}
	if req.Title == "" {
		return nil, false, eris.New("tracker: window title is required")
	}
	if req.Duration <= 0 {
		return nil, false, eris.Errorf("tracker: invalid window duration %s", req.Duration)
	}

	active, err := t.activeWindows(ctx, req.CommunityID, req.IsTest)
	if err != nil {
		return nil, false, err
	}
	for i := range active {
		if active[i].Title == req.Title && active[i].IsTest == req.IsTest {
			return &active[i], false, nil
		}
	}

	now := t.now().UTC()
	w := &model.EventWindow{
		ID:          uuid.NewString(),
		CommunityID: req.CommunityID,
		Title:       req.Title,
		IsTest:      req.IsTest,
		StartsAt:    now,
		EndsAt:      now.Add(req.Duration),
		Active:      true,
		InitiatorID: req.InitiatorID,
		ChannelID:   req.ChannelID,
		CreatedAt:   now,
	}
	if err := t.store.CreateWindow(ctx, w); err != nil {
		return nil, false, eris.Wrap(err, "tracker: create window")
	}
	zap.L().Info("opened event window",
		zap.String("window_id", w.ID),
		zap.String("community_id", w.CommunityID),
		zap.String("title", w.Title),
		zap.Int("sequence", w.Sequence),
		zap.Bool("is_test", w.IsTest),
	)
	return w, true, nil
}

// ActiveWindow returns the most recently opened window that is still live
// for the community, closing any that have passed their end time. Returns
// nil when no window is open.
func (t *Tracker) ActiveWindow(ctx context.Context, communityID string, includeTests bool) (*model.EventWindow, error) {
	live, err := t.activeWindows(ctx, communityID, includeTests)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, nil
	}
	return &live[0], nil
}

// activeWindows lists open windows newest first, expiring stale ones as a
// side effect of the read.
func (t *Tracker) activeWindows(ctx context.Context, communityID string, includeTests bool) ([]model.EventWindow, error) {
	windows, err := t.store.ActiveWindows(ctx, communityID, includeTests)
	if err != nil {
		return nil, eris.Wrap(err, "tracker: list active windows")
	}

	now := t.now()
	live := windows[:0]
	for _, w := range windows {
		if w.Expired(now) {
			if err := t.store.CloseWindow(ctx, w.ID, "expired"); err != nil {
				return nil, eris.Wrapf(err, "tracker: expire window %s", w.ID)
			}
			zap.L().Info("expired event window",
				zap.String("window_id", w.ID),
				zap.String("community_id", w.CommunityID),
			)
			continue
		}
		live = append(live, w)
	}
	return live, nil
}

// CloseWindow closes a window by id. Closing is terminal; reopening is not
// supported.
func (t *Tracker) CloseWindow(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "manual"
	}
	if err := t.store.CloseWindow(ctx, id, reason); err != nil {
		return eris.Wrapf(err, "tracker: close window %s", id)
	}
	zap.L().Info("closed event window", zap.String("window_id", id), zap.String("reason", reason))
	return nil
}

// RecordSubmission appends a window entry linking a stored ranking record
// to the window it was submitted under.
func (t *Tracker) RecordSubmission(ctx context.Context, w *model.EventWindow, r *model.RankingRecord) error {
	entry := &model.WindowEntry{
		ID:          uuid.NewString(),
		WindowID:    w.ID,
		RecordID:    r.ID,
		SubmitterID: r.SubmitterID,
		Phase:       r.Phase,
		Day:         r.Day,
		IsTest:      w.IsTest,
		CreatedAt:   t.now().UTC(),
	}
	if err := t.store.AppendEntry(ctx, entry); err != nil {
		return eris.Wrap(err, "tracker: record submission")
	}
	return nil
}

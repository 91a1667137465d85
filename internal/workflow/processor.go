// Package workflow orchestrates a submission end to end: image validation,
// recognition, parsing, self-row resolution, confidence gating, and the
// hand-off to reconciliation.
package workflow

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kiteline/scorescribe/internal/config"
	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/parse"
	"github.com/kiteline/scorescribe/internal/reconcile"
	"github.com/kiteline/scorescribe/internal/store"
	"github.com/kiteline/scorescribe/internal/tracker"
)

// ErrEngineUnavailable is returned when the recognition engine cannot take
// work. Callers should fall back to manual entry.
var ErrEngineUnavailable = eris.New("recognition engine unavailable, use manual entry")

// Recognizer is the slice of the recognition pool the processor needs.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]model.Token, error)
	Available() bool
}

// Action tells the caller what happened or what is expected next.
type Action string

const (
	// ActionSaved means a record was written (or merged).
	ActionSaved Action = "saved"
	// ActionAwaitConfirm means a preview is pending an explicit accept.
	ActionAwaitConfirm Action = "await_confirm"
	// ActionAwaitCorrection means a pre-filled form is pending manual edits.
	ActionAwaitCorrection Action = "await_correction"
	// ActionAwaitConflict means a stale-cycle conflict needs confirmation.
	ActionAwaitConflict Action = "await_conflict"
	// ActionRejected means validation failed; nothing is pending.
	ActionRejected Action = "rejected"
)

// Result is returned for every processing attempt.
type Result struct {
	Action     Action          `json:"action"`
	Tier       model.Tier      `json:"tier,omitempty"`
	RecordID   string          `json:"record_id,omitempty"`
	Outcome    model.Outcome   `json:"outcome"`
	Row        model.ParsedRow `json:"row,omitempty"`
	Phase      model.Phase     `json:"phase,omitempty"`
	Day        model.Day       `json:"day,omitempty"`
	EventLabel string          `json:"event_label,omitempty"`
}

// Submission is one screenshot handed in by a submitter. The calling layer
// supplies the bytes and origin URL; the core never fetches.
type Submission struct {
	SubmitterID string
	CommunityID string
	Image       []byte
	Origin      string
	// IncludeTestWindows lets the submission land in an open test window.
	// Production submissions never target test windows.
	IncludeTestWindows bool
}

// ManualFields is a typed-in entry, used both for manual-only submissions and
// for corrections.
type ManualFields struct {
	Phase       model.Phase
	Day         model.Day
	Rank        int
	Score       int64
	PlayerName  string
	AllianceTag string
}

// Processor runs the confidence-gated submission workflow.
type Processor struct {
	cfg        config.WorkflowConfig
	engine     Recognizer
	parser     *parse.Parser
	tracker    *tracker.Tracker
	reconciler *reconcile.Engine
	store      store.Store
	sessions   *sessionTable
	now        func() time.Time
}

func NewProcessor(
	cfg config.WorkflowConfig,
	engine Recognizer,
	parser *parse.Parser,
	tr *tracker.Tracker,
	rec *reconcile.Engine,
	st store.Store,
) *Processor {
	timeout := time.Duration(cfg.ConfirmTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Processor{
		cfg:        cfg,
		engine:     engine,
		parser:     parser,
		tracker:    tr,
		reconciler: rec,
		store:      st,
		sessions:   newSessionTable(timeout),
		now:        time.Now,
	}
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// validateImage rejects bad sizes and non-image payloads before any
// recognition work is spent.
func (p *Processor) validateImage(image []byte) string {
	if len(image) < p.cfg.MinImageBytes {
		return "image too small"
	}
	if p.cfg.MaxImageBytes > 0 && len(image) > p.cfg.MaxImageBytes {
		return "image too large"
	}
	if !bytes.HasPrefix(image, pngMagic) && !bytes.HasPrefix(image, jpegMagic) {
		return "unsupported image type, expected png or jpeg"
	}
	return ""
}

// ProcessImage validates and recognizes a screenshot, then routes the parsed
// self-row by confidence tier. Only the auto tier writes immediately; the
// other tiers park a pending session keyed by submitter.
func (p *Processor) ProcessImage(ctx context.Context, sub Submission) (*Result, error) {
	if reason := p.validateImage(sub.Image); reason != "" {
		p.log(ctx, sub.SubmitterID, sub.CommunityID, "", false, reason)
		return &Result{Action: ActionRejected, Outcome: model.ValidationFailed(reason)}, nil
	}

	if !p.engine.Available() {
		return nil, ErrEngineUnavailable
	}

	window, err := p.tracker.ActiveWindow(ctx, sub.CommunityID, sub.IncludeTestWindows)
	if err != nil {
		return nil, err
	}
	if window == nil {
		reason := "no active event window"
		p.log(ctx, sub.SubmitterID, sub.CommunityID, "", false, reason)
		return &Result{Action: ActionRejected, Outcome: model.ValidationFailed(reason)}, nil
	}

	tokens, err := p.engine.Recognize(ctx, sub.Image)
	if err != nil {
		p.log(ctx, sub.SubmitterID, sub.CommunityID, window.ID, false, "recognition failed")
		return nil, eris.Wrap(err, "workflow: recognize")
	}

	lines := parse.Lines(tokens)
	cls := parse.Classify(lines)
	rows := p.parser.ParseRows(lines)

	knownName := ""
	if mem, err := p.store.GetIdentity(ctx, sub.SubmitterID); err == nil && mem != nil {
		knownName = mem.PlayerName
	}

	row, conf, ok := parse.ResolveSelfRow(rows, knownName)
	if !ok {
		// Nothing parseable: route straight to the correction form.
		p.sessions.put(&session{
			submitterID: sub.SubmitterID,
			communityID: sub.CommunityID,
			window:      window,
			cls:         cls,
			origin:      sub.Origin,
			createdAt:   p.now(),
		})
		p.log(ctx, sub.SubmitterID, sub.CommunityID, window.ID, false, "no rows parsed")
		return &Result{
			Action: ActionAwaitCorrection, Tier: model.TierCorrect,
			Phase: cls.Phase, Day: cls.Day, EventLabel: p.eventLabel(cls, window),
		}, nil
	}

	sess := &session{
		submitterID: sub.SubmitterID,
		communityID: sub.CommunityID,
		window:      window,
		cls:         cls,
		row:         row,
		origin:      sub.Origin,
		createdAt:   p.now(),
	}

	switch p.tierFor(conf) {
	case model.TierAuto:
		return p.save(ctx, sess, false)
	case model.TierConfirm:
		p.sessions.put(sess)
		return &Result{
			Action: ActionAwaitConfirm, Tier: model.TierConfirm, Row: row,
			Phase: cls.Phase, Day: cls.Day, EventLabel: p.eventLabel(cls, window),
		}, nil
	default:
		p.sessions.put(sess)
		return &Result{
			Action: ActionAwaitCorrection, Tier: model.TierCorrect, Row: row,
			Phase: cls.Phase, Day: cls.Day, EventLabel: p.eventLabel(cls, window),
		}, nil
	}
}

// ProcessManual persists a typed-in entry without recognition. All fields are
// treated as fully confident.
func (p *Processor) ProcessManual(ctx context.Context, sub Submission, fields ManualFields) (*Result, error) {
	if reason := validateFields(&fields); reason != "" {
		p.log(ctx, sub.SubmitterID, sub.CommunityID, "", false, reason)
		return &Result{Action: ActionRejected, Outcome: model.ValidationFailed(reason)}, nil
	}

	window, err := p.tracker.ActiveWindow(ctx, sub.CommunityID, sub.IncludeTestWindows)
	if err != nil {
		return nil, err
	}
	if window == nil {
		reason := "no active event window"
		p.log(ctx, sub.SubmitterID, sub.CommunityID, "", false, reason)
		return &Result{Action: ActionRejected, Outcome: model.ValidationFailed(reason)}, nil
	}

	sess := &session{
		submitterID: sub.SubmitterID,
		communityID: sub.CommunityID,
		window:      window,
		cls: parse.Classification{
			Phase: fields.Phase, Day: fields.Day,
			Category: model.CategoryFor(fields.Phase, fields.Day),
		},
		row: model.ParsedRow{
			Rank: fields.Rank, Score: fields.Score,
			PlayerName: fields.PlayerName, AllianceTag: fields.AllianceTag,
			Fields:     model.FieldConfidence{Rank: 1, Score: 1, Tag: 1, Name: 1},
			Confidence: 1,
		},
		origin:    sub.Origin,
		createdAt: p.now(),
	}
	return p.save(ctx, sess, false)
}

// Confirm resolves a pending soft-confirm or conflict session for the
// submitter, performing the blocked write.
func (p *Processor) Confirm(ctx context.Context, submitterID string) (*Result, error) {
	sess, err := p.sessions.take(submitterID, p.now())
	if err != nil {
		return nil, err
	}
	return p.save(ctx, sess, sess.force)
}

// Correct resolves a pending correction session with edited fields.
// Acceptance requires a non-empty name, tag, and a positive score; a supplied
// phase is checked against the day domain before it replaces the
// classification.
func (p *Processor) Correct(ctx context.Context, submitterID string, fields ManualFields) (*Result, error) {
	sess, err := p.sessions.take(submitterID, p.now())
	if err != nil {
		return nil, err
	}
	if fields.PlayerName == "" || fields.AllianceTag == "" || fields.Score <= 0 {
		p.sessions.put(sess) // session stays open for another attempt
		reason := "correction requires name, tag and a positive score"
		return &Result{Action: ActionRejected, Outcome: model.ValidationFailed(reason)}, nil
	}

	if fields.Phase != "" {
		if reason := validatePhaseDay(&fields); reason != "" {
			p.sessions.put(sess)
			return &Result{Action: ActionRejected, Outcome: model.ValidationFailed(reason)}, nil
		}
		sess.cls.Phase = fields.Phase
		sess.cls.Day = fields.Day
		sess.cls.Category = model.CategoryFor(fields.Phase, fields.Day)
	}
	sess.row = model.ParsedRow{
		Rank: fields.Rank, Score: fields.Score,
		PlayerName: fields.PlayerName, AllianceTag: fields.AllianceTag,
		Fields:     model.FieldConfidence{Rank: 1, Score: 1, Tag: 1, Name: 1},
		Confidence: 1,
	}
	return p.save(ctx, sess, sess.force)
}

// Discard drops a pending session with no write.
func (p *Processor) Discard(submitterID string) error {
	_, err := p.sessions.take(submitterID, p.now())
	return err
}

// Pending returns the submitter's open session preview, if any.
func (p *Processor) Pending(submitterID string) (*Result, bool) {
	sess, ok := p.sessions.peek(submitterID, p.now())
	if !ok {
		return nil, false
	}
	action := ActionAwaitConfirm
	if sess.force {
		action = ActionAwaitConflict
	}
	return &Result{
		Action: action, Row: sess.row,
		Phase: sess.cls.Phase, Day: sess.cls.Day,
		EventLabel: p.eventLabel(sess.cls, sess.window),
	}, true
}

// save hands the session's row to reconciliation and translates the outcome
// into the caller-facing result. A conflict re-parks the session so that
// Confirm can force the write.
func (p *Processor) save(ctx context.Context, sess *session, force bool) (*Result, error) {
	rec := &model.RankingRecord{
		ID:          uuid.NewString(),
		SubmitterID: sess.submitterID,
		CommunityID: sess.communityID,
		WindowID:    sess.window.ID,
		EventLabel:  p.eventLabel(sess.cls, sess.window),
		Phase:       sess.cls.Phase,
		Day:         sess.cls.Day,
		Category:    sess.cls.Category,
		Rank:        sess.row.Rank,
		Score:       sess.row.Score,
		PlayerName:  sess.row.PlayerName,
		AllianceTag: sess.row.AllianceTag,
		Screenshot:  sess.origin,
		IsTest:      sess.window.IsTest,
		SubmittedAt: p.now().UTC(),
	}

	res, err := p.reconciler.SaveOrUpdate(ctx, rec, sess.row.Fields, force)
	if err != nil {
		zap.L().Error("reconciliation failed",
			zap.String("submitter_id", sess.submitterID),
			zap.String("community_id", sess.communityID),
			zap.String("window_id", sess.window.ID),
			zap.String("phase", string(rec.Phase)),
			zap.Int("day", int(rec.Day)),
			zap.Int64("score", rec.Score),
			zap.Error(err),
		)
		p.log(ctx, sess.submitterID, sess.communityID, sess.window.ID, false, "storage error")
		return nil, eris.Wrap(err, "workflow: save record")
	}

	switch res.Outcome.Kind {
	case model.OutcomeConflict:
		sess.force = true
		sess.createdAt = p.now()
		p.sessions.put(sess)
		p.log(ctx, sess.submitterID, sess.communityID, sess.window.ID, false, "cycle conflict")
		return &Result{
			Action: ActionAwaitConflict, Outcome: res.Outcome, Row: sess.row,
			Phase: rec.Phase, Day: rec.Day, EventLabel: rec.EventLabel,
		}, nil
	case model.OutcomeValidationFailed:
		p.log(ctx, sess.submitterID, sess.communityID, sess.window.ID, false, res.Outcome.Reason)
		return &Result{Action: ActionRejected, Outcome: res.Outcome}, nil
	}

	if err := p.tracker.RecordSubmission(ctx, sess.window, rec); err != nil {
		zap.L().Warn("window entry append failed", zap.String("record_id", res.RecordID), zap.Error(err))
	}
	p.log(ctx, sess.submitterID, sess.communityID, sess.window.ID, true, string(res.Outcome.Kind))

	return &Result{
		Action: ActionSaved, Tier: model.TierAuto, RecordID: res.RecordID,
		Outcome: res.Outcome, Row: sess.row,
		Phase: rec.Phase, Day: rec.Day, EventLabel: rec.EventLabel,
	}, nil
}

// tierFor maps a self-row confidence onto the three-tier policy.
func (p *Processor) tierFor(conf float64) model.Tier {
	switch {
	case conf >= p.cfg.AutoAcceptThreshold:
		return model.TierAuto
	case conf >= p.cfg.ConfirmThreshold:
		return model.TierConfirm
	default:
		return model.TierCorrect
	}
}

// eventLabel prefers the label read from the screenshot, falling back to a
// slug of the window title plus its sequence.
func (p *Processor) eventLabel(cls parse.Classification, w *model.EventWindow) string {
	if cls.EventLabel != "" {
		return cls.EventLabel
	}
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, w.Title)
	return strings.Join(strings.Fields(slug), "_")
}

func validateFields(f *ManualFields) string {
	if f.PlayerName == "" {
		return "player name is required"
	}
	if f.AllianceTag == "" {
		return "alliance tag is required"
	}
	if f.Score <= 0 {
		return "score must be positive"
	}
	return validatePhaseDay(f)
}

// validatePhaseDay enforces the day domain: war entries carry no day, prep
// entries need 1-5 or overall. The war day is normalized rather than
// rejected so a stray day flag cannot mint a second reconciliation key.
func validatePhaseDay(f *ManualFields) string {
	if !f.Phase.Valid() {
		return "phase must be prep or war"
	}
	if f.Phase == model.PhaseWar {
		f.Day = model.DayNone
		return ""
	}
	if f.Day == model.DayNone || !f.Day.Valid() {
		return "prep entries need a day between 1 and 5, or overall"
	}
	return ""
}

func (p *Processor) log(ctx context.Context, submitterID, communityID, windowID string, success bool, reason string) {
	err := p.store.AppendLog(ctx, &model.SubmissionLog{
		ID:          uuid.NewString(),
		SubmitterID: submitterID,
		CommunityID: communityID,
		WindowID:    windowID,
		Success:     success,
		Reason:      reason,
		CreatedAt:   p.now().UTC(),
	})
	if err != nil {
		zap.L().Warn("submission log append failed", zap.Error(err))
	}
}

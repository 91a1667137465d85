package model

// OutcomeKind tags the result of a reconciliation attempt. Control flow in
// callers switches on the kind instead of matching error strings.
type OutcomeKind string

const (
	// OutcomeAccepted means the record was persisted (inserted or updated).
	OutcomeAccepted OutcomeKind = "accepted"
	// OutcomeDuplicateNoOp means an identical record already exists; nothing
	// was written. Advisory, not an error.
	OutcomeDuplicateNoOp OutcomeKind = "duplicate_noop"
	// OutcomeConflict means the submission likely belongs to a stale event
	// cycle; the write is blocked pending explicit confirmation.
	OutcomeConflict OutcomeKind = "conflict_requires_confirmation"
	// OutcomeValidationFailed means the input was rejected outright.
	OutcomeValidationFailed OutcomeKind = "validation_failed"
)

// Outcome is the tagged result of SaveOrUpdate.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// Reason is set for ValidationFailed outcomes.
	Reason string `json:"reason,omitempty"`
	// PriorEvent and PriorMaxScore describe the conflicting cycle for
	// Conflict outcomes.
	PriorEvent    string `json:"prior_event,omitempty"`
	PriorMaxScore int64  `json:"prior_max_score,omitempty"`
}

// Accepted is the zero-friction success outcome.
func Accepted() Outcome { return Outcome{Kind: OutcomeAccepted} }

// DuplicateNoOp marks an identical resubmission.
func DuplicateNoOp() Outcome { return Outcome{Kind: OutcomeDuplicateNoOp} }

// Conflict marks a probable stale-cycle submission.
func Conflict(priorEvent string, priorMax int64) Outcome {
	return Outcome{Kind: OutcomeConflict, PriorEvent: priorEvent, PriorMaxScore: priorMax}
}

// ValidationFailed marks a rejected input with a human-readable reason.
func ValidationFailed(reason string) Outcome {
	return Outcome{Kind: OutcomeValidationFailed, Reason: reason}
}

// Tier is the confidence band a parsed candidate lands in.
type Tier string

const (
	// TierAuto persists immediately without user interaction.
	TierAuto Tier = "auto"
	// TierConfirm shows the parsed preview and waits for an explicit accept.
	TierConfirm Tier = "confirm"
	// TierCorrect presents a pre-filled editable form.
	TierCorrect Tier = "correct"
)

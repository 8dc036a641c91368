// Package progress implements the Progress Tracker (spec.md §4.4):
// a stage/percentage/partial-result channel for long audits. Grounded on
// spec.md §9's redesign note ("callback-threaded progress -> channel") and
// on itsneelabh/gomind's orchestration step-callback machinery
// (orchestration/step_callback_integration_test.go), replaced here with a
// bounded Go channel instead of a registered listener interface.
package progress

import (
	"context"

	"github.com/kestrelcode/auditcore/internal/core"
)

// Stage is one point in an audit's lifecycle (spec.md §4.4).
type Stage string

const (
	StageInitializing       Stage = "Initializing"
	StageTemplateRendering  Stage = "TemplateRendering"
	StageContextBuilding    Stage = "ContextBuilding"
	StageWorkflowExecution  Stage = "WorkflowExecution"
	StageQualityAssessment  Stage = "QualityAssessment"
	StageFeedbackGeneration Stage = "FeedbackGeneration"
	StageResponseFormatting Stage = "ResponseFormatting"
	StageCompleted          Stage = "Completed"
	StageTimedOut           Stage = "TimedOut"
	StageFailed             Stage = "Failed"
)

// terminal reports whether a partial review captured at this stage is
// usable for graceful-timeout handling (spec.md §4.4: "return partial
// results if the engine timed out after Completed/FeedbackGeneration").
func (s Stage) terminal() bool {
	return s == StageCompleted || s == StageFeedbackGeneration
}

// Update is one point-in-time progress event.
type Update struct {
	Stage                Stage
	CompletionPercentage int
	PartialResult        *core.Review
}

// stagePercent gives each stage a monotone completion estimate; the final
// percentage on a successful run is always 100 via StageCompleted.
var stagePercent = map[Stage]int{
	StageInitializing:       5,
	StageTemplateRendering:  20,
	StageContextBuilding:    35,
	StageWorkflowExecution:  60,
	StageQualityAssessment:  80,
	StageFeedbackGeneration: 90,
	StageResponseFormatting: 95,
	StageCompleted:          100,
	StageTimedOut:           100,
	StageFailed:             100,
}

// Tracker emits a bounded stream of Updates for one audit. Callers that do
// not want streaming progress may simply not read from Updates(); sends
// never block past the buffer (stale updates are dropped, not backed up).
type Tracker struct {
	updates chan Update
	current Stage
	partial *core.Review
}

// NewTracker allocates a tracker with the given channel buffer depth.
func NewTracker(bufferSize int) *Tracker {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Tracker{updates: make(chan Update, bufferSize)}
}

// Updates returns the read-only stream of progress events.
func (t *Tracker) Updates() <-chan Update {
	return t.updates
}

// Advance records a stage transition, optionally attaching a partial
// review for graceful timeout handling, and emits an Update. Non-blocking:
// if the channel is full, the oldest buffered update is dropped.
func (t *Tracker) Advance(ctx context.Context, stage Stage, partial *core.Review) {
	t.current = stage
	if partial != nil {
		t.partial = partial
	}
	update := Update{
		Stage:                stage,
		CompletionPercentage: stagePercent[stage],
		PartialResult:        t.partial,
	}

	select {
	case t.updates <- update:
	default:
		select {
		case <-t.updates:
		default:
		}
		select {
		case t.updates <- update:
		default:
		}
	}

	_ = ctx
}

// CurrentStage reports the tracker's last-advanced stage.
func (t *Tracker) CurrentStage() Stage {
	return t.current
}

// PartialResult returns the most recent partial review, if one was
// attached, for graceful-timeout degradation (spec.md §4.10 recovery
// policy).
func (t *Tracker) PartialResult() (*core.Review, bool) {
	if t.partial == nil {
		return nil, false
	}
	return t.partial, true
}

// HasUsablePartial reports whether the current stage is far enough along
// that a partial result should be returned on timeout rather than a
// synthetic "incomplete" review.
func (t *Tracker) HasUsablePartial() bool {
	return t.current.terminal() && t.partial != nil
}

// Close releases the update channel. Safe to call once the audit (success
// or failure) has finished emitting updates.
func (t *Tracker) Close() {
	close(t.updates)
}

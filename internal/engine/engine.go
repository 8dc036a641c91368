// Package engine implements the Synchronous Audit Engine (spec.md §4.10):
// the gate -> triage -> validate -> cache-lookup -> admission ->
// execute-with-timeout -> store -> return pipeline that every audit
// request passes through. Grounded on itsneelabh/gomind's
// orchestration.SmartExecutor (orchestration/executor.go) for the shape of
// a dependency-holding executor driving one request through bounded,
// cancellable stages, and on its WorkflowExecutor
// (orchestration/workflow_executor.go) for the context.WithTimeout +
// select pattern used here for the Judge call.
package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/kestrelcode/auditcore/internal/cache"
	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/judge"
	"github.com/kestrelcode/auditcore/internal/progress"
	"github.com/kestrelcode/auditcore/internal/queue"
	"github.com/kestrelcode/auditcore/internal/resourcemgr"
	"github.com/kestrelcode/auditcore/internal/session"
	"github.com/kestrelcode/auditcore/internal/workflow"
)

// Config collects the Engine's constructor dependencies. Judge, Queue and
// AuditCache are required. Logger defaults to a no-op, Timeout to 30s when
// not positive, and Steps to workflow.Default() when nil. Sessions and
// Resources may be nil, which skips the session append and the resource
// check respectively.
type Config struct {
	Judge       judge.Adapter
	Queue       *queue.AuditQueue
	Sessions    session.Store
	AuditCache  *cache.LRUCache[core.Review]
	Logger      core.Logger
	Timeout     time.Duration
	Steps       []workflow.Step
	Resources   *resourcemgr.Manager

	Enabled              bool
	RequireLanguageFence bool
}

// Engine is the Synchronous Audit Engine. One Engine instance is a
// process-wide singleton wired at boot (spec.md §9: "process-wide mutable
// singletons ... owned by a top-level executor value").
type Engine struct {
	judge      judge.Adapter
	queue      *queue.AuditQueue
	sessions   session.Store
	auditCache *cache.LRUCache[core.Review]
	logger     core.Logger
	timeout    time.Duration
	steps      []workflow.Step
	resources  *resourcemgr.Manager

	enabled              bool
	requireLanguageFence bool
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	steps := cfg.Steps
	if steps == nil {
		steps = workflow.Default()
	}
	return &Engine{
		judge:                cfg.Judge,
		queue:                cfg.Queue,
		sessions:             cfg.Sessions,
		auditCache:           cfg.AuditCache,
		logger:               logger,
		timeout:              timeout,
		steps:                steps,
		resources:            cfg.Resources,
		enabled:              cfg.Enabled,
		requireLanguageFence: cfg.RequireLanguageFence,
	}
}

// AuditAndWait runs thought through the full pipeline described in
// spec.md §4.10 and returns an AuditOutcome that never carries an
// unrecovered error out to the caller (spec.md §7: "the engine never
// throws out to the caller").
func (e *Engine) AuditAndWait(ctx context.Context, thought core.Thought) core.AuditOutcome {
	return e.audit(ctx, thought, "")
}

// AuditAndWaitWithPrompt is AuditAndWait with a pre-rendered prompt attached
// to the Judge request (spec.md §4.11 step 4: "Invoke the Synchronous Audit
// Engine with the rendered prompt attached to the audit request"). The
// Prompt-Driven Auditor is the only caller; the bare thought text is still
// what Triage inspects for code.
func (e *Engine) AuditAndWaitWithPrompt(ctx context.Context, thought core.Thought, renderedPrompt string) core.AuditOutcome {
	return e.audit(ctx, thought, renderedPrompt)
}

func (e *Engine) audit(ctx context.Context, thought core.Thought, renderedPrompt string) core.AuditOutcome {
	start := time.Now()
	sessionKey := session.Key(thought.SessionID, thought.BranchID)
	tracker := progress.NewTracker(16)
	defer tracker.Close()

	// 1. Gate.
	if !e.enabled {
		return e.finish(start, sessionKey, core.Review{
			Overall: 100,
			Verdict: core.VerdictPass,
			Summary: "auditing disabled",
			JudgeCards: []core.JudgeCard{{Model: "engine", Notes: "skipped: audit.enabled=false"}},
		}, true, false, nil)
	}

	// 2. Triage.
	extraction := extractCode(thought.Text)
	if !extraction.present {
		return e.finish(start, sessionKey, core.Review{
			Overall: 100,
			Verdict: core.VerdictPass,
			Summary: "no code detected",
			JudgeCards: []core.JudgeCard{{Model: "engine", Notes: "skipped: no code detected"}},
		}, true, false, nil)
	}

	// 3. Validate code format.
	var formatEvidence *core.EvidenceItem
	if extraction.malformedFence {
		formatEvidence = &core.EvidenceItem{
			Type:        "format",
			Severity:    core.SeverityMinor,
			Location:    "code fence",
			Description: "code fence is missing a recognizable language label",
		}
	}
	if e.requireLanguageFence && extraction.languageMissing {
		err := core.NewAuditError("engine.validate", "InvalidCodeFormat", "Minor", false,
			"add a language label to the fenced code block", core.ErrInvalidCodeFormat)
		return e.finish(start, sessionKey, core.Review{
			Overall: 0,
			Verdict: core.VerdictReject,
			Summary: "code format rejected: missing required language fence",
			Inline:  []core.InlineComment{{Comment: "InvalidCodeFormat: " + err.Error()}},
		}, false, false, err)
	}

	// 4. Cache lookup.
	fingerprint := cache.Fingerprint(extraction.code, thought.Number)
	if cached, ok := e.auditCache.Get(fingerprint); ok {
		return e.finish(start, sessionKey, cached, true, false, nil)
	}

	// 5. Admission.
	release, err := e.queue.Acquire(ctx)
	if err != nil {
		return e.finish(start, sessionKey, core.Review{
			Overall: 50,
			Verdict: core.VerdictRevise,
			Summary: "audit queue admission canceled",
		}, false, false, err)
	}
	defer release()
	tracker.Advance(ctx, progress.StageInitializing, nil)

	// 5.5. Resource check (spec.md §7: ResourceExhausted triggers cleanup
	// and, if still critical afterward, a revise-verdict with a perf
	// evidence item rather than proceeding to invoke the Judge).
	if e.resources != nil {
		if resErr := e.resources.CheckAndCleanup(ctx); resErr != nil {
			item := core.EvidenceItem{
				Type:        "perf",
				Severity:    core.SeverityMajor,
				Location:    "resourcemgr",
				Description: resErr.Error(),
			}
			return e.finish(start, sessionKey, core.Review{
				Overall: 50,
				Verdict: core.VerdictRevise,
				Summary: "resource watermark still critical after cleanup",
				Inline:  []core.InlineComment{{Path: item.Location, Comment: string(item.Severity) + ": " + item.Description}},
			}, false, false, resErr)
		}
	}

	// 6. Execute.
	review, timedOut, execErr := e.execute(ctx, thought, extraction, renderedPrompt, tracker, formatEvidence)
	if execErr != nil {
		return e.finish(start, sessionKey, review, false, timedOut, execErr)
	}

	// 7. Store.
	e.auditCache.Set(fingerprint, review, len(extraction.code)+len(review.Summary))
	if e.sessions != nil && thought.SessionID != "" {
		if _, err := e.sessions.Create(ctx, thought.SessionID, thought.BranchID); err != nil {
			e.logger.Warn("failed to create/fetch session", map[string]interface{}{
				"sessionKey": sessionKey, "error": err.Error(),
			})
		}
		iter := core.IterationRecord{
			Thought:         thought,
			Review:          review,
			CodeFingerprint: fingerprint,
			NormalizedCode:  cache.NormalizeCode(extraction.code),
			Timestamp:       time.Now(),
		}
		if _, err := e.sessions.Append(ctx, sessionKey, iter); err != nil {
			e.logger.Warn("failed to append iteration to session store", map[string]interface{}{
				"sessionKey": sessionKey, "error": err.Error(),
			})
		}
	}

	return e.finish(start, sessionKey, review, true, false, nil)
}

// execute invokes the Judge Adapter under a deadline and applies the
// recovery policy from spec.md §4.10.
func (e *Engine) execute(ctx context.Context, thought core.Thought, extraction codeExtraction, renderedPrompt string, tracker *progress.Tracker, formatEvidence *core.EvidenceItem) (core.Review, bool, error) {
	tracker.Advance(ctx, progress.StageWorkflowExecution, nil)

	evidence := workflow.RunAll(ctx, e.steps, workflow.Input{
		Code:          extraction.code,
		Language:      extraction.language,
		ThoughtText:   thought.Text,
		SessionID:     thought.SessionID,
		ThoughtNumber: thought.Number,
	})

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	review, err := e.judge.Invoke(execCtx, judge.AuditRequest{
		SessionID:      thought.SessionID,
		ThoughtNumber:  thought.Number,
		RenderedPrompt: renderedPrompt,
		Code:           extraction.code,
		TimeoutMS:      int(e.timeout / time.Millisecond),
	})
	if err != nil {
		return e.recover(ctx, err, tracker)
	}

	if formatEvidence != nil {
		review.Inline = append(review.Inline, core.InlineComment{Comment: formatEvidence.Description})
	}
	for _, item := range evidence {
		review.Inline = append(review.Inline, core.InlineComment{
			Path:    item.Location,
			Comment: string(item.Severity) + ": " + item.Description,
		})
	}
	tracker.Advance(ctx, progress.StageFeedbackGeneration, review)
	return *review, false, nil
}

// recover implements the recovery policy of spec.md §4.10.
func (e *Engine) recover(ctx context.Context, err error, tracker *progress.Tracker) (core.Review, bool, error) {
	switch {
	case core.IsRetryable(err):
		// A Transient failure this deep has already exhausted the Judge
		// Adapter's own retry budget (spec.md §4.1); treat like a protocol
		// failure rather than retrying again at this layer.
		fallthrough
	case errors.Is(err, core.ErrJudgeProtocolError):
		tracker.Advance(ctx, progress.StageFailed, nil)
		return core.Review{
			Overall: 0,
			Verdict: core.VerdictReject,
			Summary: "judge returned a malformed review",
			Inline:  []core.InlineComment{{Comment: err.Error()}},
		}, false, err

	case errors.Is(err, core.ErrJudgeUnavailable):
		tracker.Advance(ctx, progress.StageFailed, nil)
		return core.Review{
			Overall: 0,
			Verdict: core.VerdictReject,
			Summary: "judge unavailable",
			Inline:  []core.InlineComment{{Comment: "Critical: " + err.Error()}},
		}, false, err

	case errors.Is(err, core.ErrJudgeTimeout):
		tracker.Advance(ctx, progress.StageTimedOut, nil)
		if partial, ok := tracker.PartialResult(); ok && tracker.HasUsablePartial() {
			return *partial, true, err
		}
		return core.Review{
			Overall: 50,
			Verdict: core.VerdictRevise,
			Summary: "audit timed out before producing a complete review",
		}, true, err

	default:
		tracker.Advance(ctx, progress.StageFailed, nil)
		return core.Review{
			Overall: 0,
			Verdict: core.VerdictReject,
			Summary: "audit failed",
			Inline:  []core.InlineComment{{Comment: err.Error()}},
		}, false, err
	}
}

func (e *Engine) finish(start time.Time, sessionKey string, review core.Review, success, timedOut bool, err error) core.AuditOutcome {
	outcome := core.AuditOutcome{
		Review:     review,
		Success:    success,
		TimedOut:   timedOut,
		DurationMS: time.Since(start).Milliseconds(),
		SessionID:  sessionKey,
	}
	if err != nil {
		if ae, ok := err.(*core.AuditError); ok {
			outcome.Error = ae
		} else {
			outcome.Error = core.NewAuditError("engine.AuditAndWait", "EngineError", "Major", false, "inspect logs", err)
		}
	}
	return outcome
}

// codeExtraction is the Triage + Validate stages' shared result.
type codeExtraction struct {
	present         bool
	code            string
	language        string
	languageMissing bool
	malformedFence  bool
}

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)```")
	inlineCodePattern  = regexp.MustCompile("`([^`\n]+)`")
	codeTokenPattern   = regexp.MustCompile(`[{};]|\bfunc\b|\bdef\b|\bclass\b|\breturn\b|\bimport\b|=>`)
)

// extractCode implements the Triage stage of spec.md §4.10: detect whether
// thought carries code at all (fenced block, inline code, or a sufficient
// density of code-like tokens), and if so, the declared language fence.
// ExtractCode exposes the Triage stage's code detection to callers outside
// this package (the Prompt-Driven Auditor needs the same code text the
// engine will fingerprint, to compute a matching normalized fingerprint for
// its own session bookkeeping). Returns ok=false if no code was detected.
func ExtractCode(text string) (code string, ok bool) {
	e := extractCode(text)
	return e.code, e.present
}

func extractCode(text string) codeExtraction {
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		lang := strings.TrimSpace(m[1])
		return codeExtraction{
			present:         true,
			code:            m[2],
			language:        lang,
			languageMissing: lang == "",
			malformedFence:  lang == "",
		}
	}
	if matches := inlineCodePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		var parts []string
		for _, m := range matches {
			parts = append(parts, m[1])
		}
		return codeExtraction{present: true, code: strings.Join(parts, "\n"), languageMissing: true}
	}
	if len(codeTokenPattern.FindAllString(text, -1)) >= 3 {
		return codeExtraction{present: true, code: text, languageMissing: true}
	}
	return codeExtraction{}
}

// Package auditor implements the Prompt-Driven Auditor (spec.md §4.11):
// the per-thought wrapper around the Synchronous Audit Engine that renders
// a prompt, invokes the engine, and post-processes the result through the
// Completion Evaluator. Grounded on itsneelabh/gomind's
// orchestration.TemplatePromptBuilder for the render-then-fallback shape
// and on orchestration/executor.go's SmartExecutor for a dependency-holding
// wrapper driving one request end to end.
package auditor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kestrelcode/auditcore/internal/cache"
	"github.com/kestrelcode/auditcore/internal/completion"
	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/engine"
	"github.com/kestrelcode/auditcore/internal/prompt"
	"github.com/kestrelcode/auditcore/internal/session"
)

// ContextGatherer fetches the three opaque context strings the rendered
// prompt embeds (spec.md §4.11 step 2: "treat as opaque strings"). The
// workspace-reading mechanics live outside this repo's scope; callers
// supply whatever gathers PROJECT_CONTEXT/STEERING_RULES/SPEC_REQUIREMENTS
// for their environment.
type ContextGatherer interface {
	Gather(ctx context.Context, sessionID string) (projectContext, steeringRules, specRequirements string, err error)
}

// NoContextGatherer is the zero-value ContextGatherer: every field renders
// empty, which is a valid (if uninformative) prompt.
type NoContextGatherer struct{}

func (NoContextGatherer) Gather(ctx context.Context, sessionID string) (string, string, string, error) {
	return "", "", "", nil
}

// Config collects the Auditor's constructor dependencies.
//
// Engine must be constructed with Config.Sessions == nil: the Auditor owns
// the single canonical session append (with the enhanced review, after
// completion evaluation); an Engine with its own session store wired is
// for standalone direct use of the Synchronous Audit Engine (spec.md
// §4.10) outside the Prompt-Driven Auditor, where no enhancement step
// exists to wait for.
type Config struct {
	Engine     *engine.Engine
	Sessions   session.Store
	Completion *completion.Evaluator
	Stagnation *completion.Detector
	Prompt     *prompt.Engine
	Context    ContextGatherer
	Logger     core.Logger
	Identity   core.IdentityConfig
	Quality    QualityConfig
}

// QualityConfig carries the numbers rendered into PromptVariables that
// describe the engine's own tuning (spec.md §3 PromptVariables), so a
// rendered prompt can describe the exact thresholds governing it.
type QualityConfig struct {
	ModelContextTokens  int
	MaxIterations       int
	StagnationThreshold float64
	QualityDimensions   string
	CompletionTiers     string
	KillSwitches        string
}

// Auditor wraps engine.Engine with prompt rendering and completion
// post-processing (spec.md §4.11).
type Auditor struct {
	engine     *engine.Engine
	sessions   session.Store
	completion *completion.Evaluator
	stagnation *completion.Detector
	prompt     *prompt.Engine
	context    ContextGatherer
	logger     core.Logger
	identity   core.IdentityConfig
	quality    QualityConfig
}

// New constructs an Auditor from cfg.
func New(cfg Config) *Auditor {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	ctxGatherer := cfg.Context
	if ctxGatherer == nil {
		ctxGatherer = NoContextGatherer{}
	}
	return &Auditor{
		engine:     cfg.Engine,
		sessions:   cfg.Sessions,
		completion: cfg.Completion,
		stagnation: cfg.Stagnation,
		prompt:     cfg.Prompt,
		context:    ctxGatherer,
		logger:     logger,
		identity:   cfg.Identity,
		quality:    cfg.Quality,
	}
}

// Result is what Audit returns to the caller: the engine outcome, the
// completion decision, and the synthesized next actions (spec.md §6
// Response shape).
type Result struct {
	Outcome    core.AuditOutcome
	Completion completion.Decision
	NextActions []core.NextAction
	SessionID  string
	Loop       int
}

// Audit runs thought through the full spec.md §4.11 pipeline: fetch
// session, gather context, render prompt, invoke the engine, evaluate
// completion, enhance the review, and persist the updated session.
func (a *Auditor) Audit(ctx context.Context, thought core.Thought) (Result, error) {
	key := session.Key(thought.SessionID, thought.BranchID)

	// Enforce "at most one in-flight audit per session" (spec.md §4.8,
	// §5) before touching the store at all.
	if a.sessions != nil && thought.SessionID != "" {
		unlock, ok := a.sessions.TryLock(key)
		if !ok {
			return Result{}, core.NewAuditError("auditor.Audit", "SessionBusy", "Minor", true,
				"retry once the in-flight audit for this session completes", core.ErrSessionBusy)
		}
		defer unlock()
	}

	// 1. Fetch session snapshot.
	var sess *core.Session
	if thought.SessionID != "" && a.sessions != nil {
		s, err := a.sessions.Create(ctx, thought.SessionID, thought.BranchID)
		if err != nil {
			return Result{}, err
		}
		if s.Completion.Status != "" && s.Completion.Status != core.CompletionInProgress {
			return Result{}, core.NewAuditError("auditor.Audit", "SessionTerminated", "Major", false,
				"start a new session or branch", core.ErrSessionTerminated)
		}
		sess = s
	} else {
		sess = &core.Session{ID: thought.SessionID, BranchID: thought.BranchID}
	}

	// 2. Gather opaque context strings.
	projectContext, steeringRules, specRequirements, err := a.context.Gather(ctx, thought.SessionID)
	if err != nil {
		a.logger.Warn("context gathering failed, proceeding with empty context", map[string]interface{}{
			"sessionId": thought.SessionID, "error": err.Error(),
		})
	}

	// 3. Render the prompt. prompt.Engine.Render uses the built-in minimal
	// template when no template file was loaded and has no error path; a
	// template file that fails to load is rejected earlier, by
	// prompt.NewEngine, and never reaches the Auditor.
	vars := core.PromptVariables{
		IdentityName:        a.identity.Name,
		IdentityRole:        a.identity.Role,
		IdentityStance:      a.identity.Stance,
		IdentityAuthority:   a.identity.Authority,
		ModelContextTokens:  a.quality.ModelContextTokens,
		AuditTimeoutMS:      0,
		CurrentLoop:         sess.CurrentLoop + 1,
		MaxIterations:       a.quality.MaxIterations,
		StagnationThreshold: a.quality.StagnationThreshold,
		QualityDimensionsRendered: a.quality.QualityDimensions,
		CompletionTiersRendered:   a.quality.CompletionTiers,
		KillSwitchesRendered:      a.quality.KillSwitches,
		ProjectContext:      projectContext,
		SteeringRules:       steeringRules,
		SpecRequirements:    specRequirements,
	}
	rendered := a.prompt.Render(vars.ToMap())

	// 4. Invoke the Synchronous Audit Engine with the rendered prompt
	// attached to the audit request.
	outcome := a.engine.AuditAndWaitWithPrompt(ctx, thought, rendered.Prompt)

	// 5. Post-process: evaluate completion.
	loop := sess.CurrentLoop + 1
	var fingerprint, normalizedCode string
	if code, ok := engine.ExtractCode(thought.Text); ok {
		normalizedCode = cache.NormalizeCode(code)
		fingerprint = cache.Fingerprint(code, thought.Number)
	}

	var stagnationState *core.StagnationState
	if a.stagnation != nil {
		history := append(append([]core.IterationRecord{}, sess.History...), core.IterationRecord{
			Review:         outcome.Review,
			NormalizedCode: normalizedCode,
		})
		state := a.stagnation.Detect(history, loop)
		stagnationState = &state
	}
	decision := a.completion.Evaluate(outcome.Review.Overall, loop, stagnationState)

	nextActions := buildNextActions(decision, outcome.Review)

	// 6. Enhance the review.
	enhanced := outcome.Review
	switch decision.Status {
	case core.CompletionCompleted:
		enhanced.Summary += fmt.Sprintf(" ✅ COMPLETION: %s", decision.Reason)
		enhanced.JudgeCards = append(enhanced.JudgeCards, core.JudgeCard{Model: "completion-evaluator", Notes: decision.Reason})
	case core.CompletionTerminated:
		enhanced.Summary += fmt.Sprintf(" ⚠️ TERMINATED: %s", decision.Reason)
		enhanced.JudgeCards = append(enhanced.JudgeCards, core.JudgeCard{Model: "completion-evaluator", Notes: decision.Reason})
	}
	outcome.Review = enhanced

	// 7. Persist the updated session.
	if thought.SessionID != "" && a.sessions != nil {
		iter := core.IterationRecord{
			Loop:      loop,
			Thought:   thought,
			Review:    enhanced,
			Timestamp: sess.UpdatedAt,
		}
		if _, err := a.sessions.Append(ctx, key, iter); err != nil {
			a.logger.Warn("failed to persist iteration", map[string]interface{}{"sessionKey": key, "error": err.Error()})
		}
		completionState := core.CompletionState{
			Status:          decision.Status,
			Reason:          decision.Reason,
			Tier:            decision.Tier,
			KillSwitch:      decision.KillSwitch,
			TargetThreshold: decision.TargetThreshold,
		}
		if err := a.sessions.UpdateCompletion(ctx, key, completionState); err != nil {
			a.logger.Warn("failed to persist completion state", map[string]interface{}{"sessionKey": key, "error": err.Error()})
		}
		if stagnationState != nil {
			if err := a.sessions.UpdateStagnation(ctx, key, *stagnationState); err != nil {
				a.logger.Warn("failed to persist stagnation state", map[string]interface{}{"sessionKey": key, "error": err.Error()})
			}
		}
	}

	return Result{
		Outcome:     outcome,
		Completion:  decision,
		NextActions: nextActions,
		SessionID:   key,
		Loop:        loop,
	}, nil
}

// buildNextActions implements spec.md §4.11 step 5's tagged-sum action
// list.
func buildNextActions(decision completion.Decision, review core.Review) []core.NextAction {
	switch decision.Status {
	case core.CompletionCompleted:
		return []core.NextAction{{Tag: core.NextActionComplete, Description: decision.Reason}}
	case core.CompletionTerminated:
		return []core.NextAction{{Tag: core.NextActionEscalate, Description: decision.Reason}}
	}

	var actions []core.NextAction
	criticalCount := 0
	for _, c := range review.Inline {
		if containsCritical(c.Comment) {
			criticalCount++
		}
	}
	if criticalCount > 0 {
		actions = append(actions, core.NextAction{
			Tag:         core.NextActionFixCritical,
			Priority:    "critical",
			Description: fmt.Sprintf("%d critical issue(s) must be resolved before completion", criticalCount),
		})
	}

	dimensions := append([]core.Dimension{}, review.Dimensions...)
	sort.Slice(dimensions, func(i, j int) bool { return dimensions[i].Name < dimensions[j].Name })
	for _, d := range dimensions {
		if d.Score < 70 {
			actions = append(actions, core.NextAction{
				Tag:         core.NextActionImprove,
				Priority:    "medium",
				Dimension:   d.Name,
				Description: fmt.Sprintf("%s scored %d, below the 70 improvement threshold", d.Name, d.Score),
			})
		}
	}
	if len(actions) == 0 {
		actions = append(actions, core.NextAction{Tag: core.NextActionContinue})
	}
	return actions
}

func containsCritical(comment string) bool {
	return strings.Contains(strings.ToLower(comment), "critical")
}

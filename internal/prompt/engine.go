package prompt

import (
	"os"

	"github.com/kestrelcode/auditcore/internal/core"
)

// fallbackTemplate is a minimal, always-valid template (spec.md §4.11:
// "The fallback is itself a valid template and must not fail"). It carries
// every required section heading and every required variable reference.
const fallbackTemplate = `
## Identity & Role Definition
You are ${IDENTITY_NAME | default: the auditor}, acting in the role of ${IDENTITY_ROLE | default: a code reviewer}, with a ${IDENTITY_STANCE | default: constructive-adversarial} stance. Context budget: ${MODEL_CONTEXT_TOKENS | default: 8000} tokens.

## Audit Workflow
Review the submitted code at loop ${CURRENT_LOOP | default: 1} of ${MAX_ITERATIONS | default: 25}.

## Multi-Dimensional Quality Assessment
Score correctness, maintainability, and security independently.

## Intelligent Completion Criteria
${COMPLETION_TIERS_RENDERED | default: Escalate once a score threshold holds for enough consecutive loops.}

## Structured Output Format
Return a structured review: overall score, per-dimension scores, inline comments, verdict, and a summary.
`

// Engine loads, validates, and renders one prompt template, using
// fallbackTemplate when no template path is configured. It does not fall
// back when a configured template cannot be read or fails validation:
// NewEngine returns that error instead.
type Engine struct {
	primary  *Template
	fallback *Template
	logger   core.Logger
}

// NewEngine parses fallbackTemplate eagerly (it must never fail) and
// optionally loads templatePath as the primary template.
func NewEngine(templatePath string, logger core.Logger) (*Engine, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	fallback, err := Parse(fallbackTemplate)
	if err != nil {
		// The fallback template is a repo invariant, not configuration — a
		// failure here is a programming error, not a runtime condition.
		panic("auditcore: built-in fallback prompt template is invalid: " + err.Error())
	}

	e := &Engine{fallback: fallback, logger: logger}
	if templatePath == "" {
		return e, nil
	}

	content, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, core.NewAuditError("prompt.NewEngine", "TemplateError", "Major", false,
			"check prompt.template.path", err)
	}
	primary, err := Parse(string(content))
	if err != nil {
		return nil, err
	}
	e.primary = primary
	return e, nil
}

// Render renders the primary template if loaded, else the fallback.
// Rendering has no error path: unresolved variables and length problems
// are reported as warnings in the RenderResult and logged.
func (e *Engine) Render(vars map[string]interface{}) RenderResult {
	tmpl := e.primary
	if tmpl == nil {
		tmpl = e.fallback
	}
	result := tmpl.Render(vars)
	for _, w := range result.Warnings {
		e.logger.Warn("prompt render warning", map[string]interface{}{"warning": w})
	}
	return result
}

// UsingFallback reports whether the engine has no primary template loaded.
func (e *Engine) UsingFallback() bool {
	return e.primary == nil
}

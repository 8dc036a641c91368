// Package judge implements the Judge Adapter (spec.md §4.1): a uniform call
// surface over an external code-reviewing process, returning either a
// validated core.Review or a typed failure. Grounded on
// itsneelabh/gomind's ai.AIClient adapter pattern (ai/interfaces.go,
// ai/providers/openai/client.go) — same shape, swapped domain: the Judge
// returns a structured review instead of free text.
package judge

import (
	"context"

	"github.com/kestrelcode/auditcore/internal/core"
)

// AuditRequest is everything the Judge needs to produce one Review.
type AuditRequest struct {
	SessionID      string
	ThoughtNumber  int
	RenderedPrompt string
	Code           string
	TimeoutMS      int
}

// Adapter is the uniform call surface over the external reviewer.
// Implementations return one of the sentinel errors in core (errors.go):
// ErrJudgeUnavailable, ErrJudgeTimeout, ErrJudgeProtocolError,
// ErrJudgeTransient, wrapped in a *core.AuditError.
type Adapter interface {
	Invoke(ctx context.Context, req AuditRequest) (*core.Review, error)
}

var (
	_ Adapter = (*HTTPJudge)(nil)
	_ Adapter = (*MockJudge)(nil)
)

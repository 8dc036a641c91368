// Package workflow implements the eight advisory Workflow Step
// Collaborators (spec.md §3, §9): lightweight analyzers that each
// contribute zero or more core.EvidenceItem findings alongside the Judge's
// own review. spec.md §9 explicitly allows implementations to stub these
// out rather than run real tools ("implementers are free to either wire
// them to real tools or leave them as stubs — the core engine is correct
// either way"); these stay simple heuristics over the extracted code text,
// grounded on itsneelabh/gomind's capability-handler shape
// (core/capability.go: a named unit with a Handle(ctx, input) (output,
// error) contract) generalized from one tool-call handler to eight
// evidence producers run in sequence by the Engine.
package workflow

import (
	"context"

	"github.com/kestrelcode/auditcore/internal/core"
)

// Input is what every Step receives: the code under review plus whatever
// the Engine already knows about the request.
type Input struct {
	Code          string
	Language      string
	ThoughtText   string
	SessionID     string
	ThoughtNumber int

	// PriorEvidence holds every EvidenceItem contributed by steps that
	// already ran this audit, in order. RunAll threads it through so a
	// later step (VerdictStep) can synthesize from earlier findings
	// instead of re-deriving them.
	PriorEvidence []core.EvidenceItem
}

// Step is one workflow-step collaborator (spec.md §3). A Step must never
// propagate a panic or error out to its caller; Run folds both into a
// single Major EvidenceItem so "one failing step does not abort the
// audit" (spec.md §7).
type Step interface {
	Name() string
	Run(ctx context.Context, in Input) []core.EvidenceItem
}

// RunAll executes steps in order, recovering each step's panics and
// swallowing its own bookkeeping errors into a single Major EvidenceItem,
// and concatenates every step's findings. A later step still runs even if
// an earlier one panicked (spec.md §7: no single step may abort the
// audit).
func RunAll(ctx context.Context, steps []Step, in Input) []core.EvidenceItem {
	var items []core.EvidenceItem
	for _, step := range steps {
		in.PriorEvidence = items
		items = append(items, runOne(ctx, step, in)...)
	}
	return items
}

func runOne(ctx context.Context, step Step, in Input) (items []core.EvidenceItem) {
	defer func() {
		if r := recover(); r != nil {
			items = []core.EvidenceItem{{
				Type:        "workflow-step-panic",
				Severity:    core.SeverityMajor,
				Location:    step.Name(),
				Description: "workflow step panicked and was skipped",
			}}
		}
	}()
	return step.Run(ctx, in)
}

// Default returns the eight built-in steps in the order spec.md §9
// implies they'd run: establish the environment, attempt reproduction,
// static analysis, test execution, dynamic analysis, conformance checks,
// execution tracing, and finally a verdict-shaping summary pass.
func Default() []Step {
	return []Step{
		InitStep{},
		ReproStep{},
		StaticStep{},
		TestsStep{},
		DynamicStep{},
		ConformStep{},
		TraceStep{},
		VerdictStep{},
	}
}

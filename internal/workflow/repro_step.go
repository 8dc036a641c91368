package workflow

import (
	"context"
	"regexp"

	"github.com/kestrelcode/auditcore/internal/core"
)

// ReproStep looks for a plausible reproduction entry point (a main
// function or a test function) rather than actually executing anything —
// spec.md §9 allows this step to stay a stub.
type ReproStep struct{}

func (ReproStep) Name() string { return "repro" }

var entryPointPattern = regexp.MustCompile(`\bfunc\s+(main|Test\w+|Example\w+)\s*\(`)

func (ReproStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	if entryPointPattern.MatchString(in.Code) {
		return nil
	}
	return []core.EvidenceItem{{
		Type: "repro", Severity: core.SeverityMinor,
		Description: "no main/Test/Example entry point found; reproduction steps are unverified",
	}}
}

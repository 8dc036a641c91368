package workflow

import (
	"context"

	"github.com/kestrelcode/auditcore/internal/core"
)

// VerdictStep runs last and contributes a single summary item when any
// earlier step raised a finding, and nothing otherwise — spec.md §9 allows
// this to stay a simple synthesis pass rather than a real verdict engine;
// the Judge itself still owns the actual Verdict.
type VerdictStep struct{}

func (VerdictStep) Name() string { return "verdict" }

func (VerdictStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	if len(in.PriorEvidence) == 0 {
		return nil
	}
	return []core.EvidenceItem{{
		Type: "verdict", Severity: core.SeverityMinor,
		Description: "workflow steps raised findings the Judge should weigh alongside its own review",
	}}
}

package workflow

import (
	"context"
	"regexp"

	"github.com/kestrelcode/auditcore/internal/core"
)

// TestsStep notes whether the submission carries its own tests. It does
// not execute anything (spec.md §1 places sandboxed execution out of
// scope for this library).
type TestsStep struct{}

func (TestsStep) Name() string { return "tests" }

var testFuncPattern = regexp.MustCompile(`\bfunc\s+Test\w+\s*\(\s*\w+\s*\*testing\.T\s*\)`)

func (TestsStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	if testFuncPattern.MatchString(in.Code) {
		return nil
	}
	return []core.EvidenceItem{{
		Type: "tests", Severity: core.SeverityMinor,
		Description: "no accompanying test function found in the submitted code",
	}}
}

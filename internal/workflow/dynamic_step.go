package workflow

import (
	"context"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// DynamicStep flags textual markers of side-effecting calls that a real
// dynamic analyzer would sandbox and trace. It never runs the submitted
// code (spec.md §1 Non-goals: no sandboxed execution).
type DynamicStep struct{}

func (DynamicStep) Name() string { return "dynamic" }

var dangerousCalls = []string{
	"os.RemoveAll", "os/exec", "exec.Command", "os.Remove(", "syscall.Exec",
}

func (DynamicStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	var items []core.EvidenceItem
	for _, marker := range dangerousCalls {
		if strings.Contains(in.Code, marker) {
			items = append(items, core.EvidenceItem{
				Type: "dynamic", Severity: core.SeverityMajor,
				Description: "code references a side-effecting call (" + marker + ") untested by static review alone",
				Proof:       marker,
			})
		}
	}
	return items
}

package workflow

import (
	"context"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// InitStep establishes the basic shape of the submission: is there code at
// all, and does it look truncated.
type InitStep struct{}

func (InitStep) Name() string { return "init" }

func (InitStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	trimmed := strings.TrimSpace(in.Code)
	if trimmed == "" {
		return []core.EvidenceItem{{
			Type: "init", Severity: core.SeverityMajor,
			Description: "no code content reached the workflow steps",
		}}
	}

	var items []core.EvidenceItem
	if looksTruncated(trimmed) {
		items = append(items, core.EvidenceItem{
			Type: "init", Severity: core.SeverityMinor,
			Description: "code block appears truncated (unbalanced braces/parens)",
		})
	}
	return items
}

func looksTruncated(code string) bool {
	balance := 0
	for _, r := range code {
		switch r {
		case '{', '(', '[':
			balance++
		case '}', ')', ']':
			balance--
		}
	}
	return balance != 0
}

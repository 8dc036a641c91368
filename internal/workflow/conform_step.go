package workflow

import (
	"context"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// ConformStep checks a few cheap style-conformance signals: mixed
// tab/space indentation and trailing whitespace.
type ConformStep struct{}

func (ConformStep) Name() string { return "conform" }

func (ConformStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	lines := strings.Split(in.Code, "\n")
	sawTabs, sawSpaces := false, false
	var items []core.EvidenceItem

	for _, line := range lines {
		if strings.HasPrefix(line, "\t") {
			sawTabs = true
		} else if strings.HasPrefix(line, "    ") {
			sawSpaces = true
		}
		if strings.TrimRight(line, " \t") != line && line != "" {
			items = append(items, core.EvidenceItem{
				Type: "conform", Severity: core.SeverityMinor,
				Description: "trailing whitespace found",
			})
			break
		}
	}
	if sawTabs && sawSpaces {
		items = append(items, core.EvidenceItem{
			Type: "conform", Severity: core.SeverityMinor,
			Description: "mixed tab and space indentation",
		})
	}
	return items
}

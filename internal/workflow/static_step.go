package workflow

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// StaticStep runs a handful of cheap textual lints in place of a real
// static analyzer (spec.md §9 stub allowance): swallowed errors, bare
// panics, and leftover TODO/FIXME markers.
type StaticStep struct{}

func (StaticStep) Name() string { return "static" }

var ignoredErrPattern = regexp.MustCompile(`_\s*=\s*\w+\.\w*[Ee]rr\w*\b|_\s*,\s*_\s*:?=`)

func (StaticStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	var items []core.EvidenceItem
	lines := strings.Split(in.Code, "\n")

	for i, line := range lines {
		switch {
		case ignoredErrPattern.MatchString(line):
			items = append(items, core.EvidenceItem{
				Type: "static", Severity: core.SeverityMinor,
				Location:    lineLoc(i),
				Description: "error return appears discarded",
				Proof:       strings.TrimSpace(line),
			})
		case strings.Contains(line, "panic("):
			items = append(items, core.EvidenceItem{
				Type: "static", Severity: core.SeverityMinor,
				Location:    lineLoc(i),
				Description: "bare panic in non-test code",
				Proof:       strings.TrimSpace(line),
			})
		case strings.Contains(line, "TODO") || strings.Contains(line, "FIXME"):
			items = append(items, core.EvidenceItem{
				Type: "static", Severity: core.SeverityMinor,
				Location:    lineLoc(i),
				Description: "unresolved TODO/FIXME left in submitted code",
				Proof:       strings.TrimSpace(line),
			})
		}
	}
	return items
}

func lineLoc(zeroIndexed int) string {
	return "line " + strconv.Itoa(zeroIndexed+1)
}

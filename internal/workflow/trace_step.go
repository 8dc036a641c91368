package workflow

import (
	"context"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// TraceStep notes whether the code leaves any observability trail
// (logging, tracing spans) a reviewer could later use to diagnose a
// production issue.
type TraceStep struct{}

func (TraceStep) Name() string { return "trace" }

var traceMarkers = []string{"log.", "logger.", "slog.", "StartSpan", "zap.", "logrus."}

func (TraceStep) Run(ctx context.Context, in Input) []core.EvidenceItem {
	for _, marker := range traceMarkers {
		if strings.Contains(in.Code, marker) {
			return nil
		}
	}
	return []core.EvidenceItem{{
		Type: "trace", Severity: core.SeverityMinor,
		Description: "no logging or tracing calls found; failures in this code would be silent",
	}}
}

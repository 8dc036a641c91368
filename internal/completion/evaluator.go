package completion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kestrelcode/auditcore/internal/core"
)

// Decision is the Completion Evaluator's tagged-sum result (spec.md §9:
// "dynamic record shapes -> typed unions").
type Decision struct {
	Status            core.CompletionStatus
	Reason            string
	Tier              string
	KillSwitch        string
	NextThoughtNeeded bool
	TargetThreshold   int
}

// Evaluator is the pure tiered-termination state machine of spec.md §4.9.
// Constructed once per engine from a validated core.CompletionCriteria.
type Evaluator struct {
	criteria core.CompletionCriteria
}

// NewEvaluator validates criteria at construction (spec.md §4.9:
// "Configuration validation ... violations are rejected at construction").
func NewEvaluator(criteria core.CompletionCriteria) (*Evaluator, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{criteria: criteria}, nil
}

// Evaluate implements the exact decision table in spec.md §4.9, checked in
// descending tier order so a score qualifying for multiple tiers realizes
// the highest one.
func (e *Evaluator) Evaluate(score, loop int, stagnation *core.StagnationState) Decision {
	c := e.criteria

	if stagnation != nil && stagnation.Detected && loop >= c.Stagnation.StartLoop {
		return Decision{Status: core.CompletionTerminated, Reason: "stagnation_detected", KillSwitch: "stagnation"}
	}
	if loop >= c.HardStop.MaxLoops {
		return Decision{Status: core.CompletionTerminated, Reason: "max_loops_reached", KillSwitch: "hard_stop"}
	}
	if score >= c.Tier1.Score && loop >= c.Tier1.MinLoops {
		return Decision{Status: core.CompletionCompleted, Reason: "score_95_at_10", Tier: "tier1"}
	}
	if score >= c.Tier2.Score && loop >= c.Tier2.MinLoops {
		return Decision{Status: core.CompletionCompleted, Reason: "score_90_at_15", Tier: "tier2"}
	}
	if score >= c.Tier3.Score && loop >= c.Tier3.MinLoops {
		return Decision{Status: core.CompletionCompleted, Reason: "score_85_at_20", Tier: "tier3"}
	}

	return Decision{
		Status:            core.CompletionInProgress,
		Reason:            "continue",
		NextThoughtNeeded: true,
		TargetThreshold:   e.targetThreshold(loop),
	}
}

// targetThreshold is the lowest tier whose minLoops has been reached, or
// tier1's score if none have (spec.md §4.9). As loops accumulate the
// engine's bar to clear drops from tier1's 95 to tier3's 85.
func (e *Evaluator) targetThreshold(loop int) int {
	c := e.criteria
	switch {
	case loop >= c.Tier3.MinLoops:
		return c.Tier3.Score
	case loop >= c.Tier2.MinLoops:
		return c.Tier2.Score
	case loop >= c.Tier1.MinLoops:
		return c.Tier1.Score
	default:
		return c.Tier1.Score
	}
}

// Assessment is shouldTerminate's final-summary output (spec.md §4.9).
type Assessment struct {
	FinalScore      int
	Verdict         core.Verdict
	FailureRate     float64
	TopIssues       []string
	Recommendation  string
}

// ShouldTerminate computes failureRate over the full session history and
// extracts up to ten critical issues from the most recent three
// iterations, building the final assessment described in spec.md §4.9.
func ShouldTerminate(session *core.Session) Assessment {
	history := session.History
	if len(history) == 0 {
		return Assessment{}
	}

	rejects := 0
	for _, h := range history {
		if h.Review.Verdict == core.VerdictReject {
			rejects++
		}
	}
	failureRate := float64(rejects) / float64(len(history))

	last := history
	if n := len(history); n > 3 {
		last = history[n-3:]
	}

	issues := extractCriticalIssues(last, 10)
	final := history[len(history)-1]

	topFive := issues
	if len(topFive) > 5 {
		topFive = topFive[:5]
	}

	return Assessment{
		FinalScore:     final.Review.Overall,
		Verdict:        final.Review.Verdict,
		FailureRate:    failureRate,
		TopIssues:      issues,
		Recommendation: buildRecommendation(final, failureRate, topFive),
	}
}

// extractCriticalIssues pulls deduplicated, stable-ordered inline comments
// mentioning "critical", "security", or "error" from the given iterations,
// capped at max.
func extractCriticalIssues(iterations []core.IterationRecord, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, iter := range iterations {
		for _, comment := range iter.Review.Inline {
			lower := strings.ToLower(comment.Comment)
			if !strings.Contains(lower, "critical") && !strings.Contains(lower, "security") && !strings.Contains(lower, "error") {
				continue
			}
			if _, dup := seen[comment.Comment]; dup {
				continue
			}
			seen[comment.Comment] = struct{}{}
			out = append(out, comment.Comment)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}

func buildRecommendation(final core.IterationRecord, failureRate float64, topIssues []string) string {
	sorted := append([]string(nil), topIssues...)
	sort.Strings(sorted)
	return fmt.Sprintf("final score %d, verdict %s, failure rate %.2f, %d issue(s) outstanding",
		final.Review.Overall, final.Review.Verdict, failureRate, len(sorted))
}

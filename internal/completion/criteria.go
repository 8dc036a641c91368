// Package completion implements the Completion Evaluator (spec.md §4.9):
// a pure tiered termination state machine over (score, loop, stagnation),
// plus the stagnation detector that feeds it and a shouldTerminate-style
// final-assessment helper. Grounded on spec.md §4.9's own pseudocode —
// there is no direct teacher analog for a tiered scoring state machine, so
// this package is written in the teacher's general idiom (pure functions
// over value types, constructor-time Validate()) rather than adapted from
// a specific teacher file.
package completion

import "github.com/kestrelcode/auditcore/internal/core"

// ValidateCriteria re-exposes core.CompletionCriteria.Validate under this
// package for callers that construct an Evaluator directly from config.
func ValidateCriteria(c core.CompletionCriteria) error {
	return c.Validate()
}

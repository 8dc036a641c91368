package completion

import (
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEvaluator(t *testing.T) *Evaluator {
	e, err := NewEvaluator(core.DefaultCompletionCriteria())
	require.NoError(t, err)
	return e
}

func TestEvaluate_Scenario1_Tier1Completion(t *testing.T) {
	e := defaultEvaluator(t)
	d := e.Evaluate(97, 11, &core.StagnationState{})
	assert.Equal(t, core.CompletionCompleted, d.Status)
	assert.Equal(t, "score_95_at_10", d.Reason)
	assert.False(t, d.NextThoughtNeeded)
}

func TestEvaluate_Scenario2_TargetThresholdTracksTiers(t *testing.T) {
	e := defaultEvaluator(t)

	d1 := e.Evaluate(88, 14, nil)
	assert.Equal(t, core.CompletionInProgress, d1.Status)
	assert.Equal(t, 95, d1.TargetThreshold)

	d2 := e.Evaluate(88, 15, nil)
	assert.Equal(t, core.CompletionInProgress, d2.Status, "88 < tier2.score(90), should not complete")
	assert.Equal(t, 90, d2.TargetThreshold)
}

func TestEvaluate_Scenario3_HardStopRegardlessOfScore(t *testing.T) {
	e := defaultEvaluator(t)
	d := e.Evaluate(70, 25, nil)
	assert.Equal(t, core.CompletionTerminated, d.Status)
	assert.Equal(t, "max_loops_reached", d.Reason)
}

func TestEvaluate_StagnationTakesPriorityOverTiers(t *testing.T) {
	e := defaultEvaluator(t)
	d := e.Evaluate(97, 11, &core.StagnationState{Detected: true})
	assert.Equal(t, core.CompletionTerminated, d.Status)
	assert.Equal(t, "stagnation_detected", d.Reason)
}

func TestEvaluate_TiersCheckedDescending(t *testing.T) {
	e := defaultEvaluator(t)
	// Qualifies for tier1, tier2, and tier3 simultaneously; highest wins.
	d := e.Evaluate(99, 25-1, nil)
	assert.Equal(t, "score_95_at_10", d.Reason)
}

func TestNewEvaluator_RejectsInvalidCriteria(t *testing.T) {
	bad := core.DefaultCompletionCriteria()
	bad.Tier1.Score = 80 // now less than tier2.Score (90): violates ordering
	_, err := NewEvaluator(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfigurationInvalid)
}

func TestShouldTerminate_ComputesFailureRateAndIssues(t *testing.T) {
	session := &core.Session{
		History: []core.IterationRecord{
			{Review: core.Review{Overall: 40, Verdict: core.VerdictReject, Inline: []core.InlineComment{{Comment: "critical: SQL injection"}}}},
			{Review: core.Review{Overall: 60, Verdict: core.VerdictRevise}},
			{Review: core.Review{Overall: 80, Verdict: core.VerdictPass, Inline: []core.InlineComment{{Comment: "minor nit"}}}},
		},
	}
	assessment := ShouldTerminate(session)
	assert.InDelta(t, 1.0/3.0, assessment.FailureRate, 0.001)
	assert.Equal(t, 80, assessment.FinalScore)
}

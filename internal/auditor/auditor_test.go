package auditor

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelcode/auditcore/internal/cache"
	"github.com/kestrelcode/auditcore/internal/completion"
	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/engine"
	"github.com/kestrelcode/auditcore/internal/judge"
	"github.com/kestrelcode/auditcore/internal/prompt"
	"github.com/kestrelcode/auditcore/internal/queue"
	"github.com/kestrelcode/auditcore/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuditor(t *testing.T, j judge.Adapter, sessions session.Store) *Auditor {
	t.Helper()
	eng := engine.New(engine.Config{
		Judge:      j,
		Queue:      queue.NewAuditQueue(4, nil),
		AuditCache: cache.NewLRUCache[core.Review](100, time.Minute, 1<<20),
		Timeout:    time.Second,
		Enabled:    true,
	})
	promptEngine, err := prompt.NewEngine("", nil)
	require.NoError(t, err)

	criteria := core.DefaultCompletionCriteria()
	evaluator, err := completion.NewEvaluator(criteria)
	require.NoError(t, err)
	detector := completion.NewDetector(criteria.Stagnation)

	return New(Config{
		Engine:     eng,
		Sessions:   sessions,
		Completion: evaluator,
		Stagnation: detector,
		Prompt:     promptEngine,
		Quality:    QualityConfig{MaxIterations: criteria.HardStop.MaxLoops, StagnationThreshold: criteria.Stagnation.SimilarityThreshold},
	})
}

func TestAudit_InvokesEngineAndPersistsSession(t *testing.T) {
	sessions := session.NewInMemoryStore()
	a := newTestAuditor(t, judge.NewMockJudge(), sessions)

	result, err := a.Audit(context.Background(), core.Thought{
		Number: 1, Text: "```go\nfunc add(a, b int) int { return a + b }\n```", SessionID: "sess-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loop)
	assert.NotEmpty(t, result.NextActions)

	got, err := sessions.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, got.History, 1)
}

func TestAudit_SessionBusyWhenLockHeld(t *testing.T) {
	sessions := session.NewInMemoryStore()
	a := newTestAuditor(t, judge.NewMockJudge(), sessions)

	unlock, ok := sessions.TryLock(session.Key("sess-1", ""))
	require.True(t, ok)
	defer unlock()

	_, err := a.Audit(context.Background(), core.Thought{Number: 1, Text: "```go\nfunc f(){}\n```", SessionID: "sess-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSessionBusy)
}

func TestAudit_SessionTerminatedRejectsFurtherAudits(t *testing.T) {
	sessions := session.NewInMemoryStore()
	key := session.Key("sess-1", "")
	_, err := sessions.Create(context.Background(), "sess-1", "")
	require.NoError(t, err)
	require.NoError(t, sessions.UpdateCompletion(context.Background(), key, core.CompletionState{Status: core.CompletionTerminated, Reason: "stagnation_detected"}))

	a := newTestAuditor(t, judge.NewMockJudge(), sessions)
	_, err = a.Audit(context.Background(), core.Thought{Number: 1, Text: "```go\nfunc f(){}\n```", SessionID: "sess-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSessionTerminated)
}

type criticalFindingJudge struct{}

func (criticalFindingJudge) Invoke(ctx context.Context, req judge.AuditRequest) (*core.Review, error) {
	return &core.Review{
		Overall: 40,
		Verdict: core.VerdictRevise,
		Inline:  []core.InlineComment{{Comment: "Critical: SQL injection in query builder"}},
	}, nil
}

func TestAudit_NextActionsFlagCriticalInlineComments(t *testing.T) {
	a := newTestAuditor(t, criticalFindingJudge{}, session.NewInMemoryStore())

	result, err := a.Audit(context.Background(), core.Thought{Number: 1, Text: "```go\nfunc f(){}\n```"})
	require.NoError(t, err)
	require.NotEmpty(t, result.NextActions)
	assert.Equal(t, core.NextActionFixCritical, result.NextActions[0].Tag)
}

func TestAudit_NoSessionIDSkipsPersistence(t *testing.T) {
	a := newTestAuditor(t, judge.NewMockJudge(), session.NewInMemoryStore())

	result, err := a.Audit(context.Background(), core.Thought{Number: 1, Text: "```go\nfunc f(){}\n```"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loop)
}

package progress

import (
	"context"
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_AdvanceEmitsUpdate(t *testing.T) {
	tr := NewTracker(4)
	tr.Advance(context.Background(), StageInitializing, nil)

	update := <-tr.Updates()
	assert.Equal(t, StageInitializing, update.Stage)
	assert.Equal(t, 5, update.CompletionPercentage)
}

func TestTracker_PartialResultCarriesForward(t *testing.T) {
	tr := NewTracker(4)
	review := &core.Review{Overall: 80}
	tr.Advance(context.Background(), StageFeedbackGeneration, review)
	<-tr.Updates()

	tr.Advance(context.Background(), StageTimedOut, nil)
	update := <-tr.Updates()
	require.NotNil(t, update.PartialResult)
	assert.Equal(t, 80, update.PartialResult.Overall)
}

func TestTracker_HasUsablePartial(t *testing.T) {
	tr := NewTracker(4)
	assert.False(t, tr.HasUsablePartial())

	tr.Advance(context.Background(), StageWorkflowExecution, &core.Review{Overall: 50})
	assert.False(t, tr.HasUsablePartial(), "non-terminal stage should not be usable")

	tr.Advance(context.Background(), StageCompleted, nil)
	assert.True(t, tr.HasUsablePartial())
}

func TestTracker_DoesNotBlockWhenFull(t *testing.T) {
	tr := NewTracker(1)
	for i := 0; i < 10; i++ {
		tr.Advance(context.Background(), StageWorkflowExecution, nil)
	}
	// draining once should still yield the most recent stage
	update := <-tr.Updates()
	assert.Equal(t, StageWorkflowExecution, update.Stage)
}

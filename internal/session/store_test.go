package session

import (
	"context"
	"testing"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_BranchDerivation(t *testing.T) {
	assert.Equal(t, "s1", Key("s1", ""))
	assert.Equal(t, "s1/b2", Key("s1", "b2"))
}

func testStores(t *testing.T) map[string]Store {
	dir := t.TempDir()
	fileStore, err := NewFileStore(dir)
	require.NoError(t, err)
	return map[string]Store{
		"inmemory": NewInMemoryStore(),
		"file":     fileStore,
	}
}

func TestStore_CreateGetAppend(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess, err := store.Create(ctx, "sess-1", "")
			require.NoError(t, err)
			assert.Equal(t, 0, sess.CurrentLoop)

			_, err = store.Append(ctx, Key("sess-1", ""), core.IterationRecord{
				Loop:   1,
				Review: core.Review{Overall: 80, Verdict: core.VerdictRevise},
			})
			require.NoError(t, err)

			got, err := store.Get(ctx, Key("sess-1", ""))
			require.NoError(t, err)
			assert.Equal(t, 1, got.CurrentLoop)
			assert.Len(t, got.History, 1)
		})
	}
}

func TestStore_AppendRejectedAfterTermination(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Create(ctx, "sess-2", "")
			require.NoError(t, err)
			key := Key("sess-2", "")

			require.NoError(t, store.UpdateCompletion(ctx, key, core.CompletionState{Status: core.CompletionCompleted}))

			_, err = store.Append(ctx, key, core.IterationRecord{Loop: 1})
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrSessionTerminated)
		})
	}
}

func TestStore_GetMissingReturnsNotFound(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestStore_TryLockPreventsConcurrentAudits(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			unlock, ok := store.TryLock("sess-3")
			require.True(t, ok)

			_, ok2 := store.TryLock("sess-3")
			assert.False(t, ok2, "second concurrent lock attempt should fail")

			unlock()
			_, ok3 := store.TryLock("sess-3")
			assert.True(t, ok3, "lock should be available after unlock")
		})
	}
}

func TestInMemoryStore_SweepEvictsColdSessions(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "cold", "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	evicted, err := store.Sweep(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = store.Get(ctx, Key("cold", ""))
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store1, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = store1.Create(context.Background(), "persisted", "")
	require.NoError(t, err)

	store2, err := NewFileStore(dir)
	require.NoError(t, err)
	sess, err := store2.Get(context.Background(), Key("persisted", ""))
	require.NoError(t, err)
	assert.Equal(t, "persisted", sess.ID)
}

func TestExport_ProducesJSON(t *testing.T) {
	sess := newSession("sess-4", "")
	data, err := Export(sess)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"id\": \"sess-4\"")
}

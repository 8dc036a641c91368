package resourcemgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SampleBelowWarning(t *testing.T) {
	m := New(core.ResourcesConfig{
		MaxHeapBytes:      1 << 40, // absurdly large so current usage is far below warning
		MemoryWarningPct:  0.8,
		MemoryCriticalPct: 0.95,
	}, nil, nil)

	w := m.Sample()
	assert.False(t, w.Warning)
	assert.False(t, w.Critical)
}

func TestManager_RunCleanup_OrdersByPriority(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)

	var order []string
	m.RegisterCleanup(CleanupTask{Name: "low", Priority: 1, Fn: func(ctx context.Context) error {
		order = append(order, "low")
		return nil
	}})
	m.RegisterCleanup(CleanupTask{Name: "high", Priority: 10, Fn: func(ctx context.Context) error {
		order = append(order, "high")
		return nil
	}})
	m.RegisterCleanup(CleanupTask{Name: "mid", Priority: 5, Fn: func(ctx context.Context) error {
		order = append(order, "mid")
		return nil
	}})

	require.NoError(t, m.RunCleanup(context.Background()))
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestManager_RunCleanup_CriticalFailureAborts(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)

	ran := map[string]bool{}
	m.RegisterCleanup(CleanupTask{Name: "critical-first", Priority: 10, Critical: true, Fn: func(ctx context.Context) error {
		ran["critical-first"] = true
		return errors.New("boom")
	}})
	m.RegisterCleanup(CleanupTask{Name: "never-runs", Priority: 1, Fn: func(ctx context.Context) error {
		ran["never-runs"] = true
		return nil
	}})

	err := m.RunCleanup(context.Background())
	require.Error(t, err)
	assert.True(t, ran["critical-first"])
	assert.False(t, ran["never-runs"])
}

func TestManager_RunCleanup_NonCriticalFailureContinues(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)

	ran := map[string]bool{}
	m.RegisterCleanup(CleanupTask{Name: "flaky", Priority: 10, Critical: false, Fn: func(ctx context.Context) error {
		ran["flaky"] = true
		return errors.New("minor failure")
	}})
	m.RegisterCleanup(CleanupTask{Name: "still-runs", Priority: 1, Fn: func(ctx context.Context) error {
		ran["still-runs"] = true
		return nil
	}})

	require.NoError(t, m.RunCleanup(context.Background()))
	assert.True(t, ran["flaky"])
	assert.True(t, ran["still-runs"])
}

func TestManager_TempArtifacts_ReleasedByCleanup(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.tmp")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	m.RegisterTempArtifact("a1", path)
	require.NoError(t, m.RunCleanup(context.Background()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestManager_TempArtifacts_ReleasedOnClose(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.tmp")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	m.RegisterTempArtifact("a1", path)
	m.Close()

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestManager_ReleaseTempArtifact_SkipsCleanup(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.tmp")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	m.RegisterTempArtifact("a1", path)
	m.ReleaseTempArtifact("a1")
	require.NoError(t, m.RunCleanup(context.Background()))

	_, err := os.Stat(path)
	assert.NoError(t, err, "manager should not touch a path once released voluntarily")
}

func TestManager_FDCounting(t *testing.T) {
	m := New(core.ResourcesConfig{}, nil, nil)
	m.AcquireFD()
	m.AcquireFD()
	m.ReleaseFD()
	assert.Equal(t, int64(1), m.FDCount())
}

func TestManager_CheckAndCleanup_ExhaustedWhenStillCritical(t *testing.T) {
	m := New(core.ResourcesConfig{
		MaxHeapBytes:      1, // any nonzero heap usage is already far above 0.95 of 1 byte
		MemoryWarningPct:  0.0,
		MemoryCriticalPct: 0.0,
		EnableAutoGC:      false,
	}, nil, nil)

	err := m.CheckAndCleanup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResourceExhausted)
}

// Package resourcemgr implements the Resource Manager (spec.md §5):
// process-wide memory/fd watermark sampling, a priority-ordered cleanup
// task chain that aborts on a critical task's failure, and a temporary-
// artifact registry guaranteed to be released on process exit or on a
// cleanup run. Grounded on itsneelabh/gomind's telemetry.Health periodic-
// sampler pattern (telemetry/health.go) for the watermark-sampling shape;
// watermark sampling itself uses runtime.ReadMemStats rather than a
// third-party library — nothing in the retrieved corpus wraps Go's own
// heap introspection, and the teacher's own health sampler is stdlib-only
// at this layer too.
package resourcemgr

import (
	"context"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/telemetry"
)

// CleanupTask is one entry in the Resource Manager's priority-ordered
// cleanup chain (SPEC_FULL.md §6). Higher Priority runs first; a Critical
// task's failure stops the remaining chain from running at all.
type CleanupTask struct {
	Name     string
	Priority int
	Critical bool
	Fn       func(context.Context) error
}

// Watermark is one point-in-time sample of process memory usage against
// the configured heap budget.
type Watermark struct {
	HeapAllocBytes uint64
	Pct           float64
	Warning       bool
	Critical      bool
}

// Manager owns process-wide resource watermarks, the cleanup task chain,
// and the temp-artifact registry. One Manager is a process-wide singleton
// constructed at boot (spec.md §9).
type Manager struct {
	cfg    core.ResourcesConfig
	logger core.Logger
	meter  *telemetry.Meter

	mu    sync.Mutex
	tasks []CleanupTask

	artifactsMu sync.Mutex
	artifacts   map[string]string

	fdCount atomic.Int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Manager from cfg. meter may be nil (watermark gauges are
// simply not published).
func New(cfg core.ResourcesConfig, logger core.Logger, meter *telemetry.Meter) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		meter:     meter,
		artifacts: make(map[string]string),
		stop:      make(chan struct{}),
	}
}

// RegisterCleanup adds task to the cleanup chain. Safe for concurrent use.
func (m *Manager) RegisterCleanup(task CleanupTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

// RegisterTempArtifact tracks path under id so it is guaranteed to be
// removed by Close or a later cleanup run, even if the caller that created
// it never explicitly releases it (spec.md §5: "guaranteed to be released
// on process exit or on cleanup runs").
func (m *Manager) RegisterTempArtifact(id, path string) {
	m.artifactsMu.Lock()
	defer m.artifactsMu.Unlock()
	m.artifacts[id] = path
}

// ReleaseTempArtifact forgets id. The caller is responsible for removing
// the underlying file itself when it releases voluntarily; Close and
// RunCleanup only reach artifacts that were never released this way.
func (m *Manager) ReleaseTempArtifact(id string) {
	m.artifactsMu.Lock()
	defer m.artifactsMu.Unlock()
	delete(m.artifacts, id)
}

// AcquireFD / ReleaseFD let callers that open file descriptors (e.g. the
// Session Store's FileStore) report usage against
// resources.maxFileDescriptors without this package reaching into OS-level
// fd tables itself.
func (m *Manager) AcquireFD() { m.fdCount.Add(1) }
func (m *Manager) ReleaseFD() { m.fdCount.Add(-1) }

func (m *Manager) FDCount() int64 { return m.fdCount.Load() }

// Sample reads current heap usage via runtime.ReadMemStats and reports the
// watermark against resources.maxHeapBytes (spec.md §5: "80% warning / 95%
// critical of configured heap budget" by default, taken from
// cfg.MemoryWarningPct/MemoryCriticalPct).
func (m *Manager) Sample() Watermark {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var pct float64
	if m.cfg.MaxHeapBytes > 0 {
		pct = float64(stats.HeapAlloc) / float64(m.cfg.MaxHeapBytes)
	}
	w := Watermark{
		HeapAllocBytes: stats.HeapAlloc,
		Pct:            pct,
		Warning:        pct >= m.cfg.MemoryWarningPct,
		Critical:       pct >= m.cfg.MemoryCriticalPct,
	}
	if m.meter != nil {
		m.meter.RecordValue(context.Background(), "resource.memory.watermark_pct", pct, nil)
	}
	return w
}

// CheckAndCleanup samples current usage and, at or above the warning
// watermark, runs the cleanup chain. If usage is still at or above the
// critical watermark afterward, it returns ResourceExhausted (spec.md §7:
// "triggers cleanup and, if still critical, returns a revise-verdict").
func (m *Manager) CheckAndCleanup(ctx context.Context) error {
	w := m.Sample()
	if !w.Warning {
		return nil
	}
	m.logger.Warn("resource watermark above warning threshold, running cleanup", map[string]interface{}{
		"pct": w.Pct,
	})
	if err := m.RunCleanup(ctx); err != nil {
		m.logger.Error("cleanup chain aborted", map[string]interface{}{"error": err.Error()})
	}

	w = m.Sample()
	if w.Critical {
		if m.cfg.EnableAutoGC {
			runtime.GC()
			w = m.Sample()
		}
		if w.Critical {
			return core.NewAuditError("resourcemgr.CheckAndCleanup", "ResourceExhausted", "Major", false,
				"reduce concurrent audit load or raise resources.maxHeapBytes", core.ErrResourceExhausted)
		}
	}
	return nil
}

// RunCleanup executes the registered tasks highest-priority-first. A
// Critical task's failure stops the remaining chain (spec.md §5:
// "critical failures abort the cleanup chain"); a non-critical failure is
// logged and the chain continues.
func (m *Manager) RunCleanup(ctx context.Context) error {
	m.mu.Lock()
	ordered := append([]CleanupTask(nil), m.tasks...)
	m.mu.Unlock()

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	for _, task := range ordered {
		if err := task.Fn(ctx); err != nil {
			m.logger.Warn("cleanup task failed", map[string]interface{}{
				"task": task.Name, "critical": task.Critical, "error": err.Error(),
			})
			if task.Critical {
				return core.NewAuditError("resourcemgr.RunCleanup", "ResourceExhausted", "Critical", false,
					"inspect cleanup task "+task.Name, err)
			}
		}
	}
	m.reapOrphanedArtifacts()
	return nil
}

// reapOrphanedArtifacts removes every still-registered temp artifact. It
// is itself the lowest-priority implicit cleanup step, always run last.
func (m *Manager) reapOrphanedArtifacts() {
	m.artifactsMu.Lock()
	defer m.artifactsMu.Unlock()
	for id, path := range m.artifacts {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove temp artifact", map[string]interface{}{"path": path, "error": err.Error()})
		}
		delete(m.artifacts, id)
	}
}

// StartWatermarkLoop periodically samples and publishes watermarks every
// interval until Close is called. Intended to run once for the lifetime
// of the process.
func (m *Manager) StartWatermarkLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				if err := m.CheckAndCleanup(ctx); err != nil {
					m.logger.Error("resource check failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()
}

// Close stops the watermark loop and releases every still-registered temp
// artifact (spec.md §5: "guaranteed to be released on process exit").
func (m *Manager) Close() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.wg.Wait()
	m.reapOrphanedArtifacts()
}

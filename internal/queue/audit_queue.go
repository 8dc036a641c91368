// Package queue implements the Audit Queue (spec.md §4.3): bounded-
// concurrency admission control for in-flight audits. Grounded on
// itsneelabh/gomind's orchestration.TaskWorkerPool (worker-count config,
// atomic active-count tracking, context-cancellable waits), generalized
// from a fixed worker pool into an admission gate sitting in front of the
// Synchronous Audit Engine.
package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
	"golang.org/x/sync/semaphore"
)

// AuditQueue admits at most maxConcurrent in-flight audits. Waiters are
// served FIFO (golang.org/x/sync/semaphore.Weighted queues acquires in
// arrival order); a canceled context unblocks the waiter immediately
// without consuming a slot.
type AuditQueue struct {
	sem           *semaphore.Weighted
	maxConcurrent int64
	active        atomic.Int64
	waiting       atomic.Int64
	logger        core.Logger
}

// NewAuditQueue builds a queue admitting at most maxConcurrent audits at
// once (spec.md §6: audit.queue.maxConcurrent, default 4).
func NewAuditQueue(maxConcurrent int, logger core.Logger) *AuditQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &AuditQueue{
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: int64(maxConcurrent),
		logger:        logger,
	}
}

// Release is returned by Acquire; the caller must invoke it exactly once
// to free the slot, whether the audit succeeded, failed, or timed out.
type Release func()

// Acquire blocks until a slot is free or ctx is canceled. A stalled
// in-flight audit occupies its slot until its own timeout elapses
// elsewhere (spec.md §4.3); Acquire only governs admission.
func (q *AuditQueue) Acquire(ctx context.Context) (Release, error) {
	q.waiting.Add(1)
	defer q.waiting.Add(-1)

	start := time.Now()
	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.logger.Debug("audit queue wait canceled", map[string]interface{}{
			"waited_ms": time.Since(start).Milliseconds(),
		})
		return nil, core.NewAuditError("queue.acquire", "QueueCanceled", "Minor", false,
			"retry the submission", fmt.Errorf("%w: %v", core.ErrQueueCanceled, err))
	}

	q.active.Add(1)
	var released atomic.Bool
	release := func() {
		if released.CompareAndSwap(false, true) {
			q.active.Add(-1)
			q.sem.Release(1)
		}
	}
	return release, nil
}

// Stats reports point-in-time queue occupancy.
type Stats struct {
	Active        int64
	Waiting       int64
	MaxConcurrent int64
}

func (q *AuditQueue) Stats() Stats {
	return Stats{
		Active:        q.active.Load(),
		Waiting:       q.waiting.Load(),
		MaxConcurrent: q.maxConcurrent,
	}
}

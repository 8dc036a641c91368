// Package session implements the Session Store (spec.md §4.8): the
// authoritative record of per-session thought history, completion state,
// and stagnation signals. Grounded on itsneelabh/gomind's pkg/memory.Memory
// interface and its InMemoryStore/RedisMemory implementations
// (pkg/memory/interfaces.go, pkg/memory/implementations.go), generalized
// from an opaque key-value store into a typed Session record store with
// per-session locking and branch addressing.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
)

// Key derives the storage address for a session, folding branch
// exploration (spec.md §4.8: "addressed by id and optionally by
// (branchId, head)") into a single string key: "id" or "id/branchId".
func Key(sessionID, branchID string) string {
	if branchID == "" {
		return sessionID
	}
	return sessionID + "/" + branchID
}

// Store is the Session Store contract (spec.md §4.8 operations).
type Store interface {
	Create(ctx context.Context, sessionID, branchID string) (*core.Session, error)
	Get(ctx context.Context, key string) (*core.Session, error)
	Append(ctx context.Context, key string, iter core.IterationRecord) (*core.Session, error)
	UpdateCompletion(ctx context.Context, key string, completion core.CompletionState) error
	UpdateStagnation(ctx context.Context, key string, stagnation core.StagnationState) error
	Destroy(ctx context.Context, key string) error

	// TryLock enforces "at most one in-flight audit per session" (spec.md
	// §4.8, §5). It returns ok=false immediately (never blocks) when
	// another audit already holds the lock for key; the caller should
	// surface core.ErrSessionBusy. unlock must be called exactly once
	// when ok is true.
	TryLock(key string) (unlock func(), ok bool)

	// Sweep evicts sessions last updated more than maxAge ago, returning
	// the number evicted (spec.md §4.8: "maxSessionAge evicts cold
	// sessions on a cleanup interval").
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// lockManager is the shared per-session mutual-exclusion mechanism used by
// every Store implementation, independent of where session bytes live.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockManager() *lockManager {
	return &lockManager{locks: make(map[string]*sync.Mutex)}
}

func (lm *lockManager) TryLock(key string) (func(), bool) {
	lm.mu.Lock()
	m, ok := lm.locks[key]
	if !ok {
		m = &sync.Mutex{}
		lm.locks[key] = m
	}
	lm.mu.Unlock()

	if !m.TryLock() {
		return nil, false
	}
	var released sync.Once
	return func() { released.Do(m.Unlock) }, true
}

// applyAppend is the append-only invariant shared by every backend:
// currentLoop == len(history) after the append, history grows by exactly
// one record, and a terminated session rejects further audits (spec.md
// §3).
func applyAppend(s *core.Session, iter core.IterationRecord) error {
	if s.Completion.Status != "" && s.Completion.Status != core.CompletionInProgress {
		return core.NewAuditError("session.Append", "SessionTerminated", "Major", false,
			"start a new session or branch", core.ErrSessionTerminated)
	}
	s.History = append(s.History, iter)
	s.CurrentLoop = len(s.History)
	review := iter.Review
	s.LastReview = &review
	s.UpdatedAt = time.Now()
	return nil
}

func cloneSession(s *core.Session) *core.Session {
	b, _ := json.Marshal(s)
	var out core.Session
	_ = json.Unmarshal(b, &out)
	return &out
}

func newSession(sessionID, branchID string) *core.Session {
	now := time.Now()
	return &core.Session{
		ID:        sessionID,
		BranchID:  branchID,
		History:   []core.IterationRecord{},
		Completion: core.CompletionState{Status: core.CompletionInProgress},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Export renders a read-only audit-trail dump of session for a caller
// that wants to show a human the whole history after termination
// (SPEC_FULL.md §6 supplemented feature).
func Export(s *core.Session) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

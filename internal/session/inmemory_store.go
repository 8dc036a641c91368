package session

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
)

// InMemoryStore is the default Session Store backend — process-local,
// grounded on pkg/memory.InMemoryStore's map-plus-mutex shape, generalized
// to hold typed *core.Session records instead of opaque values.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	locks    *lockManager
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		locks:    newLockManager(),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, sessionID, branchID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(sessionID, branchID)
	if existing, ok := s.sessions[key]; ok {
		return cloneSession(existing), nil
	}
	sess := newSession(sessionID, branchID)
	s.sessions[key] = sess
	return cloneSession(sess), nil
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, core.NewAuditError("session.Get", "SessionNotFound", "Minor", false, "", core.ErrSessionNotFound)
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) Append(ctx context.Context, key string, iter core.IterationRecord) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, core.NewAuditError("session.Append", "SessionNotFound", "Minor", false, "", core.ErrSessionNotFound)
	}
	if err := applyAppend(sess, iter); err != nil {
		return nil, err
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) UpdateCompletion(ctx context.Context, key string, completion core.CompletionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return core.NewAuditError("session.UpdateCompletion", "SessionNotFound", "Minor", false, "", core.ErrSessionNotFound)
	}
	sess.Completion = completion
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) UpdateStagnation(ctx context.Context, key string, stagnation core.StagnationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return core.NewAuditError("session.UpdateStagnation", "SessionNotFound", "Minor", false, "", core.ErrSessionNotFound)
	}
	sess.Stagnation = stagnation
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) Destroy(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

func (s *InMemoryStore) TryLock(key string) (func(), bool) {
	return s.locks.TryLock(key)
}

func (s *InMemoryStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	now := time.Now()
	for key, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt) > maxAge {
			delete(s.sessions, key)
			evicted++
		}
	}
	return evicted, nil
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
)

// FileStore persists one file per session under stateDirectory (spec.md
// §4.8: "durable per-session records in a configured state directory").
// Grounded on the same map-plus-mutex shape as InMemoryStore, with reads
// and writes going through the filesystem instead of an in-process map.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	locks *lockManager
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewAuditError("session.NewFileStore", "ConfigurationInvalid", "Critical", false,
			"check session.stateDirectory permissions", err)
	}
	return &FileStore{dir: dir, locks: newLockManager()}, nil
}

func (s *FileStore) pathFor(key string) string {
	safe := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStore) read(key string) (*core.Session, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewAuditError("session.read", "SessionNotFound", "Minor", false, "", core.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("read session %s: %w", key, err)
	}
	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

func (s *FileStore) write(key string, sess *core.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	tmp := s.pathFor(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", key, err)
	}
	return os.Rename(tmp, s.pathFor(key))
}

func (s *FileStore) Create(ctx context.Context, sessionID, branchID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(sessionID, branchID)
	if existing, err := s.read(key); err == nil {
		return existing, nil
	}
	sess := newSession(sessionID, branchID)
	if err := s.write(key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

func (s *FileStore) Append(ctx context.Context, key string, iter core.IterationRecord) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.read(key)
	if err != nil {
		return nil, err
	}
	if err := applyAppend(sess, iter); err != nil {
		return nil, err
	}
	if err := s.write(key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *FileStore) UpdateCompletion(ctx context.Context, key string, completion core.CompletionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.read(key)
	if err != nil {
		return err
	}
	sess.Completion = completion
	sess.UpdatedAt = time.Now()
	return s.write(key, sess)
}

func (s *FileStore) UpdateStagnation(ctx context.Context, key string, stagnation core.StagnationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.read(key)
	if err != nil {
		return err
	}
	sess.Stagnation = stagnation
	sess.UpdatedAt = time.Now()
	return s.write(key, sess)
}

func (s *FileStore) Destroy(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) TryLock(key string) (func(), bool) {
	return s.locks.TryLock(key)
}

func (s *FileStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	evicted := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var sess core.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if now.Sub(sess.UpdatedAt) > maxAge {
			_ = os.Remove(path)
			evicted++
		}
	}
	return evicted, nil
}

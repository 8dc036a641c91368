package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kestrelcode/auditcore/internal/core"
)

// RedisStore is the optional durable, multi-process-restart-surviving
// Session Store backend, adapted directly from
// pkg/memory.RedisMemory (pkg/memory/implementations.go): namespaced keys,
// JSON-serialized values, a connectivity check at construction. This is
// for durability across restarts of a single engine process, not for
// distributed coordination between concurrently-running engines (spec.md
// §7 non-goals).
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	locks     *lockManager
}

// NewRedisStore connects to redisURL and namespaces every key under
// namespace (default "auditcore:session"). maxAge becomes the Redis key
// TTL applied on every write, so session.maxAgeMs (spec.md §6) is enforced
// natively by Redis expiry rather than a scan-and-delete Sweep pass; zero
// means no expiry.
func NewRedisStore(redisURL, namespace string, maxAge time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewAuditError("session.NewRedisStore", "ConfigurationInvalid", "Critical", false,
			"check session.redisURL", fmt.Errorf("invalid redis URL: %w", err))
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewAuditError("session.NewRedisStore", "ConfigurationInvalid", "Critical", false,
			"verify Redis is reachable", fmt.Errorf("failed to connect to redis: %w", err))
	}

	if namespace == "" {
		namespace = "auditcore:session"
	}
	return &RedisStore{client: client, namespace: namespace, ttl: maxAge, locks: newLockManager()}, nil
}

func (s *RedisStore) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

func (s *RedisStore) read(ctx context.Context, key string) (*core.Session, error) {
	data, err := s.client.Get(ctx, s.buildKey(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, core.NewAuditError("session.read", "SessionNotFound", "Minor", false, "", core.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}
	var sess core.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	return &sess, nil
}

func (s *RedisStore) write(ctx context.Context, key string, sess *core.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	return s.client.Set(ctx, s.buildKey(key), data, ttl).Err()
}

func (s *RedisStore) Create(ctx context.Context, sessionID, branchID string) (*core.Session, error) {
	key := Key(sessionID, branchID)
	if existing, err := s.read(ctx, key); err == nil {
		return existing, nil
	}
	sess := newSession(sessionID, branchID)
	if err := s.write(ctx, key, sess, s.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*core.Session, error) {
	return s.read(ctx, key)
}

func (s *RedisStore) Append(ctx context.Context, key string, iter core.IterationRecord) (*core.Session, error) {
	sess, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := applyAppend(sess, iter); err != nil {
		return nil, err
	}
	if err := s.write(ctx, key, sess, s.ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) UpdateCompletion(ctx context.Context, key string, completion core.CompletionState) error {
	sess, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	sess.Completion = completion
	sess.UpdatedAt = time.Now()
	return s.write(ctx, key, sess, s.ttl)
}

func (s *RedisStore) UpdateStagnation(ctx context.Context, key string, stagnation core.StagnationState) error {
	sess, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	sess.Stagnation = stagnation
	sess.UpdatedAt = time.Now()
	return s.write(ctx, key, sess, s.ttl)
}

func (s *RedisStore) Destroy(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.buildKey(key)).Err()
}

func (s *RedisStore) TryLock(key string) (func(), bool) {
	return s.locks.TryLock(key)
}

// Sweep is a no-op for RedisStore: maxSessionAge is instead enforced as a
// Redis TTL that this store sets on every write from the maxAge passed to
// NewRedisStore, since Redis already expires keys natively rather than
// needing a scan-and-delete pass.
func (s *RedisStore) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

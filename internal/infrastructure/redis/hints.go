package redisinfra

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HintStore remembers the verification handle issued to a device so an
// interrupted flow can be resumed. Load returns "" when nothing is stored.
type HintStore interface {
	SaveHandle(ctx context.Context, deviceID, handle string) error
	LoadHandle(ctx context.Context, deviceID string) (string, error)
	ClearHandle(ctx context.Context, deviceID string) error
}

type kvClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisHintStore struct {
	client kvClient
	ttl    time.Duration
	prefix string
}

// NewHintStore returns a Redis-backed store, or an in-memory one when client is nil.
func NewHintStore(client *redis.Client, ttl time.Duration) HintStore {
	if client == nil {
		return NewMemoryHintStore(ttl)
	}
	return &redisHintStore{client: client, ttl: ttl, prefix: "wave:handle:"}
}

func (s *redisHintStore) SaveHandle(ctx context.Context, deviceID, handle string) error {
	return s.client.Set(ctx, s.prefix+deviceID, handle, s.ttl).Err()
}

func (s *redisHintStore) LoadHandle(ctx context.Context, deviceID string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+deviceID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *redisHintStore) ClearHandle(ctx context.Context, deviceID string) error {
	return s.client.Del(ctx, s.prefix+deviceID).Err()
}

type memoryHint struct {
	handle    string
	expiresAt time.Time
}

// MemoryHintStore keeps hints in process memory. Entries vanish on restart.
type MemoryHintStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	hints map[string]memoryHint
	now   func() time.Time
}

func NewMemoryHintStore(ttl time.Duration) *MemoryHintStore {
	return &MemoryHintStore{ttl: ttl, hints: make(map[string]memoryHint), now: time.Now}
}

func (s *MemoryHintStore) SaveHandle(_ context.Context, deviceID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints[deviceID] = memoryHint{handle: handle, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryHintStore) LoadHandle(_ context.Context, deviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hints[deviceID]
	if !ok {
		return "", nil
	}
	if s.now().After(h.expiresAt) {
		delete(s.hints, deviceID)
		return "", nil
	}
	return h.handle, nil
}

func (s *MemoryHintStore) ClearHandle(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hints, deviceID)
	return nil
}

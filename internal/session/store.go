package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 12 * time.Hour

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisStore keeps sessions as JSON documents with a sliding TTL.
type RedisStore struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s RedisStore) key(id uuid.UUID) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "pos:session:"
	}
	return prefix + id.String()
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTTL
	}
	return s.TTL
}

// Get loads a session.
func (s RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	if s.R == nil {
		return nil, errors.New("session: redis client not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Save writes a session and refreshes its TTL.
func (s RedisStore) Save(ctx context.Context, sess *Session) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.R.Set(ctx, s.key(sess.ID), data, s.ttl()).Err()
}

// Delete removes a session. Deleting a missing session is not an error.
func (s RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	return s.R.Del(ctx, s.key(id)).Err()
}

// MemoryStore keeps sessions in process. Stored values are copied through
// JSON so callers never share state with the store.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	items map[uuid.UUID]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryStore constructs an in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{TTL: ttl, items: make(map[uuid.UUID]memoryEntry)}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Get loads a session.
func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.items[id]
	if ok && !m.now().Before(entry.expires) {
		delete(m.items, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var sess Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Save stores a session and refreshes its TTL.
func (m *MemoryStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[uuid.UUID]memoryEntry)
	}
	ttl := m.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.items[sess.ID] = memoryEntry{data: data, expires: m.now().Add(ttl)}
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

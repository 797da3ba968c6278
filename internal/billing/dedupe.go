package billing

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultDedupeTTL outlives the provider's retry window for a delivery.
const DefaultDedupeTTL = 72 * time.Hour

// Deduper remembers which event IDs were already processed.
type Deduper interface {
	// Claim returns true the first time it sees eventID.
	Claim(ctx context.Context, eventID string) (bool, error)
}

// MemoryDeduper keeps claims in process memory. It covers one warm Lambda
// container or one local server.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper whose claims expire after ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryDeduper) Claim(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, expires := range m.seen {
		if now.After(expires) {
			delete(m.seen, id)
		}
	}
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = now.Add(m.ttl)
	return true, nil
}

// RedisDeduper claims event IDs with SET NX so every instance shares the
// same view. When Redis is unreachable it falls back to process memory.
type RedisDeduper struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	fallback *MemoryDeduper
}

// NewRedisDeduper creates a RedisDeduper with keys under "billing:event:".
func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{
		client:   client,
		prefix:   "billing:event:",
		ttl:      ttl,
		fallback: NewMemoryDeduper(ttl),
	}
}

func (r *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+eventID, time.Now().Unix(), r.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("eventId", eventID).Msg("Redis dedupe unavailable, using in-memory claims")
		return r.fallback.Claim(ctx, eventID)
	}
	return ok, nil
}

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/simplelru"
)

const (
	DefaultShards  = 32
	DefaultMaxKeys = 100_000
)

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// refill brings the bucket up to now. The refill is committed even when the caller is
// about to be denied; a clock that moved backwards adds nothing and keeps lastRefill.
func (b *bucket) refill(limit Limit, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(limit.Capacity, b.tokens+limit.tokensFor(elapsed))
	b.lastRefill = now
}

type shard struct {
	mu      sync.Mutex
	buckets *simplelru.LRU
}

// MemoryLimiter is an in-process token bucket limiter. Keys are spread over shards so
// unrelated keys never share a lock; each shard is an LRU so the key set stays bounded.
type MemoryLimiter struct {
	limit  Limit
	clock  Clock
	shards []*shard
}

type Option func(*options)

type options struct {
	clock   Clock
	shards  int
	maxKeys int
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithMaxKeys bounds the number of tracked keys. Least recently used keys are dropped first.
func WithMaxKeys(n int) Option {
	return func(o *options) { o.maxKeys = n }
}

func NewMemoryLimiter(limit Limit, opts ...Option) (*MemoryLimiter, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: SystemClock, shards: DefaultShards, maxKeys: DefaultMaxKeys}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards <= 0 {
		return nil, fmt.Errorf("shards must be positive, got %d", o.shards)
	}
	if o.maxKeys < o.shards {
		return nil, fmt.Errorf("max keys (%d) must be at least the shard count (%d)", o.maxKeys, o.shards)
	}

	perShard := o.maxKeys / o.shards
	m := &MemoryLimiter{
		limit:  limit,
		clock:  o.clock,
		shards: make([]*shard, o.shards),
	}
	for i := range m.shards {
		lru, err := simplelru.NewLRU(perShard, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create shard %d: %w", i, err)
		}
		m.shards[i] = &shard{buckets: lru}
	}
	return m, nil
}

func (m *MemoryLimiter) shardFor(key string) *shard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// lockBucket returns the key's bucket locked, creating a full one on first use. The bucket
// lock is taken before the shard lock is released, so Sweep cannot drop a bucket between
// lookup and spend.
func (m *MemoryLimiter) lockBucket(key string) *bucket {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	var b *bucket
	if v, ok := s.buckets.Get(key); ok {
		b = v.(*bucket)
	} else {
		b = &bucket{tokens: m.limit.Capacity, lastRefill: m.clock.Now()}
		s.buckets.Add(key, b)
	}
	b.mu.Lock()
	return b
}

// TryAcquire takes cost tokens from key's bucket if they are available.
func (m *MemoryLimiter) TryAcquire(key string, cost float64) bool {
	return m.take(key, cost).Allowed
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, cost float64) (Decision, error) {
	return m.take(key, cost), nil
}

func (m *MemoryLimiter) take(key string, cost float64) Decision {
	if !m.limit.validCost(cost) {
		return Decision{Allowed: false}
	}

	b := m.lockBucket(key)
	defer b.mu.Unlock()

	now := m.clock.Now()
	b.refill(m.limit, now)

	if b.tokens >= cost {
		b.tokens -= cost
		return Decision{
			Allowed:   true,
			Remaining: int64(math.Floor(b.tokens)),
			ResetAt:   now.Add(m.limit.durationFor(m.limit.Capacity - b.tokens)),
		}
	}

	wait := m.limit.durationFor(cost - b.tokens)
	return Decision{
		Allowed:    false,
		Remaining:  int64(math.Floor(b.tokens)),
		RetryAfter: wait,
		ResetAt:    now.Add(m.limit.durationFor(m.limit.Capacity - b.tokens)),
	}
}

// Sweep drops buckets that would be full by now. A dropped key comes back as a full
// bucket, so sweeping never changes an admission outcome. Returns the number dropped.
func (m *MemoryLimiter) Sweep() int {
	now := m.clock.Now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, k := range s.buckets.Keys() {
			v, ok := s.buckets.Peek(k)
			if !ok {
				continue
			}
			b := v.(*bucket)
			b.mu.Lock()
			full := b.tokens+m.limit.tokensFor(now.Sub(b.lastRefill)) >= m.limit.Capacity
			b.mu.Unlock()
			if full {
				s.buckets.Remove(k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += s.buckets.Len()
		s.mu.Unlock()
	}
	return n
}

func (m *MemoryLimiter) Limit() Limit {
	return m.limit
}

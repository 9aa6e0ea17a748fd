package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var perMinute = Limit{Capacity: 10, Rate: 10, Period: time.Minute}

func newTestLimiter(t *testing.T, limit Limit, opts ...Option) (*MemoryLimiter, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	l, err := NewMemoryLimiter(limit, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return l, clock
}

func TestMemoryLimiter_NewKeyAdmitsCapacityThenDenies(t *testing.T) {
	l, _ := newTestLimiter(t, perMinute)

	for i := 0; i < 10; i++ {
		require.True(t, l.TryAcquire("10.0.0.1", 1), "request %d should be admitted", i+1)
	}
	assert.False(t, l.TryAcquire("10.0.0.1", 1), "11th request in the same instant should be denied")
}

func TestMemoryLimiter_RefillIsProportional(t *testing.T) {
	l, clock := newTestLimiter(t, perMinute)
	for i := 0; i < 10; i++ {
		l.TryAcquire("k", 1)
	}

	clock.Advance(6 * time.Second)
	assert.True(t, l.TryAcquire("k", 1), "6s at 10/min refills one token")
	assert.False(t, l.TryAcquire("k", 1))

	clock.Advance(30 * time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, l.TryAcquire("k", 1), "30s refills five tokens, request %d", i+1)
	}
	assert.False(t, l.TryAcquire("k", 1))
}

func TestMemoryLimiter_RefillCapsAtCapacity(t *testing.T) {
	l, clock := newTestLimiter(t, perMinute)
	l.TryAcquire("k", 1)

	clock.Advance(24 * time.Hour)
	admitted := 0
	for i := 0; i < 20; i++ {
		if l.TryAcquire("k", 1) {
			admitted++
		}
	}
	assert.Equal(t, 10, admitted)
}

func TestMemoryLimiter_RefillCommittedOnDeny(t *testing.T) {
	l, clock := newTestLimiter(t, perMinute)
	for i := 0; i < 10; i++ {
		l.TryAcquire("k", 1)
	}

	clock.Advance(3 * time.Second)
	assert.False(t, l.TryAcquire("k", 1), "half a token is not enough")

	clock.Advance(3 * time.Second)
	assert.True(t, l.TryAcquire("k", 1), "two half refills add up to one token")
}

func TestMemoryLimiter_ClockGoingBackwardsAddsNothing(t *testing.T) {
	l, clock := newTestLimiter(t, perMinute)
	for i := 0; i < 10; i++ {
		l.TryAcquire("k", 1)
	}

	clock.Advance(-time.Hour)
	assert.False(t, l.TryAcquire("k", 1))

	clock.Advance(time.Hour + 6*time.Second)
	assert.True(t, l.TryAcquire("k", 1))
}

func TestMemoryLimiter_InvalidCostDenied(t *testing.T) {
	l, _ := newTestLimiter(t, perMinute)

	assert.False(t, l.TryAcquire("k", 0))
	assert.False(t, l.TryAcquire("k", -1))
	assert.False(t, l.TryAcquire("k", 11))

	d, err := l.Allow(context.Background(), "k", 10)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "invalid costs must not have consumed tokens")
	assert.Equal(t, int64(0), d.Remaining)
}

func TestMemoryLimiter_DecisionFields(t *testing.T) {
	l, clock := newTestLimiter(t, perMinute)
	ctx := context.Background()

	d, err := l.Allow(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)
	assert.Equal(t, clock.Now().Add(6*time.Second), d.ResetAt)

	for i := 0; i < 9; i++ {
		_, _ = l.Allow(ctx, "k", 1)
	}
	d, err = l.Allow(ctx, "k", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 6*time.Second, d.RetryAfter)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, perMinute)
	for i := 0; i < 10; i++ {
		l.TryAcquire("a", 1)
	}
	assert.False(t, l.TryAcquire("a", 1))
	assert.True(t, l.TryAcquire("b", 1))
}

func TestMemoryLimiter_ConcurrentSameKeyAdmitsExactlyCapacity(t *testing.T) {
	l, _ := newTestLimiter(t, perMinute)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("hot", 1) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted.Load())
}

func TestMemoryLimiter_ConcurrentManyKeys(t *testing.T) {
	l, _ := newTestLimiter(t, perMinute)

	var wg sync.WaitGroup
	counts := make([]atomic.Int64, 50)
	for k := 0; k < 50; k++ {
		for i := 0; i < 15; i++ {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				if l.TryAcquire(fmt.Sprintf("client-%d", k), 1) {
					counts[k].Add(1)
				}
			}(k)
		}
	}
	wg.Wait()

	for k := range counts {
		assert.Equal(t, int64(10), counts[k].Load(), "client-%d", k)
	}
}

func TestMemoryLimiter_MaxKeysBound(t *testing.T) {
	l, _ := newTestLimiter(t, perMinute, WithShards(1), WithMaxKeys(4))

	for i := 0; i < 10; i++ {
		l.TryAcquire(fmt.Sprintf("k%d", i), 1)
	}
	assert.Equal(t, 4, l.Len())
}

func TestMemoryLimiter_SweepDropsOnlyFullBuckets(t *testing.T) {
	l, clock := newTestLimiter(t, perMinute)

	l.TryAcquire("idle", 1)
	clock.Advance(10 * time.Second)
	for i := 0; i < 10; i++ {
		l.TryAcquire("busy", 1)
	}

	removed := l.Sweep()
	assert.Equal(t, 1, removed, "idle bucket refilled to capacity, busy one did not")
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.TryAcquire("busy", 1), "sweep must not reset a drained bucket")
}

func TestMemoryLimiter_SweepDuringAcquireNeverOverAdmits(t *testing.T) {
	l, _ := newTestLimiter(t, Limit{Capacity: 1, Rate: 1, Period: time.Hour}, WithShards(1), WithMaxKeys(1024))

	stop := make(chan struct{})
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		for {
			select {
			case <-stop:
				return
			default:
				l.Sweep()
			}
		}
	}()

	const rounds, callers = 500, 8
	for round := 0; round < rounds; round++ {
		key := fmt.Sprintf("client-%d", round)
		var admitted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.TryAcquire(key, 1) {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), admitted.Load(), "round %d", round)
	}

	close(stop)
	sweeper.Wait()
}

func TestNewMemoryLimiter_RejectsBadConfig(t *testing.T) {
	_, err := NewMemoryLimiter(Limit{Capacity: 0, Rate: 1, Period: time.Second})
	assert.Error(t, err)

	_, err = NewMemoryLimiter(perMinute, WithShards(0))
	assert.Error(t, err)

	_, err = NewMemoryLimiter(perMinute, WithShards(8), WithMaxKeys(4))
	assert.Error(t, err)
}

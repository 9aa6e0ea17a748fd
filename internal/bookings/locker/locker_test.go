package locker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/pkg/logger"
	"slotguard/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "slot")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len(), "idle keys should be forgotten")
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_HonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "slot")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "slot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bookingserrors.ErrLockNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	unlock()
	assert.Equal(t, 0, l.Len())
}

type recordingLocker struct {
	name   string
	events *[]string
	err    error
}

func (r recordingLocker) Lock(context.Context, string) (func(), error) {
	if r.err != nil {
		return nil, r.err
	}
	*r.events = append(*r.events, "lock "+r.name)
	return func() { *r.events = append(*r.events, "unlock "+r.name) }, nil
}

func TestChain_OrderAndRollback(t *testing.T) {
	var events []string
	c := Chain(recordingLocker{name: "a", events: &events}, recordingLocker{name: "b", events: &events})

	unlock, err := c.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, []string{"lock a", "lock b", "unlock b", "unlock a"}, events)

	events = nil
	failing := Chain(recordingLocker{name: "a", events: &events}, recordingLocker{err: errors.New("down")})
	_, err = failing.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, []string{"lock a", "unlock a"}, events)
}

// mockLockRepository keeps lock documents in a map and reports duplicates like Mongo does.
type mockLockRepository struct {
	mu        sync.Mutex
	locks     map[string]model.BookingLock
	createErr error
}

func newMockLockRepository() *mockLockRepository {
	return &mockLockRepository{locks: make(map[string]model.BookingLock)}
}

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
}

func (m *mockLockRepository) Create(_ context.Context, lock *model.BookingLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.locks[lock.ID]; ok {
		return duplicateKeyError()
	}
	m.locks[lock.ID] = *lock
	return nil
}

func (m *mockLockRepository) DeleteExpired(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[id]; ok && l.ExpiresAt.Before(now) {
		delete(m.locks, id)
		return true, nil
	}
	return false, nil
}

func (m *mockLockRepository) Delete(_ context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[id]; ok && l.Owner == owner {
		delete(m.locks, id)
	}
	return nil
}

func TestMongoLocker_WaitsForRelease(t *testing.T) {
	repo := newMockLockRepository()
	l := NewMongoLocker(repo, time.Minute, logger.Discard())

	unlock, err := l.Lock(context.Background(), "slot")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(context.Background(), "slot")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
}

func TestMongoLocker_ReclaimsExpiredLock(t *testing.T) {
	repo := newMockLockRepository()
	repo.locks["slot"] = model.BookingLock{ID: "slot", Owner: "dead", ExpiresAt: time.Now().Add(-time.Second)}
	l := NewMongoLocker(repo, time.Minute, logger.Discard())

	unlock, err := l.Lock(context.Background(), "slot")
	require.NoError(t, err)
	assert.NotEqual(t, "dead", repo.locks["slot"].Owner)
	unlock()
	assert.Empty(t, repo.locks)
}

func TestMongoLocker_HonoursContext(t *testing.T) {
	repo := newMockLockRepository()
	repo.locks["slot"] = model.BookingLock{ID: "slot", Owner: "other", ExpiresAt: time.Now().Add(time.Hour)}
	l := NewMongoLocker(repo, time.Minute, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx, "slot")
	assert.True(t, errors.Is(err, bookingserrors.ErrLockNotAcquired))
}

func TestMongoLocker_StaleHolderCannotReleaseSuccessor(t *testing.T) {
	repo := newMockLockRepository()
	l := NewMongoLocker(repo, time.Minute, logger.Discard())

	staleUnlock, err := l.Lock(context.Background(), "slot")
	require.NoError(t, err)
	repo.locks["slot"] = model.BookingLock{ID: "slot", Owner: "successor", ExpiresAt: time.Now().Add(time.Hour)}

	staleUnlock()
	assert.Equal(t, "successor", repo.locks["slot"].Owner)
}

func TestMongoLocker_BackendError(t *testing.T) {
	repo := newMockLockRepository()
	repo.createErr = errors.New("connection refused")
	l := NewMongoLocker(repo, time.Minute, logger.Discard())

	_, err := l.Lock(context.Background(), "slot")
	require.Error(t, err)
	assert.False(t, errors.Is(err, bookingserrors.ErrLockNotAcquired))
}

package locker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/internal/bookings/repository"
	"slotguard/pkg/logger"
	"slotguard/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	minRetryDelay  = 5 * time.Millisecond
	maxRetryDelay  = 100 * time.Millisecond
	releaseTimeout = 5 * time.Second
)

// MongoLocker holds a slot by inserting a lock document whose _id is the slot key. A
// holder that dies leaves the document behind until it expires after ttl.
type MongoLocker struct {
	repo repository.BookingLockRepository
	ttl  time.Duration
	log  *logger.Logger
	now  func() time.Time
}

func NewMongoLocker(repo repository.BookingLockRepository, ttl time.Duration, log *logger.Logger) *MongoLocker {
	return &MongoLocker{repo: repo, ttl: ttl, log: log, now: time.Now}
}

func (l *MongoLocker) Lock(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()
	delay := minRetryDelay

	for {
		now := l.now().UTC()
		err := l.repo.Create(ctx, &model.BookingLock{
			ID:        key,
			Owner:     owner,
			ExpiresAt: now.Add(l.ttl),
		})
		if err == nil {
			return l.unlockFunc(key, owner), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("failed to create slot lock: %w", err)
		}

		reclaimed, err := l.repo.DeleteExpired(ctx, key, now)
		if err != nil {
			return nil, err
		}
		if reclaimed {
			l.log.Warn("Reclaimed expired slot lock", "lock_id", key)
			continue
		}

		wait := delay/2 + rand.N(delay/2+1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", bookingserrors.ErrLockNotAcquired, ctx.Err())
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (l *MongoLocker) unlockFunc(key, owner string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := l.repo.Delete(ctx, key, owner); err != nil {
				l.log.Warn("Failed to release slot lock", "lock_id", key, "error", err)
			}
		})
	}
}

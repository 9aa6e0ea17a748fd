package locker

import (
	"context"
	"fmt"
	"sync"

	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/pkg/logger"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLocker maps a slot key onto a session-level advisory lock. The lock lives on
// a dedicated pool connection, so a crashed holder releases it when the session ends.
type PostgresLocker struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewPostgresLocker(pool *pgxpool.Pool, log *logger.Logger) *PostgresLocker {
	return &PostgresLocker{pool: pool, log: log}
}

func advisoryKey(key string) int64 {
	return int64(xxhash.Sum64String(key))
}

func (l *PostgresLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for slot lock: %w", err)
	}

	id := advisoryKey(key)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		conn.Release()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", bookingserrors.ErrLockNotAcquired, ctx.Err())
		}
		return nil, fmt.Errorf("failed to take advisory lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if _, err := conn.Exec(rctx, "SELECT pg_advisory_unlock($1)", id); err != nil {
				l.log.Warn("Failed to release advisory lock, closing session", "lock_id", key, "error", err)
				_ = conn.Conn().Close(rctx)
			}
			conn.Release()
		})
	}, nil
}

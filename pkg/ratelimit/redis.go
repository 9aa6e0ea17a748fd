package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketSource string

var tokenBucketScript = redis.NewScript(tokenBucketSource)

const DefaultRedisPrefix = "ratelimit:"

// RedisLimiter shares buckets across processes. The bucket update runs as one Lua script
// against the server clock; keys expire once they would be full again.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  Limit
	prefix string
	ttl    time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, limit Limit, prefix string) (*RedisLimiter, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tokenBucketScript.Load(ctx, client).Err(); err != nil {
		return nil, fmt.Errorf("failed to load token bucket script: %w", err)
	}

	ttl := limit.FullRefill()
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	return &RedisLimiter{
		client: client,
		limit:  limit,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, cost float64) (Decision, error) {
	if !r.limit.validCost(cost) {
		return Decision{Allowed: false}, nil
	}

	perSecond := r.limit.Rate / r.limit.Period.Seconds()
	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.prefix + key},
		r.limit.Capacity,
		perSecond,
		cost,
		r.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return Decision{}, errors.New("invalid token bucket script response")
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryAfter := seconds(values[2])
	resetAfter := seconds(values[3])

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: retryAfter,
		ResetAt:    time.Now().Add(resetAfter),
	}, nil
}

func seconds(val interface{}) time.Duration {
	var f float64
	switch v := val.(type) {
	case int64:
		f = float64(v)
	case float64:
		f = v
	case string:
		f, _ = strconv.ParseFloat(v, 64)
	}
	return time.Duration(f * float64(time.Second))
}

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Limit describes a token bucket: at most Capacity tokens, refilled at Rate tokens per Period.
type Limit struct {
	Capacity float64
	Rate     float64
	Period   time.Duration
}

func (l Limit) Validate() error {
	if l.Capacity <= 0 || math.IsNaN(l.Capacity) || math.IsInf(l.Capacity, 0) {
		return fmt.Errorf("capacity must be a positive finite number, got %v", l.Capacity)
	}
	if l.Rate <= 0 || math.IsNaN(l.Rate) || math.IsInf(l.Rate, 0) {
		return fmt.Errorf("rate must be a positive finite number, got %v", l.Rate)
	}
	if l.Period <= 0 {
		return fmt.Errorf("period must be positive, got %s", l.Period)
	}
	return nil
}

// tokensFor returns how many tokens accrue over d.
func (l Limit) tokensFor(d time.Duration) float64 {
	return float64(d) * l.Rate / float64(l.Period)
}

// durationFor returns how long it takes to accrue n tokens.
func (l Limit) durationFor(n float64) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(n * float64(l.Period) / l.Rate))
}

// FullRefill is the time an empty bucket needs to become full again.
func (l Limit) FullRefill() time.Duration {
	return l.durationFor(l.Capacity)
}

// validCost reports whether a request of this cost can ever be admitted.
func (l Limit) validCost(cost float64) bool {
	return cost > 0 && cost <= l.Capacity && !math.IsNaN(cost)
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter is the transport-neutral admission contract.
type Limiter interface {
	Allow(ctx context.Context, key string, cost float64) (Decision, error)
}

package middleware

import (
	"net/http"
	apperrors "slotguard/pkg/errors"
	apphttp "slotguard/pkg/http"
	"slotguard/pkg/logger"
	"slotguard/pkg/ratelimit"
	"strconv"
)

const RateLimitRemainingHeader = "X-RateLimit-Remaining"

type KeyFunc func(r *http.Request) string

// ClientIPKey keys admission by the request's client address.
func ClientIPKey(r *http.Request) string {
	return apphttp.ClientIP(r)
}

// Admission spends one token per request from the caller's bucket. Limiter failures
// let the request through and are logged.
func Admission(limiter ratelimit.Limiter, keyFunc KeyFunc, log *logger.Logger) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIPKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			decision, err := limiter.Allow(r.Context(), key, 1)
			if err != nil {
				log.Warn("Rate limiter unavailable, admitting request",
					"request_id", RequestIDFromContext(r.Context()),
					"key", key,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				log.Warn("Rate limit exceeded",
					"request_id", RequestIDFromContext(r.Context()),
					"key", key,
					"path", r.URL.Path,
					"retry_after", decision.RetryAfter,
				)
				w.Header().Set("Retry-After", apperrors.RetryAfterHeader(decision.RetryAfter))
				_ = apphttp.WriteError(w, apperrors.RateLimitExceeded(decision.RetryAfter))
				return
			}

			w.Header().Set(RateLimitRemainingHeader, strconv.FormatInt(decision.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

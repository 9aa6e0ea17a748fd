package middleware

import (
	"bytes"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	IdempotencyHeader          = "Idempotency-Key"
	IdempotentReplayHeader     = "Idempotent-Replayed"
	DefaultIdempotencyCapacity = 10_000
)

type IdempotencyStore interface {
	Get(key string) (*CachedResponse, bool)
	Set(key string, response *CachedResponse)
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

// LRUIdempotencyStore keeps at most capacity responses; entries older than ttl read as misses.
type LRUIdempotencyStore struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewLRUIdempotencyStore(capacity int, ttl time.Duration) (*LRUIdempotencyStore, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &LRUIdempotencyStore{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (s *LRUIdempotencyStore) Get(key string) (*CachedResponse, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	response := v.(*CachedResponse)
	if s.now().Sub(response.CreatedAt) > s.ttl {
		s.cache.Remove(key)
		return nil, false
	}
	return response, true
}

func (s *LRUIdempotencyStore) Set(key string, response *CachedResponse) {
	response.CreatedAt = s.now()
	s.cache.Add(key, response)
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated Idempotency-Key on POST.
// Keys are scoped by path so one key cannot replay another endpoint's response.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key = r.URL.Path + "|" + key

			if cached, found := store.Get(key); found {
				replayCachedResponse(w, cached)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(key, &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    w.Header().Clone(),
					Body:       capture.body.Bytes(),
				})
			}
		})
	}
}

// replayCachedResponse writes the cached response. Headers the outer middleware already set
// for this request, such as the request id and rate limit state, keep their current values.
func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		if _, set := w.Header()[key]; set {
			continue
		}
		w.Header()[key] = append([]string(nil), values...)
	}
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

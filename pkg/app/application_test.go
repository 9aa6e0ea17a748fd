package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"slotguard/pkg/client"
	"slotguard/pkg/config"
	"slotguard/pkg/contracts"
	"slotguard/pkg/logger"
	"slotguard/pkg/middleware"
	"slotguard/pkg/ratelimit"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	creates atomic.Int32
}

func (h *stubHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/ping", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})
	router.POST("/api/v1/things", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		n := h.creates.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int32{"n": n})
	})
	router.GET("/api/v1/panic", func(http.ResponseWriter, *http.Request, httprouter.Params) {
		panic("boom")
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		RequestTimeout: time.Second,
		IdempotencyTTL: time.Minute,
		MaxRequestSize: 1024,
		Log:            logger.Discard(),
		Client:         client.NewClient(),
	}
}

func newTestApp(t *testing.T, capacity float64) (*Application, *stubHandler) {
	t.Helper()
	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Limit{Capacity: capacity, Rate: 1, Period: time.Hour},
		ratelimit.WithShards(1), ratelimit.WithMaxKeys(16))
	require.NoError(t, err)

	h := &stubHandler{}
	a := NewApplication(testConfig())
	require.NoError(t, a.SetApp(h, limiter))
	return a, h
}

func do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestApplication_AdmissionRejectsOverLimit(t *testing.T) {
	a, _ := newTestApp(t, 2)
	handler := a.Handler()

	for i := 0; i < 2; i++ {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	}

	rec := do(handler, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Health endpoints sit outside admission.
	rec = do(handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApplication_LimitsPerClient(t *testing.T) {
	a, _ := newTestApp(t, 1)
	handler := a.Handler()

	first := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	second := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	second.RemoteAddr = "10.0.0.2:1234"

	assert.Equal(t, http.StatusOK, do(handler, first).Code)
	assert.Equal(t, http.StatusOK, do(handler, second).Code)
}

func TestApplication_ProxyHeadersTrustedOnlyWhenEnabled(t *testing.T) {
	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Limit{Capacity: 1, Rate: 1, Period: time.Hour},
		ratelimit.WithShards(1), ratelimit.WithMaxKeys(16))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.TrustProxyHeaders = true
	a := NewApplication(cfg)
	require.NoError(t, a.SetApp(&stubHandler{}, limiter))
	handler := a.Handler()

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("X-Forwarded-For", ip)
		assert.Equal(t, http.StatusOK, do(handler, req).Code, ip)
	}
}

func TestApplication_IdempotentReplay(t *testing.T) {
	a, h := newTestApp(t, 10)
	handler := a.Handler()

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/things", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.IdempotencyHeader, "k-1")
		return req
	}

	first := do(handler, newReq())
	second := do(handler, newReq())

	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), h.creates.Load())
}

func TestApplication_RejectsWrongContentType(t *testing.T) {
	a, h := newTestApp(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/things", strings.NewReader(`a=b`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := do(a.Handler(), req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, int32(0), h.creates.Load())
}

func TestApplication_RecoversPanics(t *testing.T) {
	a, _ := newTestApp(t, 10)

	rec := do(a.Handler(), httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name     string
		pingers  map[string]func(ctx context.Context) error
		status   int
		backends map[string]string
	}{
		{
			name:    "no backends",
			pingers: nil,
			status:  http.StatusOK,
		},
		{
			name: "all healthy",
			pingers: map[string]func(ctx context.Context) error{
				"mongo": func(context.Context) error { return nil },
				"redis": func(context.Context) error { return nil },
			},
			status:   http.StatusOK,
			backends: map[string]string{"mongo": "ok", "redis": "ok"},
		},
		{
			name: "one failing",
			pingers: map[string]func(ctx context.Context) error{
				"postgres": func(context.Context) error { return errors.New("connection refused") },
				"redis":    func(context.Context) error { return nil },
			},
			status:   http.StatusServiceUnavailable,
			backends: map[string]string{"postgres": "error", "redis": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httprouter.New()
			NewHealthHandler(tt.pingers, logger.Discard()).RegisterRoutes(router)

			rec := do(router, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.status, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			if len(tt.backends) > 0 {
				assert.Equal(t, tt.backends, resp.Backends)
			}
		})
	}
}

type sweepingLimiter struct {
	ratelimit.Limiter
	sweeps atomic.Int32
}

func (s *sweepingLimiter) Sweep() int {
	s.sweeps.Add(1)
	return 0
}

func TestApplication_JanitorSweepsUntilShutdown(t *testing.T) {
	limiter := &sweepingLimiter{}
	cfg := testConfig()
	cfg.RateLimitSweepInterval = 5 * time.Millisecond

	a := NewApplication(cfg)
	a.limiter = limiter
	a.startJanitor()

	assert.Eventually(t, func() bool { return limiter.sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)

	a.stopJanitor()
	<-a.janitorDone
	after := limiter.sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, limiter.sweeps.Load())
}

func TestApplication_ClosersRunInReverseOrder(t *testing.T) {
	a := NewApplication(testConfig())

	var order []string
	for _, name := range []string{"events", "locks"} {
		name := name
		a.OnShutdown(name, contracts.CloserFunc(func(context.Context) error {
			order = append(order, name)
			if name == "locks" {
				return errors.New("already closed")
			}
			return nil
		}))
	}

	a.closeAll(context.Background())
	assert.Equal(t, []string{"locks", "events"}, order)
}

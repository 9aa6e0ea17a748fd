package common

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"slotguard/internal/bookings/handler"
	"slotguard/internal/bookings/locker"
	"slotguard/internal/bookings/repository"
	"slotguard/internal/bookings/service"
	"slotguard/internal/bookings/validator"
	"slotguard/internal/events"
	"slotguard/pkg/app"
	"slotguard/pkg/client"
	"slotguard/pkg/config"
	"slotguard/pkg/logger"
	"slotguard/pkg/ratelimit"
)

const EnvServerURL = "TEST_SERVER_URL"

// Server is a bookings API under test: a running deployment when TEST_SERVER_URL is set,
// otherwise an in-process server over the memory backends.
type Server struct {
	URL    string
	Client *client.BookingClient
	close  func()
}

func (s *Server) Close() {
	if s.close != nil {
		s.close()
	}
}

// Remote reports whether tests run against an external deployment whose state they do not own.
func (s *Server) Remote() bool {
	return s.close == nil
}

func StartServer(tb testing.TB) *Server {
	tb.Helper()

	if url := os.Getenv(EnvServerURL); url != "" {
		c := client.NewBookingClient(url)
		if err := c.HTTP().WaitForHealthy(context.Background(), 30*time.Second); err != nil {
			tb.Fatalf("server at %s is not healthy: %v", url, err)
		}
		return &Server{URL: url, Client: c}
	}

	srv, err := NewInProcessServer()
	if err != nil {
		tb.Fatalf("failed to start in-process server: %v", err)
	}
	return srv
}

// NewInProcessServer wires the real handler, service and middleware stack over memory storage.
func NewInProcessServer() (*Server, error) {
	log := logger.Discard()
	cfg := &config.Config{
		Port:                   "0",
		RateLimitSweepInterval: time.Minute,
		RequestTimeout:         10 * time.Second,
		IdempotencyTTL:         time.Hour,
		MaxRequestSize:         config.DefaultMaxRequestSize,
		Log:                    log,
		Client:                 client.NewClient(),
	}

	limiter, err := ratelimit.NewMemoryLimiter(ratelimit.Limit{Capacity: 1_000_000, Rate: 1_000_000, Period: time.Second})
	if err != nil {
		return nil, err
	}

	bookingService := service.NewBookingService(
		repository.NewMemoryBookingRepository(),
		locker.NewLocalLocker(),
		validator.NewBookingValidator(log),
		events.NewLogSink(log),
		log,
	)

	a := app.NewApplication(cfg)
	if err := a.SetApp(handler.NewBookingHandler(bookingService, log), limiter); err != nil {
		return nil, err
	}

	ts := httptest.NewServer(a.Handler())
	return &Server{
		URL:    ts.URL,
		Client: client.NewBookingClient(ts.URL),
		close:  ts.Close,
	}, nil
}

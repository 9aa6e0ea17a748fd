package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slotguard/pkg/config"
	"slotguard/pkg/contracts"
	"slotguard/pkg/middleware"
	"slotguard/pkg/ratelimit"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/julienschmidt/httprouter"
)

// Sweeper is implemented by limiters that keep per-key state in process memory.
type Sweeper interface {
	Sweep() int
}

type namedCloser struct {
	name   string
	closer contracts.Closer
}

type Application struct {
	cfg            *config.Config
	server         *http.Server
	limiter        ratelimit.Limiter
	healthHandler  http.Handler
	appHttpHandler http.Handler
	closers        []namedCloser

	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

func (a *Application) SetApp(appHandler contracts.Handler, limiter ratelimit.Limiter) error {
	a.limiter = limiter
	a.setHealthHandler(NewHealthHandler(a.cfg.Client.Pingers(), a.cfg.Log))
	if err := a.setAppHandler(appHandler); err != nil {
		return err
	}
	a.setAppServer()
	return nil
}

// OnShutdown registers c to be closed after the server stops. Closers run in reverse
// registration order.
func (a *Application) OnShutdown(name string, c contracts.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, closer: c})
}

func (a *Application) setHealthHandler(health *HealthHandler) {
	healthRouter := httprouter.New()
	health.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler) error {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	idempotencyStore, err := middleware.NewLRUIdempotencyStore(middleware.DefaultIdempotencyCapacity, a.cfg.IdempotencyTTL)
	if err != nil {
		return err
	}

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(idempotencyStore)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.Admission(a.limiter, middleware.ClientIPKey, a.cfg.Log)(appHttpHandler)
	if a.cfg.TrustProxyHeaders {
		appHttpHandler = chimw.RealIP(appHttpHandler)
		a.cfg.Log.Info("Client IP taken from proxy headers")
	}
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
	return nil
}

// Handler returns the combined health and application handler.
func (a *Application) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)
	return mux
}

func (a *Application) setAppServer() {
	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// startJanitor periodically drops idle limiter buckets when the limiter keeps them in memory.
func (a *Application) startJanitor() {
	sweeper, ok := a.limiter.(Sweeper)
	if !ok || a.cfg.RateLimitSweepInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopJanitor = cancel
	a.janitorDone = make(chan struct{})

	go func() {
		defer close(a.janitorDone)
		ticker := time.NewTicker(a.cfg.RateLimitSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := sweeper.Sweep(); removed > 0 {
					a.cfg.Log.Debug("Rate limiter sweep", "removed", removed)
				}
			}
		}
	}()
	a.cfg.Log.Info("Rate limiter janitor started", "interval", a.cfg.RateLimitSweepInterval)
}

func (a *Application) Run() {
	a.startJanitor()

	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Fatal("HTTP server failed", "error", err)
		}

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	if a.stopJanitor != nil {
		a.stopJanitor()
		<-a.janitorDone
	}
	a.closeAll(ctx)
	a.cfg.Log.Info("Background workers stopped")

	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}

func (a *Application) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.closer.Close(ctx); err != nil {
			a.cfg.Log.Error("Failed to close resource", "resource", c.name, "error", err)
			continue
		}
		a.cfg.Log.Info("Closed resource", "resource", c.name)
	}
}

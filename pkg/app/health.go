package app

import (
	"context"
	"net/http"
	"sort"
	"time"

	httputil "slotguard/pkg/http"
	"slotguard/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const readinessTimeout = 2 * time.Second

type Pinger func(ctx context.Context) error

type HealthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
}

type HealthHandler struct {
	pingers map[string]Pinger
	log     *logger.Logger
}

func NewHealthHandler(pingers map[string]func(ctx context.Context) error, log *logger.Logger) *HealthHandler {
	h := &HealthHandler{pingers: make(map[string]Pinger, len(pingers)), log: log}
	for name, ping := range pingers {
		h.pingers[name] = ping
	}
	return h
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

// Ready pings every configured backend. One failing backend makes the service unavailable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ready", http.StatusOK
	backends := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.pingers[name](ctx); err != nil {
			h.log.Error("Backend health check failed",
				"backend", name,
				"error", err,
				"path", r.URL.Path,
			)
			backends[name] = "error"
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		backends[name] = "ok"
	}

	if err := httputil.WriteJSON(w, code, HealthResponse{
		Status:   status,
		Backends: backends,
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

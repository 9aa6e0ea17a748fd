package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"slotguard/internal/bookings/service"
	apperrors "slotguard/pkg/errors"
	httputil "slotguard/pkg/http"
	"slotguard/pkg/logger"
	"slotguard/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", decodeError(err))
		return
	}

	booking, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}
	h.writeSuccess(w, "Cancel", booking)
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}
	h.writeSuccess(w, "GetByID", booking)
}

func (h *BookingHandler) ListActive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bookings, err := h.service.ListActive(r.Context())
	if err != nil {
		h.writeError(w, "ListActive", err)
		return
	}
	h.writeSuccess(w, "ListActive", bookings)
}

func (h *BookingHandler) ListByUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookings, err := h.service.ListByUser(r.Context(), ps.ByName("userId"))
	if err != nil {
		h.writeError(w, "ListByUser", err)
		return
	}
	h.writeSuccess(w, "ListByUser", bookings)
}

func (h *BookingHandler) ListByResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookings, err := h.service.ListByResource(r.Context(), ps.ByName("resourceId"))
	if err != nil {
		h.writeError(w, "ListByResource", err)
		return
	}
	h.writeSuccess(w, "ListByResource", bookings)
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.ListActive)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.PUT("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.GET("/api/v1/bookings/user/:userId", h.ListByUser)
	router.GET("/api/v1/bookings/resource/:resourceId", h.ListByResource)

	// Legacy paths kept for existing clients.
	router.POST("/api/bookings/add", h.Create)
	router.PUT("/api/bookings/cancel/:id", h.Cancel)
	router.GET("/api/bookings/all", h.ListActive)
	router.GET("/api/bookings/user/:userId", h.ListByUser)
}

// decodeError keeps INVALID_INPUT for bodies that are not a JSON object. A well-formed body
// with a field of the wrong shape is a VALIDATION_ERROR keyed by the JSON field name.
func decodeError(err error) error {
	var (
		maxBytesErr *http.MaxBytesError
		fieldErr    *model.FieldError
		typeErr     *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return apperrors.RequestTooLarge()
	case errors.Is(err, io.EOF):
		return apperrors.InvalidInput("Request body is required")
	case errors.As(err, &fieldErr):
		return apperrors.Validation("Invalid booking request", map[string]any{fieldErr.Field: fieldErr.Reason})
	case errors.As(err, &typeErr) && typeErr.Field != "":
		field := typeErr.Field[strings.LastIndex(typeErr.Field, ".")+1:]
		return apperrors.Validation("Invalid booking request", map[string]any{
			field: fmt.Sprintf("%s must be a %s", field, typeErr.Type),
		})
	default:
		return apperrors.InvalidInput("Invalid request body").WithDetails(map[string]any{"reason": err.Error()})
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

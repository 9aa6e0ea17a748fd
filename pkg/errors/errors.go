package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	CodeNotFound               = "NOT_FOUND"
	CodeValidation             = "VALIDATION_ERROR"
	CodeConflict               = "CONFLICT"
	CodeDuplicateBooking       = "DUPLICATE_BOOKING"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeInternal               = "INTERNAL_ERROR"
	CodeTimeout                = "TIMEOUT"
	CodeUnavailable            = "SERVICE_UNAVAILABLE"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeRequestTooLarge        = "REQUEST_TOO_LARGE"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// WithDetails merges details into the error, overwriting keys already present.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NotFoundWithID(resource, id string) *AppError {
	return NotFound(resource).WithDetails(map[string]any{
		"resource": resource,
		"id":       id,
	})
}

func Validation(message string, details map[string]any) *AppError {
	e := New(CodeValidation, message, http.StatusBadRequest)
	if details != nil {
		e.WithDetails(details)
	}
	return e
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message, http.StatusBadRequest)
}

func RequestTooLarge() *AppError {
	return New(CodeRequestTooLarge, "request body too large", http.StatusRequestEntityTooLarge)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// DuplicateBooking reports an ACTIVE booking already holding the (user, resource, date) slot.
func DuplicateBooking(userID, resourceID string, bookingDate time.Time) *AppError {
	return New(CodeDuplicateBooking, "an active booking already exists for this user, resource and date", http.StatusConflict).
		WithDetails(map[string]any{
			"user_id":      userID,
			"resource_id":  resourceID,
			"booking_date": bookingDate.UTC().Format(time.RFC3339),
		})
}

func InvalidStateTransition(id, currentStatus string) *AppError {
	return New(CodeInvalidStateTransition, fmt.Sprintf("Cannot cancel booking with status: %s", currentStatus), http.StatusConflict).
		WithDetails(map[string]any{
			"id":             id,
			"current_status": currentStatus,
		})
}

func RateLimitExceeded(retryAfter time.Duration) *AppError {
	return New(CodeRateLimitExceeded, "Too Many Requests", http.StatusTooManyRequests).
		WithDetails(map[string]any{
			"retry_after_seconds": RetryAfterSeconds(retryAfter),
		})
}

// RetryAfterSeconds rounds up to whole seconds, never below one, as the Retry-After header requires.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func RetryAfterHeader(d time.Duration) string {
	return strconv.Itoa(RetryAfterSeconds(d))
}

func Internal(message string, err error) *AppError {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

func Timeout(message string) *AppError {
	return New(CodeTimeout, message, http.StatusGatewayTimeout)
}

func Unavailable(service string) *AppError {
	return New(CodeUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError finds an AppError anywhere in the chain, or wraps err as INTERNAL_ERROR.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

func HasCode(err error, code string) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

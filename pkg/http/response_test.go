package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "slotguard/pkg/errors"
)

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, apperrors.InvalidStateTransition("b-1", "CANCELLED"))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != apperrors.CodeInvalidStateTransition {
		t.Errorf("expected code %s, got %s", apperrors.CodeInvalidStateTransition, body.Code)
	}
	if body.Details["current_status"] != "CANCELLED" {
		t.Errorf("expected current_status CANCELLED, got %v", body.Details["current_status"])
	}
}

func TestWriteError_PlainErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, errors.New("connection refused to 10.0.0.3"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != apperrors.CodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", body.Code)
	}
	if body.Error == "connection refused to 10.0.0.3" {
		t.Errorf("internal error text leaked to client")
	}
}

func TestWriteError_RateLimitSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, apperrors.RateLimitExceeded(1500*time.Millisecond))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteCreated(rec, map[string]string{"id": "b-1"}); err != nil {
		t.Fatalf("WriteCreated: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	if got := ClientIP(r); got != "192.0.2.7" {
		t.Errorf("expected 192.0.2.7, got %s", got)
	}
	r.RemoteAddr = "192.0.2.8"
	if got := ClientIP(r); got != "192.0.2.8" {
		t.Errorf("expected 192.0.2.8, got %s", got)
	}
}

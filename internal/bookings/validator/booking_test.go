package validator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"slotguard/pkg/logger"
	"slotguard/pkg/model"
)

func validRequest() *model.BookingRequest {
	return &model.BookingRequest{
		UserID:      "u1",
		ResourceID:  "r1",
		BookingDate: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Notes:       "window seat",
	}
}

func TestBookingValidator_Validate(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	tests := []struct {
		name      string
		mutate    func(r *model.BookingRequest)
		wantField string
	}{
		{name: "valid", mutate: func(*model.BookingRequest) {}},
		{name: "missing user", mutate: func(r *model.BookingRequest) { r.UserID = "" }, wantField: "user_id"},
		{name: "missing resource", mutate: func(r *model.BookingRequest) { r.ResourceID = "" }, wantField: "resource_id"},
		{name: "missing date", mutate: func(r *model.BookingRequest) { r.BookingDate = time.Time{} }, wantField: "booking_date"},
		{name: "user too long", mutate: func(r *model.BookingRequest) { r.UserID = strings.Repeat("u", 129) }, wantField: "user_id"},
		{name: "notes too long", mutate: func(r *model.BookingRequest) { r.Notes = strings.Repeat("n", 1001) }, wantField: "notes"},
		{name: "past date allowed", mutate: func(r *model.BookingRequest) { r.BookingDate = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := v.Validate(req)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, verrs)
			}
		})
	}
}

func TestBookingValidator_NilAndID(t *testing.T) {
	v := NewBookingValidator(logger.Discard())

	if err := v.Validate(nil); err == nil {
		t.Error("nil request should fail")
	}
	if err := v.ValidateID("  "); err == nil {
		t.Error("blank id should fail")
	}
	if err := v.ValidateID("abc"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidationErrors_Details(t *testing.T) {
	errs := ValidationErrors{{Field: "user_id", Message: "user_id is required"}}
	if errs.Details()["user_id"] != "user_id is required" {
		t.Errorf("unexpected details %v", errs.Details())
	}
	if !strings.Contains(errs.Error(), "1 error(s)") {
		t.Errorf("unexpected message %q", errs.Error())
	}
}

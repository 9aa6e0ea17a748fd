package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type BookingStatus string

const (
	StatusActive    BookingStatus = "ACTIVE"
	StatusCancelled BookingStatus = "CANCELLED"
)

func (s BookingStatus) Valid() bool {
	return s == StatusActive || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// ACTIVE -> CANCELLED is the only edge; CANCELLED is terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return s == StatusActive && next == StatusCancelled
}

type Booking struct {
	ID          string        `json:"id,omitempty" bson:"_id,omitempty"`
	UserID      string        `json:"user_id" bson:"user_id"`
	ResourceID  string        `json:"resource_id" bson:"resource_id"`
	BookingDate time.Time     `json:"booking_date" bson:"booking_date"`
	Status      BookingStatus `json:"status" bson:"status"`
	Notes       string        `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
}

func (b *Booking) IsActive() bool {
	return b.Status == StatusActive
}

func (b *Booking) SlotKey() string {
	return SlotKey(b.UserID, b.ResourceID, b.BookingDate)
}

// BookingRequest is the client-supplied input to create a booking.
type BookingRequest struct {
	UserID      string    `json:"user_id" validate:"required,max=128"`
	ResourceID  string    `json:"resource_id" validate:"required,max=128"`
	BookingDate time.Time `json:"booking_date" validate:"required"`
	Notes       string    `json:"notes,omitempty" validate:"max=1000"`
}

// FieldError reports a request field whose JSON value has the wrong shape.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// UnmarshalJSON decodes booking_date itself so a malformed date surfaces as a FieldError
// instead of an opaque time parsing error. An absent or null date stays zero.
func (r *BookingRequest) UnmarshalJSON(data []byte) error {
	type plain BookingRequest
	aux := struct {
		*plain
		BookingDate json.RawMessage `json:"booking_date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.BookingDate)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		r.BookingDate = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return &FieldError{Field: "booking_date", Reason: "booking_date must be an RFC 3339 timestamp string"}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return &FieldError{Field: "booking_date", Reason: "booking_date must be an RFC 3339 timestamp"}
	}
	r.BookingDate = t
	return nil
}

func (r *BookingRequest) SlotKey() string {
	return SlotKey(r.UserID, r.ResourceID, r.BookingDate)
}

// NormalizeBookingDate is the canonical form used for uniqueness: UTC, whole seconds.
func NormalizeBookingDate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// SlotKey identifies the (user, resource, date) triple guarded by the uniqueness invariant.
func SlotKey(userID, resourceID string, bookingDate time.Time) string {
	var sb strings.Builder
	sb.WriteString(userID)
	sb.WriteByte(0x1f)
	sb.WriteString(resourceID)
	sb.WriteByte(0x1f)
	sb.WriteString(NormalizeBookingDate(bookingDate).Format(time.RFC3339))
	return sb.String()
}

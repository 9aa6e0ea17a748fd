package sanitizer

import (
	"testing"
	"time"

	"slotguard/pkg/model"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "basic trim",
			input: "  hello  ",
			want:  "hello",
		},
		{
			name:  "multiple spaces",
			input: "hello    world",
			want:  "hello world",
		},
		{
			name:  "tabs and newlines",
			input: "hello\t\nworld",
			want:  "hello world",
		},
		{
			name:  "preserve special characters",
			input: " Café & Spa™ ",
			want:  "Café & Spa™",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimAndNormalize(tt.input)
			if got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trim", "  user-1  ", "user-1"},
		{"keeps case", "User-ABC", "User-ABC"},
		{"strips control characters", "room\x00-1\x07", "room-1"},
		{"keeps inner space", " meeting room ", "meeting room"},
		{"whitespace only", " \t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeIdentifier(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := SanitizeIdentifier(got); again != got {
				t.Errorf("SanitizeIdentifier not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSanitizeBookingRequest(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	req := &model.BookingRequest{
		UserID:      " u1 ",
		ResourceID:  "\tr1\n",
		BookingDate: time.Date(2026, 5, 1, 12, 30, 15, 999, loc),
		Notes:       "  window   seat\nplease ",
	}

	SanitizeBookingRequest(req)

	if req.UserID != "u1" || req.ResourceID != "r1" {
		t.Errorf("identifiers not trimmed: %q %q", req.UserID, req.ResourceID)
	}
	if req.Notes != "window seat please" {
		t.Errorf("notes = %q", req.Notes)
	}
	want := time.Date(2026, 5, 1, 10, 30, 15, 0, time.UTC)
	if !req.BookingDate.Equal(want) || req.BookingDate.Location() != time.UTC {
		t.Errorf("booking date = %v, want %v", req.BookingDate, want)
	}

	empty := &model.BookingRequest{}
	SanitizeBookingRequest(empty)
	if !empty.BookingDate.IsZero() {
		t.Errorf("zero booking date should stay zero")
	}
}

package sanitizer

import (
	"strings"
	"unicode"

	"slotguard/pkg/model"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

var (
	identifierPipeline = Pipeline{stripControl, strings.TrimSpace}
	textPipeline       = Pipeline{stripControl, TrimAndNormalize}
)

// SanitizeIdentifier cleans a user or resource id. Case is significant and kept.
func SanitizeIdentifier(input string) string {
	return identifierPipeline.Apply(input)
}

func SanitizeNotes(input string) string {
	return textPipeline.Apply(input)
}

// SanitizeBookingRequest normalizes req in place.
func SanitizeBookingRequest(req *model.BookingRequest) {
	req.UserID = SanitizeIdentifier(req.UserID)
	req.ResourceID = SanitizeIdentifier(req.ResourceID)
	req.Notes = SanitizeNotes(req.Notes)
	if !req.BookingDate.IsZero() {
		req.BookingDate = model.NormalizeBookingDate(req.BookingDate)
	}
}

package events

import (
	"context"

	"slotguard/pkg/logger"
	"slotguard/pkg/middleware"
	"slotguard/pkg/model"
)

// Sink receives booking events after the change they describe has committed.
type Sink interface {
	Publish(ctx context.Context, event model.BookingEvent) error
}

type SinkFunc func(ctx context.Context, event model.BookingEvent) error

func (f SinkFunc) Publish(ctx context.Context, event model.BookingEvent) error {
	return f(ctx, event)
}

// DeadLetterer is implemented by sinks that can park an event they failed to deliver.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, event model.BookingEvent, cause error) error
}

// LogSink writes events to the structured log. Used when no broker is configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, event model.BookingEvent) error {
	s.log.Info(event.Message,
		"event", event.Kind,
		"id", event.Booking.ID,
		"user_id", event.Booking.UserID,
		"resource_id", event.Booking.ResourceID,
		"booking_date", event.Booking.BookingDate,
		"status", event.Booking.Status,
		"request_id", middleware.RequestIDFromContext(ctx),
	)
	return nil
}

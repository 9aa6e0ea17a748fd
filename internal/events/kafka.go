package events

import (
	"context"
	"fmt"

	"slotguard/pkg/kafka"
	"slotguard/pkg/middleware"
	"slotguard/pkg/model"
)

// Publisher is the part of *kafka.Producer the sink uses.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	SendToDLQ(ctx context.Context, msg kafka.Message, cause error) error
}

// KafkaSink publishes events keyed by kind, so each kind keeps its order on one partition.
type KafkaSink struct {
	producer Publisher
	source   string
}

func NewKafkaSink(producer Publisher, source string) *KafkaSink {
	return &KafkaSink{producer: producer, source: source}
}

func (s *KafkaSink) message(ctx context.Context, event model.BookingEvent) (kafka.Message, error) {
	msg, err := kafka.NewMessage().
		WithKey(string(event.Kind)).
		WithValue(event).
		WithEventID("").
		WithEventType(string(event.Kind)).
		WithSource(s.source).
		WithCorrelationID(middleware.RequestIDFromContext(ctx)).
		Build()
	if err != nil {
		return kafka.Message{}, kafka.NewPermanentError("failed to build event message", err)
	}
	return msg, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event model.BookingEvent) error {
	msg, err := s.message(ctx, event)
	if err != nil {
		return err
	}
	if err := s.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for booking %s: %w", event.Kind, event.Booking.ID, err)
	}
	return nil
}

func (s *KafkaSink) DeadLetter(ctx context.Context, event model.BookingEvent, cause error) error {
	msg, err := s.message(ctx, event)
	if err != nil {
		return err
	}
	return s.producer.SendToDLQ(ctx, msg, cause)
}

package events

import (
	"context"
	"fmt"

	"slotguard/pkg/kafka"
	"slotguard/pkg/logger"
	"slotguard/pkg/model"

	lru "github.com/hashicorp/golang-lru"
)

const DefaultDedupeSize = 10_000

// Processor acts on one decoded event.
type Processor func(ctx context.Context, event model.BookingEvent) error

// Handler decodes booking events from Kafka and drops redeliveries of an event it has
// already processed. The seen set is an LRU, so very old duplicates may be processed again.
type Handler struct {
	process Processor
	seen    *lru.Cache
	log     *logger.Logger
}

func NewHandler(process Processor, dedupeSize int, log *logger.Logger) (*Handler, error) {
	if dedupeSize <= 0 {
		dedupeSize = DefaultDedupeSize
	}
	seen, err := lru.New(dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}
	return &Handler{process: process, seen: seen, log: log}, nil
}

// Handle satisfies kafka.MessageHandler.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.BookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("failed to decode booking event", err)
	}

	switch event.Kind {
	case model.EventBookingCreated, model.EventBookingCancelled:
	default:
		h.log.Warn("Ignoring unknown event kind", "event", event.Kind, "event_id", msg.GetEventID())
		return nil
	}
	if event.Booking.ID == "" {
		return kafka.NewPermanentError("booking event without booking id", nil)
	}

	key := event.DedupeKey()
	if h.seen.Contains(key) {
		h.log.Debug("Skipping duplicate event", "event", event.Kind, "id", event.Booking.ID)
		return nil
	}

	if err := h.process(ctx, event); err != nil {
		return err
	}
	h.seen.Add(key, struct{}{})
	return nil
}

// LogProcessor records each event in the log.
func LogProcessor(log *logger.Logger) Processor {
	return func(ctx context.Context, event model.BookingEvent) error {
		log.Info(event.Message,
			"event", event.Kind,
			"id", event.Booking.ID,
			"user_id", event.Booking.UserID,
			"resource_id", event.Booking.ResourceID,
			"booking_date", event.Booking.BookingDate,
		)
		return nil
	}
}

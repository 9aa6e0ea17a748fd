package model

type EventKind string

const (
	EventBookingCreated   EventKind = "booking.created"
	EventBookingCancelled EventKind = "booking.cancelled"
)

const (
	MessageBookingCreated   = "Booking created successfully"
	MessageBookingCancelled = "Booking cancelled successfully"
)

type BookingEvent struct {
	Kind    EventKind `json:"kind"`
	Booking Booking   `json:"booking"`
	Message string    `json:"message"`
}

func NewBookingCreated(b *Booking) BookingEvent {
	return BookingEvent{Kind: EventBookingCreated, Booking: *b, Message: MessageBookingCreated}
}

func NewBookingCancelled(b *Booking) BookingEvent {
	return BookingEvent{Kind: EventBookingCancelled, Booking: *b, Message: MessageBookingCancelled}
}

// DedupeKey identifies an event for consumers that must tolerate redelivery.
func (e BookingEvent) DedupeKey() string {
	return e.Booking.ID + "|" + string(e.Kind)
}

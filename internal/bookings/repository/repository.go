package repository

import (
	"context"
	"slotguard/pkg/db"
	"slotguard/pkg/model"
	"time"
)

type Order int

const (
	// OrderCreated lists in insertion order.
	OrderCreated Order = iota
	OrderBookingDateDesc
)

// Filter selects bookings. Empty fields match everything.
type Filter struct {
	UserID     string
	ResourceID string
	Status     model.BookingStatus
	Order      Order
}

// BookingRepository is the persistence port of the booking lifecycle.
//
// Insert assigns ID and CreatedAt and must reject a second ACTIVE booking for the same
// slot with ErrDuplicateActive. UpdateStatus changes status only when the current status
// equals from, returning ErrStatusConflict otherwise.
type BookingRepository interface {
	Insert(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindActive(ctx context.Context, userID, resourceID string, bookingDate time.Time) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error)
	List(ctx context.Context, filter Filter) ([]*model.Booking, error)
	db.TransactionManager
}

// withTimeout bounds ctx by timeout unless it already has an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

package repository

import (
	"context"
	"sort"
	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/pkg/db"
	"slotguard/pkg/model"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryBookingRepository struct {
	db.NoopTransactionManager

	mu     sync.RWMutex
	byID   map[string]*model.Booking
	order  []string
	active map[string]string // slot key -> booking id
	now    func() time.Time
}

// NewMemoryBookingRepository keeps bookings in process memory. Insert and UpdateStatus are
// atomic on their own, so transactions are pass-through.
func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{
		byID:   make(map[string]*model.Booking),
		active: make(map[string]string),
		now:    time.Now,
	}
}

func (r *memoryBookingRepository) Insert(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := booking.SlotKey()
	if booking.Status == model.StatusActive {
		if _, taken := r.active[key]; taken {
			return bookingserrors.ErrDuplicateActive
		}
	}

	booking.ID = uuid.NewString()
	booking.CreatedAt = r.now().UTC()

	stored := *booking
	r.byID[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	if stored.Status == model.StatusActive {
		r.active[key] = stored.ID
	}
	return nil
}

func (r *memoryBookingRepository) FindByID(_ context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	out := *b
	return &out, nil
}

func (r *memoryBookingRepository) FindActive(_ context.Context, userID, resourceID string, bookingDate time.Time) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[model.SlotKey(userID, resourceID, bookingDate)]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *memoryBookingRepository) UpdateStatus(_ context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if b.Status != from {
		return nil, bookingserrors.ErrStatusConflict
	}

	key := b.SlotKey()
	if to == model.StatusActive {
		if _, taken := r.active[key]; taken {
			return nil, bookingserrors.ErrDuplicateActive
		}
		r.active[key] = id
	} else if from == model.StatusActive {
		delete(r.active, key)
	}

	b.Status = to
	out := *b
	return &out, nil
}

func (r *memoryBookingRepository) List(_ context.Context, filter Filter) ([]*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Booking, 0)
	for _, id := range r.order {
		b := r.byID[id]
		if !matches(b, filter) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}

	if filter.Order == OrderBookingDateDesc {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].BookingDate.After(out[j].BookingDate)
		})
	}
	return out, nil
}

func matches(b *model.Booking, f Filter) bool {
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.ResourceID != "" && b.ResourceID != f.ResourceID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

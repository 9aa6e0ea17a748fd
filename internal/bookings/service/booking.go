package service

import (
	"context"
	"errors"
	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/internal/bookings/locker"
	"slotguard/internal/bookings/repository"
	"slotguard/internal/bookings/validator"
	"slotguard/internal/events"
	apperrors "slotguard/pkg/errors"
	"slotguard/pkg/logger"
	"slotguard/pkg/model"
	"slotguard/pkg/sanitizer"
	"time"
)

const emitTimeout = 5 * time.Second

type BookingService interface {
	Create(ctx context.Context, req model.BookingRequest) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListActive(ctx context.Context) ([]*model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Booking, error)
	ListByResource(ctx context.Context, resourceID string) ([]*model.Booking, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	locker    locker.SlotLocker
	validator *validator.BookingValidator
	sink      events.Sink
	log       *logger.Logger
}

func NewBookingService(
	repo repository.BookingRepository,
	slotLocker locker.SlotLocker,
	validator *validator.BookingValidator,
	sink events.Sink,
	log *logger.Logger,
) BookingService {
	return &bookingService{
		repo:      repo,
		locker:    slotLocker,
		validator: validator,
		sink:      sink,
		log:       log,
	}
}

// Create books a slot. The slot lock and the transaction together make the
// check-then-insert atomic; the store's unique index backs them up.
func (s *bookingService) Create(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	sanitizer.SanitizeBookingRequest(&req)
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	unlock, err := s.lockSlot(ctx, req.SlotKey())
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking := &model.Booking{
		UserID:      req.UserID,
		ResourceID:  req.ResourceID,
		BookingDate: req.BookingDate,
		Status:      model.StatusActive,
		Notes:       req.Notes,
	}

	err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindActive(txCtx, req.UserID, req.ResourceID, req.BookingDate)
		switch {
		case err == nil && existing != nil:
			return apperrors.DuplicateBooking(req.UserID, req.ResourceID, req.BookingDate)
		case err != nil && !errors.Is(err, bookingserrors.ErrNotFound):
			return apperrors.Internal("Failed to check for existing booking", err)
		}

		if err := s.repo.Insert(txCtx, booking); err != nil {
			if errors.Is(err, bookingserrors.ErrDuplicateActive) {
				return apperrors.DuplicateBooking(req.UserID, req.ResourceID, req.BookingDate)
			}
			return apperrors.Internal("Failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("Failed to create booking", err,
			"user_id", req.UserID,
			"resource_id", req.ResourceID,
			"booking_date", req.BookingDate,
		)
		return nil, apperrors.AsAppError(err)
	}

	s.log.Info("Booking created successfully",
		"id", booking.ID,
		"user_id", booking.UserID,
		"resource_id", booking.ResourceID,
		"booking_date", booking.BookingDate,
	)
	s.emit(ctx, model.NewBookingCreated(booking))
	return booking, nil
}

// Cancel moves an ACTIVE booking to CANCELLED. The update is conditional on the status
// read, so of two racing cancels exactly one wins.
func (s *bookingService) Cancel(ctx context.Context, id string) (*model.Booking, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}

	var cancelled *model.Booking
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return s.mapLookupError(id, err)
		}
		if !current.Status.CanTransitionTo(model.StatusCancelled) {
			return apperrors.InvalidStateTransition(id, string(current.Status))
		}

		updated, err := s.repo.UpdateStatus(txCtx, id, model.StatusActive, model.StatusCancelled)
		switch {
		case errors.Is(err, bookingserrors.ErrStatusConflict):
			return apperrors.InvalidStateTransition(id, string(model.StatusCancelled))
		case err != nil:
			return s.mapLookupError(id, err)
		}
		cancelled = updated
		return nil
	})
	if err != nil {
		s.logFailure("Failed to cancel booking", err, "id", id)
		return nil, apperrors.AsAppError(err)
	}

	s.log.Info("Booking cancelled successfully", "id", cancelled.ID)
	s.emit(ctx, model.NewBookingCancelled(cancelled))
	return cancelled, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := s.validateID(id); err != nil {
		return nil, err
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(id, err)
	}
	return booking, nil
}

func (s *bookingService) ListActive(ctx context.Context) ([]*model.Booking, error) {
	return s.list(ctx, repository.Filter{
		Status: model.StatusActive,
		Order:  repository.OrderBookingDateDesc,
	})
}

func (s *bookingService) ListByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	userID = sanitizer.SanitizeIdentifier(userID)
	if userID == "" {
		return nil, apperrors.Validation("user_id is required", map[string]any{"user_id": "user_id is required"})
	}
	return s.list(ctx, repository.Filter{UserID: userID, Status: model.StatusActive})
}

func (s *bookingService) ListByResource(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	resourceID = sanitizer.SanitizeIdentifier(resourceID)
	if resourceID == "" {
		return nil, apperrors.Validation("resource_id is required", map[string]any{"resource_id": "resource_id is required"})
	}
	return s.list(ctx, repository.Filter{ResourceID: resourceID, Status: model.StatusActive})
}

func (s *bookingService) list(ctx context.Context, filter repository.Filter) ([]*model.Booking, error) {
	bookings, err := s.repo.List(ctx, filter)
	if err != nil {
		s.log.Error("Failed to list bookings", "error", err)
		return nil, apperrors.Internal("Failed to retrieve bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) validate(req *model.BookingRequest) error {
	if err := s.validator.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperrors.Validation("Invalid booking request", verrs.Details())
		}
		return apperrors.Validation(err.Error(), nil)
	}
	return nil
}

func (s *bookingService) validateID(id string) error {
	if err := s.validator.ValidateID(id); err != nil {
		return apperrors.Validation("Booking ID cannot be empty", map[string]any{"id": "id is required"})
	}
	return nil
}

// mapLookupError treats a malformed id like an unknown one; ids are opaque to clients.
func (s *bookingService) mapLookupError(id string, err error) error {
	if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	return apperrors.Internal("Failed to retrieve booking", err)
}

func (s *bookingService) lockSlot(ctx context.Context, key string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, key)
	if err == nil {
		return unlock, nil
	}
	if errors.Is(err, bookingserrors.ErrLockNotAcquired) {
		s.log.Warn("Gave up waiting for booking slot", "error", err)
		return nil, apperrors.Timeout("Timed out waiting for the booking slot")
	}
	s.log.Error("Failed to lock booking slot", "error", err)
	return nil, apperrors.Internal("Failed to lock booking slot", err)
}

// emit hands the event to the sink. The change is already committed, so a delivery
// failure is logged and never reported to the caller.
func (s *bookingService) emit(ctx context.Context, event model.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := s.sink.Publish(ctx, event); err != nil {
		s.log.Error("Failed to publish booking event", "event", event.Kind, "id", event.Booking.ID, "error", err)
	}
}

func (s *bookingService) logFailure(msg string, err error, attrs ...any) {
	appErr := apperrors.AsAppError(err)
	if appErr.StatusCode() >= 500 {
		s.log.Error(msg, append(attrs, "error", err)...)
		return
	}
	s.log.Info(msg, append(attrs, "code", appErr.Code)...)
}

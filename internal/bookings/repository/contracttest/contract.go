// Package contracttest holds the behaviour every BookingRepository implementation must share.
// Backend test files call Run with a factory returning an empty store.
package contracttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bookingserrors "slotguard/internal/bookings/errors"
	"slotguard/internal/bookings/repository"
	"slotguard/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend struct {
	// New returns an empty repository.
	New func(t *testing.T) repository.BookingRepository
	// MissingID is well formed for the backend but names no booking.
	MissingID func() string
}

var baseDate = time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)

func booking(user, resource string, date time.Time) *model.Booking {
	return &model.Booking{
		UserID:      user,
		ResourceID:  resource,
		BookingDate: model.NormalizeBookingDate(date),
		Status:      model.StatusActive,
		Notes:       "contract",
	}
}

func Run(t *testing.T, b Backend) {
	t.Run("InsertAssignsIdentity", func(t *testing.T) { testInsertAssignsIdentity(t, b) })
	t.Run("RejectsSecondActiveBooking", func(t *testing.T) { testRejectsSecondActive(t, b) })
	t.Run("DistinctSlotsCoexist", func(t *testing.T) { testDistinctSlots(t, b) })
	t.Run("CancelledBookingFreesSlot", func(t *testing.T) { testCancelFreesSlot(t, b) })
	t.Run("UpdateStatusIsConditional", func(t *testing.T) { testUpdateStatusConditional(t, b) })
	t.Run("MissingBooking", func(t *testing.T) { testMissing(t, b) })
	t.Run("ListFiltersAndOrders", func(t *testing.T) { testList(t, b) })
	t.Run("ConcurrentInsertSameSlot", func(t *testing.T) { testConcurrentInsert(t, b) })
	t.Run("ConcurrentCancel", func(t *testing.T) { testConcurrentCancel(t, b) })
	t.Run("TransactionPropagatesError", func(t *testing.T) { testTransactionError(t, b) })
}

func testInsertAssignsIdentity(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()

	in := booking("u1", "r1", baseDate)
	before := time.Now().Add(-time.Second)
	require.NoError(t, repo.Insert(ctx, in))
	assert.NotEmpty(t, in.ID)
	assert.True(t, in.CreatedAt.After(before), "created_at %s", in.CreatedAt)

	got, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "r1", got.ResourceID)
	assert.True(t, got.BookingDate.Equal(baseDate))
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, "contract", got.Notes)
	assert.WithinDuration(t, in.CreatedAt, got.CreatedAt, time.Millisecond)
}

func testRejectsSecondActive(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, booking("u1", "r1", baseDate)))
	err := repo.Insert(ctx, booking("u1", "r1", baseDate))
	assert.True(t, errors.Is(err, bookingserrors.ErrDuplicateActive), "got %v", err)

	found, err := repo.FindActive(ctx, "u1", "r1", baseDate)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, found.Status)
}

func testDistinctSlots(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()

	for _, in := range []*model.Booking{
		booking("u1", "r1", baseDate),
		booking("u2", "r1", baseDate),
		booking("u1", "r2", baseDate),
		booking("u1", "r1", baseDate.Add(time.Second)),
	} {
		require.NoError(t, repo.Insert(ctx, in))
	}

	all, err := repo.List(ctx, repository.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testCancelFreesSlot(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()

	first := booking("u1", "r1", baseDate)
	require.NoError(t, repo.Insert(ctx, first))

	cancelled, err := repo.UpdateStatus(ctx, first.ID, model.StatusActive, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	_, err = repo.FindActive(ctx, "u1", "r1", baseDate)
	assert.True(t, errors.Is(err, bookingserrors.ErrNotFound), "got %v", err)

	second := booking("u1", "r1", baseDate)
	require.NoError(t, repo.Insert(ctx, second))
	assert.NotEqual(t, first.ID, second.ID)
}

func testUpdateStatusConditional(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()

	in := booking("u1", "r1", baseDate)
	require.NoError(t, repo.Insert(ctx, in))
	_, err := repo.UpdateStatus(ctx, in.ID, model.StatusActive, model.StatusCancelled)
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, in.ID, model.StatusActive, model.StatusCancelled)
	assert.True(t, errors.Is(err, bookingserrors.ErrStatusConflict), "got %v", err)

	got, err := repo.FindByID(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func testMissing(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()
	id := b.MissingID()

	_, err := repo.FindByID(ctx, id)
	assert.True(t, errors.Is(err, bookingserrors.ErrNotFound), "got %v", err)

	_, err = repo.UpdateStatus(ctx, id, model.StatusActive, model.StatusCancelled)
	assert.True(t, errors.Is(err, bookingserrors.ErrNotFound), "got %v", err)

	_, err = repo.FindActive(ctx, "nobody", "nothing", baseDate)
	assert.True(t, errors.Is(err, bookingserrors.ErrNotFound), "got %v", err)

	list, err := repo.List(ctx, repository.Filter{UserID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func testList(t *testing.T, b Backend) {
	repo := b.New(t)
	ctx := context.Background()

	dates := []time.Time{baseDate.Add(time.Hour), baseDate.Add(3 * time.Hour), baseDate.Add(2 * time.Hour)}
	ids := make([]string, len(dates))
	for i, d := range dates {
		in := booking("u1", fmt.Sprintf("r%d", i), d)
		require.NoError(t, repo.Insert(ctx, in))
		ids[i] = in.ID
		// created_at ordering needs distinguishable timestamps on millisecond stores.
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, repo.Insert(ctx, booking("u2", "r0", baseDate)))

	_, err := repo.UpdateStatus(ctx, ids[2], model.StatusActive, model.StatusCancelled)
	require.NoError(t, err)

	byUser, err := repo.List(ctx, repository.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	for i := range ids {
		assert.Equal(t, ids[i], byUser[i].ID, "insertion order at %d", i)
	}

	active, err := repo.List(ctx, repository.Filter{UserID: "u1", Status: model.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, ids[0], active[0].ID)
	assert.Equal(t, ids[1], active[1].ID)

	byResource, err := repo.List(ctx, repository.Filter{ResourceID: "r0", Status: model.StatusActive})
	require.NoError(t, err)
	assert.Len(t, byResource, 2)

	newest, err := repo.List(ctx, repository.Filter{Status: model.StatusActive, Order: repository.OrderBookingDateDesc})
	require.NoError(t, err)
	require.Len(t, newest, 3)
	assert.Equal(t, ids[1], newest[0].ID)
	assert.Equal(t, ids[0], newest[1].ID)
	assert.Equal(t, "u2", newest[2].UserID)
}

func testConcurrentInsert(t *testing.T, b Backend) {
	repo := b.New(t)

	const n = 20
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(context.Background(), booking("u1", "r1", baseDate))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, bookingserrors.ErrDuplicateActive):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), duplicates.Load())
}

func testConcurrentCancel(t *testing.T, b Backend) {
	repo := b.New(t)
	in := booking("u1", "r1", baseDate)
	require.NoError(t, repo.Insert(context.Background(), in))

	const n = 10
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateStatus(context.Background(), in.ID, model.StatusActive, model.StatusCancelled)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, bookingserrors.ErrStatusConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
}

func testTransactionError(t *testing.T, b Backend) {
	repo := b.New(t)
	boom := errors.New("boom")

	err := repo.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := repo.FindActive(ctx, "u1", "r1", baseDate); !errors.Is(err, bookingserrors.ErrNotFound) {
			return fmt.Errorf("expected empty store, got %v", err)
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom), "got %v", err)
}

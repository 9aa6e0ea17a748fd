package integrationtests

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	apperrors "slotguard/pkg/errors"
	"slotguard/pkg/model"
	"slotguard/test/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniqueRequest returns a request for a slot no other test run has touched.
func uniqueRequest() model.BookingRequest {
	return model.BookingRequest{
		UserID:      "user-" + uuid.NewString(),
		ResourceID:  "room-" + uuid.NewString(),
		BookingDate: time.Date(2030, 1, 15, 10, 0, 0, 0, time.UTC),
		Notes:       "integration",
	}
}

func TestBookingLifecycle(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	c := srv.Client
	ctx := context.Background()
	req := uniqueRequest()

	resp, err := c.Create(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())
	created, err := c.DecodeBooking(resp)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusActive, created.Status)
	assert.True(t, created.BookingDate.Equal(req.BookingDate))

	resp, err = c.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body, err := resp.DecodeError()
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeDuplicateBooking, body.Code)

	resp, err = c.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = c.Cancel(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
	cancelled, err := c.DecodeBooking(resp)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	resp, err = c.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body, err = resp.DecodeError()
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeInvalidStateTransition, body.Code)

	// A cancelled booking frees its slot.
	resp, err = c.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = c.ListByUser(ctx, req.UserID)
	require.NoError(t, err)
	bookings, err := c.DecodeBookings(resp)
	require.NoError(t, err)
	require.Len(t, bookings, 1, "only ACTIVE bookings are listed")
	assert.NotEqual(t, created.ID, bookings[0].ID)
	assert.Equal(t, model.StatusActive, bookings[0].Status)
}

func TestConcurrentCreateSameSlot(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	c := srv.Client
	req := uniqueRequest()

	const n = 30
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Create(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[http.StatusCreated])
	assert.Equal(t, n-1, statuses[http.StatusConflict])

	resp, err := c.ListByResource(context.Background(), req.ResourceID)
	require.NoError(t, err)
	bookings, err := c.DecodeBookings(resp)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestEquivalentDatesShareASlot(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	c := srv.Client
	ctx := context.Background()
	req := uniqueRequest()

	resp, err := c.Create(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	shifted := req
	shifted.BookingDate = req.BookingDate.In(time.FixedZone("UTC+2", 2*3600)).Add(300 * time.Millisecond)
	shifted.UserID = "  " + req.UserID + "\t"

	resp, err = c.Create(ctx, shifted)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, resp.ToString())
}

func TestCreateRejectsBadInput(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	c := srv.Client
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed JSON", `{"user_id": "u1",`, apperrors.CodeInvalidInput},
		{"missing fields", `{"notes": "x"}`, apperrors.CodeValidation},
		{"blank user", `{"user_id": "   ", "resource_id": "r1", "booking_date": "2030-01-01T00:00:00Z"}`, apperrors.CodeValidation},
		{"unparseable date", `{"user_id": "u1", "resource_id": "r1", "booking_date": "tomorrow"}`, apperrors.CodeValidation},
		{"empty date", `{"user_id": "u1", "resource_id": "r1", "booking_date": ""}`, apperrors.CodeValidation},
		{"numeric date", `{"user_id": "u1", "resource_id": "r1", "booking_date": 12}`, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.CreateRaw(ctx, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, err := resp.DecodeError()
			require.NoError(t, err)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestIdempotentCreateReplays(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	c := srv.Client
	ctx := context.Background()
	req := uniqueRequest()
	key := uuid.NewString()

	first, err := c.CreateIdempotent(ctx, req, key)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, err := c.CreateIdempotent(ctx, req, key)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))

	a, err := c.DecodeBooking(first)
	require.NoError(t, err)
	b, err := c.DecodeBooking(second)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestUnknownBooking(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	ctx := context.Background()

	resp, err := srv.Client.GetByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = srv.Client.Cancel(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLegacyRoutes(t *testing.T) {
	srv := common.StartServer(t)
	defer srv.Close()
	h := srv.Client.HTTP()
	ctx := context.Background()
	req := uniqueRequest()

	resp, err := h.POST(ctx, "/api/bookings/add", req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created, err := srv.Client.DecodeBooking(resp)
	require.NoError(t, err)

	resp, err = h.GET(ctx, "/api/bookings/user/"+req.UserID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.GET(ctx, "/api/bookings/all")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = h.PUT(ctx, "/api/bookings/cancel/"+created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slotguard/pkg/model"
)

const idempotencyHeader = "Idempotency-Key"

// BookingClient is a thin typed client for the bookings HTTP API. Every call returns the raw
// response so callers can assert on status codes; Decode* helpers unwrap the data envelope.
type BookingClient struct {
	httpClient *HttpClient
}

func NewBookingClient(baseUrl string) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseUrl),
	}
}

func (c *BookingClient) HTTP() *HttpClient {
	return c.httpClient
}

func (c *BookingClient) Create(ctx context.Context, req model.BookingRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/bookings", req)
}

// CreateIdempotent sends req with an Idempotency-Key; a retried key replays the first response.
func (c *BookingClient) CreateIdempotent(ctx context.Context, req model.BookingRequest, key string) (*Response, error) {
	return c.httpClient.POSTWithHeaders(ctx, "/api/v1/bookings", req, map[string]string{idempotencyHeader: key})
}

func (c *BookingClient) CreateRaw(ctx context.Context, rawBody []byte) (*Response, error) {
	return c.httpClient.POSTRaw(ctx, "/api/v1/bookings", rawBody)
}

func (c *BookingClient) Cancel(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.PUT(ctx, "/api/v1/bookings/id/"+url.PathEscape(id)+"/cancel", nil)
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/id/"+url.PathEscape(id))
}

func (c *BookingClient) ListActive(ctx context.Context) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings")
}

func (c *BookingClient) ListByUser(ctx context.Context, userID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/user/"+url.PathEscape(userID))
}

func (c *BookingClient) ListByResource(ctx context.Context, resourceID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/bookings/resource/"+url.PathEscape(resourceID))
}

func (c *BookingClient) DecodeBooking(resp *Response) (*model.Booking, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode booking wrapper:\n%s\n%w", resp.ToString(), err)
	}

	var booking model.Booking
	if err := json.Unmarshal(wrapper.Data, &booking); err != nil {
		return nil, fmt.Errorf("could not decode booking json:\n%s\n%w", resp.ToString(), err)
	}

	return &booking, nil
}

func (c *BookingClient) DecodeBookings(resp *Response) ([]*model.Booking, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, fmt.Errorf("could not decode list wrapper:\n%s\n%w", resp.ToString(), err)
	}

	var bookings []*model.Booking
	if err := json.Unmarshal(wrapper.Data, &bookings); err != nil {
		return nil, fmt.Errorf("could not decode booking list:\n%s\n%w", resp.ToString(), err)
	}

	return bookings, nil
}

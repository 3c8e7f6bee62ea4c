// Package api is the typed client for the authoritative charging backend.
// All canonical state transitions go through these calls; client-side
// components only hold eventually stale replicas of what they return.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chargesync/domain"
)

// APIError carries the backend's structured error body. State conflicts
// arrive as 409 and must never be retried automatically.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.StatusCode, e.Message)
}

// Conflict reports whether the error is a state error rather than a
// transport failure.
func (e *APIError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

// Client wraps the backend endpoints used by both client roles.
type Client struct {
	base *BaseClient
}

// NewClient builds a client. A nil httpClient gets a default with a 10s
// timeout, which doubles as the per-poll timeout for the staff loop.
func NewClient(baseURL string, httpClient HTTPDoer) *Client {
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(10 * time.Second)
	}
	return &Client{base: NewBaseClient(baseURL, httpClient)}
}

// CreateBookingRequest mirrors POST /bookings.
type CreateBookingRequest struct {
	StationID       string    `json:"station_id"`
	ChargingPointID int64     `json:"charging_point_id"`
	VehicleID       int64     `json:"vehicle_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

// CreateBooking registers a reservation request.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (domain.Booking, error) {
	var booking domain.Booking
	err := c.call(ctx, http.MethodPost, "/bookings", req, &booking)
	return booking, err
}

// ConfirmBooking moves a booking to CONFIRMED.
func (c *Client) ConfirmBooking(ctx context.Context, bookingID int64) (domain.Booking, error) {
	var booking domain.Booking
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/confirm", bookingID), nil, &booking)
	return booking, err
}

// IssueCapability fetches the QR token for a confirmed booking.
func (c *Client) IssueCapability(ctx context.Context, bookingID int64) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/qr", bookingID), nil, &resp)
	return resp.Token, err
}

// CancelBooking cancels a booking still REQUESTED or CONFIRMED.
func (c *Client) CancelBooking(ctx context.Context, bookingID int64) (domain.Booking, error) {
	var booking domain.Booking
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/bookings/%d/cancel", bookingID), nil, &booking)
	return booking, err
}

// StartSessionRequest mirrors POST /sessions/start.
type StartSessionRequest struct {
	BookingID    int64   `json:"booking_id"`
	VehiclePlate string  `json:"vehicle_plate"`
	InitialSoc   float64 `json:"initial_soc"`
}

// StartSession consumes the booking and opens a session.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (domain.Session, error) {
	var session domain.Session
	err := c.call(ctx, http.MethodPost, "/sessions/start", req, &session)
	return session, err
}

// ListStationSessions fetches the authoritative session list for a station.
func (c *Client) ListStationSessions(ctx context.Context, stationID string) ([]domain.Session, error) {
	var resp struct {
		Sessions []domain.Session `json:"sessions"`
	}
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/stations/%s/sessions", stationID), nil, &resp)
	return resp.Sessions, err
}

// StopSession finalizes a session. finalSoc is the optional driver-side
// hint; nil lets the backend use its own reading. The call is idempotent
// once the session is COMPLETED.
func (c *Client) StopSession(ctx context.Context, sessionID int64, finalSoc *float64) (domain.Session, error) {
	body := struct {
		FinalSoc *float64 `json:"final_soc,omitempty"`
	}{FinalSoc: finalSoc}

	var session domain.Session
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/stop", sessionID), body, &session)
	return session, err
}

// Settle produces the invoice for a completed session.
func (c *Client) Settle(ctx context.Context, sessionID int64) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/settle", sessionID), nil, &invoice)
	return invoice, err
}

// PayInvoice marks an invoice paid.
func (c *Client) PayInvoice(ctx context.Context, invoiceID int64, method string) (domain.Invoice, error) {
	body := struct {
		PaymentMethod string `json:"payment_method"`
	}{PaymentMethod: method}

	var invoice domain.Invoice
	err := c.call(ctx, http.MethodPost, fmt.Sprintf("/invoices/%d/pay", invoiceID), body, &invoice)
	return invoice, err
}

func (c *Client) call(ctx context.Context, method, path string, reqBody, target interface{}) error {
	var payload []byte
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		payload = data
	}

	status, body, err := c.base.Do(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errBody)
		if errBody.Error == "" {
			errBody.Error = http.StatusText(status)
		}
		return &APIError{StatusCode: status, Message: errBody.Error}
	}

	if target == nil {
		return nil
	}
	return json.Unmarshal(body, target)
}

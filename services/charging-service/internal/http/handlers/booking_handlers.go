package handlers

import (
	"net/http"
	"time"

	"chargesync/services/charging-service/internal/service"
)

// BookingHandlers exposes the reservation ledger.
type BookingHandlers struct {
	bookings *service.BookingService
}

// NewBookingHandlers returns handlers.
func NewBookingHandlers(bookings *service.BookingService) *BookingHandlers {
	return &BookingHandlers{bookings: bookings}
}

type createBookingRequest struct {
	StationID       string    `json:"station_id"`
	ChargingPointID int64     `json:"charging_point_id"`
	VehicleID       int64     `json:"vehicle_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

// Create handles POST /bookings.
func (h *BookingHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StationID == "" || req.ChargingPointID <= 0 {
		writeError(w, http.StatusBadRequest, "station_id and charging_point_id required")
		return
	}

	booking, err := h.bookings.Create(r.Context(), service.CreateBookingInput{
		StationID:       req.StationID,
		ChargingPointID: req.ChargingPointID,
		VehicleID:       req.VehicleID,
		WindowStart:     req.WindowStart,
		WindowEnd:       req.WindowEnd,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// Confirm handles POST /bookings/{id}/confirm.
func (h *BookingHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := h.bookings.Confirm(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// IssueCapability handles POST /bookings/{id}/qr.
func (h *BookingHandlers) IssueCapability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	token, err := h.bookings.IssueCapability(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Cancel handles POST /bookings/{id}/cancel.
func (h *BookingHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := h.bookings.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

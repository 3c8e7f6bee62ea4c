package handlers

import (
	"net/http"

	"chargesync/services/charging-service/internal/service"
)

// SessionHandlers exposes the session lifecycle and settlement.
type SessionHandlers struct {
	sessions   *service.SessionService
	settlement *service.SettlementService
}

// NewSessionHandlers returns handlers.
func NewSessionHandlers(sessions *service.SessionService, settlement *service.SettlementService) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, settlement: settlement}
}

type startSessionRequest struct {
	BookingID    int64   `json:"booking_id"`
	VehiclePlate string  `json:"vehicle_plate"`
	InitialSoc   float64 `json:"initial_soc"`
}

// Start handles POST /sessions/start. The booking id is the idempotency key;
// the losing side of a concurrent start gets a 409.
func (h *SessionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookingID <= 0 {
		writeError(w, http.StatusBadRequest, "booking_id required")
		return
	}

	session, err := h.sessions.Start(r.Context(), service.StartSessionInput{
		BookingID:    req.BookingID,
		VehiclePlate: req.VehiclePlate,
		InitialSoc:   req.InitialSoc,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// StationSessions handles GET /stations/{id}/sessions.
func (h *SessionHandlers) StationSessions(w http.ResponseWriter, r *http.Request) {
	stationID := r.PathValue("id")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "invalid station id")
		return
	}

	sessions, err := h.sessions.ListByStation(r.Context(), stationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

type stopSessionRequest struct {
	FinalSoc *float64 `json:"final_soc,omitempty"`
}

// Stop handles POST /sessions/{id}/stop. Stopping a COMPLETED session
// returns the recorded result with 200, so retries are safe.
func (h *SessionHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req stopSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	session, err := h.sessions.Stop(r.Context(), id, req.FinalSoc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Settle handles POST /sessions/{id}/settle.
func (h *SessionHandlers) Settle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	invoice, err := h.settlement.Settle(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

type payInvoiceRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// Pay handles POST /invoices/{id}/pay.
func (h *SessionHandlers) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	var req payInvoiceRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}

	invoice, err := h.settlement.Pay(r.Context(), id, req.PaymentMethod)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

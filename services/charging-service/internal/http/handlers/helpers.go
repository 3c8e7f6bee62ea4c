package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"chargesync/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses: missing
// records are 404, state conflicts are 409, anything else is 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNotConfirmed),
		errors.Is(err, domain.ErrAlreadyConsumed),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrBookingExpired),
		errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrSessionNotCompleted),
		errors.Is(err, domain.ErrInvoicePaid):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

package domain

import "errors"

// State errors are returned synchronously by booking/session transitions.
// They are terminal for the attempted operation and must never be retried
// automatically.
var (
	ErrInvalidState     = errors.New("booking is not in a state that allows this transition")
	ErrNotConfirmed     = errors.New("booking is not confirmed")
	ErrAlreadyConsumed  = errors.New("booking already consumed")
	ErrAlreadyCancelled = errors.New("booking already cancelled")
	ErrBookingExpired   = errors.New("booking expired")

	ErrBookingNotFound = errors.New("booking not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	ErrSessionNotActive    = errors.New("session is not in progress")
	ErrSessionNotCompleted = errors.New("session is not completed")
	ErrInvoicePaid         = errors.New("invoice already paid")
)

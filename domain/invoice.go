package domain

import "time"

// Invoice states.
const (
	InvoiceUnpaid = "UNPAID"
	InvoicePaid   = "PAID"
)

// Invoice is produced from a finalized session. Exactly one exists per
// session; immutable once PAID.
type Invoice struct {
	ID            int64     `db:"id" json:"id"`
	SessionID     int64     `db:"session_id" json:"session_id"`
	Amount        float64   `db:"amount" json:"amount"`
	Currency      string    `db:"currency" json:"currency"`
	Status        string    `db:"status" json:"status"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

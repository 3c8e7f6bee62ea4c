package service

import (
	"context"

	"chargesync/domain"
)

// BookingStore persists bookings. UpdateStatus is a compare-and-swap: the
// transition applies only if the stored status still equals from, and the
// returned bool reports whether it did. That CAS is what keeps concurrent
// consumption of one booking down to a single winner.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *domain.Booking) error
	GetBooking(ctx context.Context, id int64) (domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, from, to string) (bool, error)
}

// SessionStore persists charging sessions. Finalize applies the terminal
// fields only while the stored status is still IN_PROGRESS and reports
// whether it won the transition.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id int64) (domain.Session, error)
	ListSessionsByStation(ctx context.Context, stationID string) ([]domain.Session, error)
	FinalizeSession(ctx context.Context, session domain.Session) (bool, error)
}

// InvoiceStore persists invoices, at most one per session.
type InvoiceStore interface {
	CreateInvoiceForSession(ctx context.Context, invoice *domain.Invoice) (domain.Invoice, error)
	GetInvoiceBySession(ctx context.Context, sessionID int64) (domain.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID int64, method string) (domain.Invoice, error)
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargesync/domain"
)

// InvoiceRepository persists invoices in Postgres. A unique index on
// session_id backs the one-invoice-per-session rule.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository returns repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// CreateInvoiceForSession inserts the invoice unless the session already has
// one; either way the session's invoice is returned.
func (r *InvoiceRepository) CreateInvoiceForSession(ctx context.Context, invoice *domain.Invoice) (domain.Invoice, error) {
	const query = `
		INSERT INTO invoices (session_id, amount, currency, status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		invoice.SessionID,
		invoice.Amount,
		invoice.Currency,
		invoice.Status,
		invoice.PaymentMethod,
	).Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// The conflict path: another settle call got there first.
		return r.GetInvoiceBySession(ctx, invoice.SessionID)
	}
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

// GetInvoiceBySession returns the session's invoice.
func (r *InvoiceRepository) GetInvoiceBySession(ctx context.Context, sessionID int64) (domain.Invoice, error) {
	const query = `
		SELECT id, session_id, amount, currency, status, payment_method, created_at, updated_at
		FROM invoices
		WHERE session_id = $1
	`
	return r.scanInvoice(r.db.QueryRowContext(ctx, query, sessionID))
}

// MarkInvoicePaid transitions UNPAID to PAID once; repeated calls return the
// invoice unchanged.
func (r *InvoiceRepository) MarkInvoicePaid(ctx context.Context, invoiceID int64, method string) (domain.Invoice, error) {
	const query = `
		UPDATE invoices
		SET status = $2,
		    payment_method = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	if _, err := r.db.ExecContext(ctx, query, invoiceID, domain.InvoicePaid, method, domain.InvoiceUnpaid); err != nil {
		return domain.Invoice{}, err
	}

	const selectQuery = `
		SELECT id, session_id, amount, currency, status, payment_method, created_at, updated_at
		FROM invoices
		WHERE id = $1
	`
	return r.scanInvoice(r.db.QueryRowContext(ctx, selectQuery, invoiceID))
}

func (r *InvoiceRepository) scanInvoice(row *sql.Row) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.SessionID,
		&invoice.Amount,
		&invoice.Currency,
		&invoice.Status,
		&invoice.PaymentMethod,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

package service

import (
	"context"

	"go.uber.org/zap"

	"chargesync/domain"
)

// SettlementService turns finalized sessions into invoices. Exactly one
// invoice exists per session regardless of how often settle is called.
type SettlementService struct {
	sessions SessionStore
	invoices InvoiceStore
	logger   *zap.Logger
}

// NewSettlementService builds the service.
func NewSettlementService(sessions SessionStore, invoices InvoiceStore, logger *zap.Logger) *SettlementService {
	return &SettlementService{
		sessions: sessions,
		invoices: invoices,
		logger:   logger,
	}
}

// Settle creates the UNPAID invoice for a COMPLETED session, or returns the
// existing one. Sessions still charging or cancelled cannot be settled.
func (s *SettlementService) Settle(ctx context.Context, sessionID int64) (domain.Invoice, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if session.Status != domain.SessionCompleted {
		return domain.Invoice{}, domain.ErrSessionNotCompleted
	}

	invoice := domain.Invoice{
		SessionID: session.ID,
		Amount:    session.Cost,
		Currency:  session.Currency,
		Status:    domain.InvoiceUnpaid,
	}
	created, err := s.invoices.CreateInvoiceForSession(ctx, &invoice)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.logger.Info("session settled",
		zap.Int64("session_id", sessionID),
		zap.Int64("invoice_id", created.ID),
		zap.Float64("amount", created.Amount),
	)
	return created, nil
}

// Pay marks an invoice PAID. Paying a paid invoice returns it unchanged.
func (s *SettlementService) Pay(ctx context.Context, invoiceID int64, method string) (domain.Invoice, error) {
	return s.invoices.MarkInvoicePaid(ctx, invoiceID, method)
}

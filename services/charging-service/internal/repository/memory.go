package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"chargesync/domain"
)

// MemoryStore keeps bookings, sessions and invoices in process memory. It
// backs the dev mode (no DSN configured) and the test suites; the semantics,
// notably the compare-and-swap transitions, match the Postgres repositories.
type MemoryStore struct {
	mu sync.Mutex

	bookings map[int64]domain.Booking
	sessions map[int64]domain.Session
	invoices map[int64]domain.Invoice

	invoiceBySession map[int64]int64

	nextBookingID int64
	nextSessionID int64
	nextInvoiceID int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:         make(map[int64]domain.Booking),
		sessions:         make(map[int64]domain.Session),
		invoices:         make(map[int64]domain.Invoice),
		invoiceBySession: make(map[int64]int64),
	}
}

// CreateBooking assigns an id and stores the booking.
func (s *MemoryStore) CreateBooking(_ context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBookingID++
	booking.ID = s.nextBookingID
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	s.bookings[booking.ID] = *booking
	return nil
}

// GetBooking returns a stored booking.
func (s *MemoryStore) GetBooking(_ context.Context, id int64) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return booking, nil
}

// UpdateBookingStatus applies the transition only if the stored status still
// equals from.
func (s *MemoryStore) UpdateBookingStatus(_ context.Context, id int64, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	booking, ok := s.bookings[id]
	if !ok {
		return false, domain.ErrBookingNotFound
	}
	if booking.Status != from {
		return false, nil
	}
	booking.Status = to
	booking.UpdatedAt = time.Now().UTC()
	s.bookings[id] = booking
	return true, nil
}

// CreateSession assigns an id and stores the session.
func (s *MemoryStore) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	session.ID = s.nextSessionID
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	s.sessions[session.ID] = *session
	return nil
}

// GetSession returns a stored session.
func (s *MemoryStore) GetSession(_ context.Context, id int64) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// ListSessionsByStation returns the station's sessions, newest first.
func (s *MemoryStore) ListSessionsByStation(_ context.Context, stationID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []domain.Session
	for _, session := range s.sessions {
		if session.StationID == stationID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// FinalizeSession writes the terminal fields only while the stored session
// is still IN_PROGRESS.
func (s *MemoryStore) FinalizeSession(_ context.Context, session domain.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.ID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if stored.Status != domain.SessionInProgress {
		return false, nil
	}
	session.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = session
	return true, nil
}

// CreateInvoiceForSession stores a new invoice unless the session already
// has one, in which case the existing invoice is returned.
func (s *MemoryStore) CreateInvoiceForSession(_ context.Context, invoice *domain.Invoice) (domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.invoiceBySession[invoice.SessionID]; ok {
		return s.invoices[existingID], nil
	}

	s.nextInvoiceID++
	invoice.ID = s.nextInvoiceID
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	s.invoices[invoice.ID] = *invoice
	s.invoiceBySession[invoice.SessionID] = invoice.ID
	return *invoice, nil
}

// GetInvoiceBySession returns the session's invoice.
func (s *MemoryStore) GetInvoiceBySession(_ context.Context, sessionID int64) (domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.invoiceBySession[sessionID]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return s.invoices[id], nil
}

// MarkInvoicePaid transitions UNPAID to PAID once; repeated calls return the
// invoice unchanged.
func (s *MemoryStore) MarkInvoicePaid(_ context.Context, invoiceID int64, method string) (domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[invoiceID]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	if invoice.Status == domain.InvoicePaid {
		return invoice, nil
	}
	invoice.Status = domain.InvoicePaid
	invoice.PaymentMethod = method
	invoice.UpdatedAt = time.Now().UTC()
	s.invoices[invoiceID] = invoice
	return invoice, nil
}

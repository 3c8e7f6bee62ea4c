package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargesync/domain"
	"chargesync/qrtoken"
)

// BookingService owns the reservation ledger: requested bookings, backend
// confirmation, capability issuance, cancellation and lazy expiry. Expiry is
// never driven by a timer; EffectiveStatus is applied on every read.
type BookingService struct {
	store  BookingStore
	logger *zap.Logger
	now    func() time.Time
}

// NewBookingService builds the ledger.
func NewBookingService(store BookingStore, logger *zap.Logger) *BookingService {
	return &BookingService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingInput is a driver's reservation request.
type CreateBookingInput struct {
	StationID       string
	ChargingPointID int64
	VehicleID       int64
	WindowStart     time.Time
	WindowEnd       time.Time
}

// Create registers a new booking in REQUESTED state.
func (s *BookingService) Create(ctx context.Context, input CreateBookingInput) (domain.Booking, error) {
	booking := domain.Booking{
		StationID:       input.StationID,
		ChargingPointID: input.ChargingPointID,
		VehicleID:       input.VehicleID,
		Status:          domain.BookingRequested,
		WindowStart:     input.WindowStart,
		WindowEnd:       input.WindowEnd,
	}
	if err := s.store.CreateBooking(ctx, &booking); err != nil {
		return domain.Booking{}, err
	}
	s.logger.Info("booking created",
		zap.Int64("booking_id", booking.ID),
		zap.String("station_id", booking.StationID),
	)
	return booking, nil
}

// Get returns the booking with lazy expiry applied.
func (s *BookingService) Get(ctx context.Context, id int64) (domain.Booking, error) {
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	booking.Status = booking.EffectiveStatus(s.now())
	return booking, nil
}

// Confirm moves REQUESTED to CONFIRMED. Any other observed state, expired
// windows included, fails with ErrInvalidState.
func (s *BookingService) Confirm(ctx context.Context, id int64) (domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if booking.Status != domain.BookingRequested {
		return domain.Booking{}, domain.ErrInvalidState
	}

	applied, err := s.store.UpdateBookingStatus(ctx, id, domain.BookingRequested, domain.BookingConfirmed)
	if err != nil {
		return domain.Booking{}, err
	}
	if !applied {
		return domain.Booking{}, domain.ErrInvalidState
	}
	return s.Get(ctx, id)
}

// IssueCapability mints a QR token for a CONFIRMED booking. Issuing does not
// consume the booking and may be repeated.
func (s *BookingService) IssueCapability(ctx context.Context, id int64) (string, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if booking.Status != domain.BookingConfirmed {
		return "", domain.ErrNotConfirmed
	}
	return qrtoken.Encode(id)
}

// Cancel is allowed from REQUESTED or CONFIRMED only.
func (s *BookingService) Cancel(ctx context.Context, id int64) (domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}

	switch booking.Status {
	case domain.BookingConsumed:
		return domain.Booking{}, domain.ErrAlreadyConsumed
	case domain.BookingCancelled:
		return domain.Booking{}, domain.ErrAlreadyCancelled
	case domain.BookingExpired:
		return domain.Booking{}, domain.ErrBookingExpired
	}

	applied, err := s.store.UpdateBookingStatus(ctx, id, booking.Status, domain.BookingCancelled)
	if err != nil {
		return domain.Booking{}, err
	}
	if !applied {
		return domain.Booking{}, domain.ErrInvalidState
	}
	s.logger.Info("booking cancelled", zap.Int64("booking_id", id))
	return s.Get(ctx, id)
}

// Consume transitions CONFIRMED to CONSUMED exactly once. Losers of the race
// observe ErrAlreadyConsumed; bookings never confirmed observe
// ErrNotConfirmed.
func (s *BookingService) Consume(ctx context.Context, id int64) (domain.Booking, error) {
	booking, err := s.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}

	switch booking.Status {
	case domain.BookingConfirmed:
		// fall through to the CAS below
	case domain.BookingConsumed:
		return domain.Booking{}, domain.ErrAlreadyConsumed
	case domain.BookingCancelled:
		return domain.Booking{}, domain.ErrAlreadyCancelled
	case domain.BookingExpired:
		return domain.Booking{}, domain.ErrBookingExpired
	default:
		return domain.Booking{}, domain.ErrNotConfirmed
	}

	applied, err := s.store.UpdateBookingStatus(ctx, id, domain.BookingConfirmed, domain.BookingConsumed)
	if err != nil {
		return domain.Booking{}, err
	}
	if !applied {
		// Someone else finished the transition between our read and the CAS.
		current, err := s.Get(ctx, id)
		if err != nil {
			return domain.Booking{}, err
		}
		switch current.Status {
		case domain.BookingConsumed:
			return domain.Booking{}, domain.ErrAlreadyConsumed
		case domain.BookingCancelled:
			return domain.Booking{}, domain.ErrAlreadyCancelled
		default:
			return domain.Booking{}, domain.ErrInvalidState
		}
	}
	return s.Get(ctx, id)
}

// release is the rollback for a consume whose session could not be created.
func (s *BookingService) release(ctx context.Context, id int64) {
	applied, err := s.store.UpdateBookingStatus(ctx, id, domain.BookingConsumed, domain.BookingConfirmed)
	if err != nil || !applied {
		s.logger.Warn("failed to release consumed booking",
			zap.Int64("booking_id", id),
			zap.Error(err),
		)
	}
}

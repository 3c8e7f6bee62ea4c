package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargesync/domain"
)

// ChargingParams describe the tariff and the physical limits the backend
// uses for its own authoritative reading when no stop-time SOC hint arrives.
type ChargingParams struct {
	PricePerKWh        float64
	Currency           string
	RatedPowerKW       float64
	BatteryCapacityKWh float64
}

// DefaultChargingParams mirror a common 22 kW AC point.
func DefaultChargingParams() ChargingParams {
	return ChargingParams{
		PricePerKWh:        0.30,
		Currency:           "EUR",
		RatedPowerKW:       22,
		BatteryCapacityKWh: 60,
	}
}

// SessionService owns the canonical session lifecycle: consuming a booking
// into an IN_PROGRESS session, listing per station, and the idempotent stop
// that fixes finalSoc, energy and cost exactly once.
type SessionService struct {
	bookings *BookingService
	store    SessionStore
	params   ChargingParams
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService builds the service.
func NewSessionService(bookings *BookingService, store SessionStore, params ChargingParams, logger *zap.Logger) *SessionService {
	if params.RatedPowerKW <= 0 || params.BatteryCapacityKWh <= 0 {
		params = DefaultChargingParams()
	}
	return &SessionService{
		bookings: bookings,
		store:    store,
		params:   params,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartSessionInput comes from the driver device after a successful QR scan.
// InitialSoc is the vehicle's reading at plug-in.
type StartSessionInput struct {
	BookingID    int64
	VehiclePlate string
	InitialSoc   float64
}

// Start consumes the booking and creates the session. The booking id is the
// idempotency key: of two concurrent starts, exactly one creates a session
// and the other observes ErrAlreadyConsumed.
func (s *SessionService) Start(ctx context.Context, input StartSessionInput) (domain.Session, error) {
	booking, err := s.bookings.Consume(ctx, input.BookingID)
	if err != nil {
		return domain.Session{}, err
	}

	initialSoc := clamp(input.InitialSoc, 0, 100)
	session := domain.Session{
		BookingID:    booking.ID,
		StationID:    booking.StationID,
		PointNumber:  int(booking.ChargingPointID),
		VehiclePlate: input.VehiclePlate,
		Status:       domain.SessionInProgress,
		StartTime:    s.now(),
		InitialSoc:   initialSoc,
		Currency:     s.params.Currency,
		PricePerKWh:  s.params.PricePerKWh,
	}
	if err := s.store.CreateSession(ctx, &session); err != nil {
		s.bookings.release(ctx, booking.ID)
		return domain.Session{}, err
	}

	s.logger.Info("session started",
		zap.Int64("session_id", session.ID),
		zap.Int64("booking_id", booking.ID),
		zap.String("station_id", session.StationID),
		zap.Float64("initial_soc", initialSoc),
	)
	return session, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id int64) (domain.Session, error) {
	return s.store.GetSession(ctx, id)
}

// ListByStation returns every session the station has seen, newest first.
func (s *SessionService) ListByStation(ctx context.Context, stationID string) ([]domain.Session, error) {
	return s.store.ListSessionsByStation(ctx, stationID)
}

// Stop finalizes a session. A fresh driver-side SOC hint may arrive as
// finalSocHint; without one the backend falls back to its own power-model
// reading. Stopping an already COMPLETED session returns the recorded result
// unchanged, so concurrent stops and client retries are safe.
func (s *SessionService) Stop(ctx context.Context, sessionID int64, finalSocHint *float64) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}

	switch session.Status {
	case domain.SessionCompleted:
		return session, nil
	case domain.SessionCancelled:
		return domain.Session{}, domain.ErrSessionNotActive
	}

	now := s.now()
	finalized := s.finalize(session, now, finalSocHint)

	applied, err := s.store.FinalizeSession(ctx, finalized)
	if err != nil {
		return domain.Session{}, err
	}
	if !applied {
		// Lost the stop race: return whatever the winner recorded.
		current, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		if current.Status != domain.SessionCompleted {
			return domain.Session{}, domain.ErrSessionNotActive
		}
		return current, nil
	}

	s.logger.Info("session completed",
		zap.Int64("session_id", sessionID),
		zap.Float64("final_soc", *finalized.FinalSoc),
		zap.Float64("energy_kwh", finalized.EnergyKWh),
		zap.Float64("cost", finalized.Cost),
	)
	return finalized, nil
}

// finalize computes the terminal fields. With a hint, energy derives from the
// SOC delta; without one, from rated power over elapsed time, capped by what
// the battery could still take.
func (s *SessionService) finalize(session domain.Session, now time.Time, finalSocHint *float64) domain.Session {
	elapsed := now.Sub(session.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}

	capacity := s.params.BatteryCapacityKWh
	headroomKWh := (100 - session.InitialSoc) / 100 * capacity

	var finalSoc, energy float64
	if finalSocHint != nil {
		finalSoc = clamp(*finalSocHint, session.InitialSoc, 100)
		energy = (finalSoc - session.InitialSoc) / 100 * capacity
	} else {
		energy = s.params.RatedPowerKW * elapsed.Hours()
		if energy > headroomKWh {
			energy = headroomKWh
		}
		finalSoc = clamp(session.InitialSoc+energy/capacity*100, session.InitialSoc, 100)
	}

	endTime := now
	session.Status = domain.SessionCompleted
	session.EndTime = &endTime
	session.FinalSoc = &finalSoc
	session.EnergyKWh = energy
	session.DurationMinutes = elapsed.Minutes()
	session.Cost = energy * session.PricePerKWh
	return session
}

// Cancel is the abnormal stop: the session terminates without billing
// fields. Cancelling a session already terminal fails.
func (s *SessionService) Cancel(ctx context.Context, sessionID int64) (domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status != domain.SessionInProgress {
		return domain.Session{}, domain.ErrSessionNotActive
	}

	now := s.now()
	session.Status = domain.SessionCancelled
	session.EndTime = &now
	session.DurationMinutes = now.Sub(session.StartTime).Minutes()

	applied, err := s.store.FinalizeSession(ctx, session)
	if err != nil {
		return domain.Session{}, err
	}
	if !applied {
		return domain.Session{}, domain.ErrSessionNotActive
	}
	s.logger.Info("session cancelled without billing", zap.Int64("session_id", sessionID))
	return session, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

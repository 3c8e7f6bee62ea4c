package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargesync/domain"
	"chargesync/services/charging-service/internal/repository"
)

type fixture struct {
	store      *repository.MemoryStore
	bookings   *BookingService
	sessions   *SessionService
	settlement *SettlementService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := zap.NewNop()
	bookings := NewBookingService(store, logger)
	sessions := NewSessionService(bookings, store, DefaultChargingParams(), logger)
	settlement := NewSettlementService(store, store, logger)
	return &fixture{
		store:      store,
		bookings:   bookings,
		sessions:   sessions,
		settlement: settlement,
	}
}

func (f *fixture) confirmedBooking(t *testing.T) domain.Booking {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	booking, err := f.bookings.Create(ctx, CreateBookingInput{
		StationID:       "station-1",
		ChargingPointID: 2,
		VehicleID:       5,
		WindowStart:     now,
		WindowEnd:       now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if _, err := f.bookings.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm booking: %v", err)
	}
	return booking
}

func (f *fixture) startSession(t *testing.T, bookingID int64, initialSoc float64) domain.Session {
	t.Helper()
	session, err := f.sessions.Start(context.Background(), StartSessionInput{
		BookingID:    bookingID,
		VehiclePlate: "EV-123",
		InitialSoc:   initialSoc,
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func TestStartCreatesInProgressSession(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)

	session := f.startSession(t, booking.ID, 20)
	if session.Status != domain.SessionInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", session.Status)
	}
	if session.InitialSoc != 20 {
		t.Fatalf("expected initial soc 20, got %v", session.InitialSoc)
	}
	if session.PointNumber != 2 {
		t.Fatalf("expected point number 2, got %d", session.PointNumber)
	}
	if session.FinalSoc != nil || session.EndTime != nil {
		t.Fatalf("final fields must stay unset while active")
	}

	got, err := f.bookings.Get(context.Background(), booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.Status != domain.BookingConsumed {
		t.Fatalf("expected booking CONSUMED, got %s", got.Status)
	}
}

func TestConcurrentStartSingleConsumption(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.sessions.Start(context.Background(), StartSessionInput{
				BookingID:  booking.ID,
				InitialSoc: 20,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var created, consumed int
	for _, err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrAlreadyConsumed):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one session, got %d", created)
	}
	if consumed != attempts-1 {
		t.Fatalf("expected %d AlreadyConsumed results, got %d", attempts-1, consumed)
	}

	sessions, err := f.sessions.ListByStation(context.Background(), "station-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one stored session, got %d", len(sessions))
	}
}

func TestStartRequiresConfirmedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	booking, err := f.bookings.Create(ctx, CreateBookingInput{
		StationID:       "station-1",
		ChargingPointID: 1,
		WindowStart:     now,
		WindowEnd:       now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	_, err = f.sessions.Start(ctx, StartSessionInput{BookingID: booking.ID, InitialSoc: 20})
	if !errors.Is(err, domain.ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
}

func TestStopWithHintSetsFinalFieldsOnce(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 20)

	hint := 63.0
	stopped, err := f.sessions.Stop(context.Background(), session.ID, &hint)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.Status != domain.SessionCompleted {
		t.Fatalf("expected COMPLETED, got %s", stopped.Status)
	}
	if stopped.FinalSoc == nil || *stopped.FinalSoc != 63 {
		t.Fatalf("expected final soc 63, got %v", stopped.FinalSoc)
	}
	// 43 SOC points on a 60 kWh pack.
	wantEnergy := (63.0 - 20.0) / 100 * 60
	if diff := stopped.EnergyKWh - wantEnergy; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected energy %v, got %v", wantEnergy, stopped.EnergyKWh)
	}
	wantCost := wantEnergy * stopped.PricePerKWh
	if diff := stopped.Cost - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected cost %v, got %v", wantCost, stopped.Cost)
	}
	if stopped.EndTime == nil {
		t.Fatalf("expected end time to be set")
	}
}

func TestStopIdempotentOnceCompleted(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 20)

	hint := 55.0
	first, err := f.sessions.Stop(context.Background(), session.ID, &hint)
	if err != nil {
		t.Fatalf("first stop: %v", err)
	}

	// The second stop carries a different hint; it must be ignored.
	other := 99.0
	second, err := f.sessions.Stop(context.Background(), session.ID, &other)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if *first.FinalSoc != *second.FinalSoc {
		t.Fatalf("final soc revised: %v vs %v", *first.FinalSoc, *second.FinalSoc)
	}
	if first.Cost != second.Cost {
		t.Fatalf("cost revised: %v vs %v", first.Cost, second.Cost)
	}
	if first.EnergyKWh != second.EnergyKWh {
		t.Fatalf("energy revised: %v vs %v", first.EnergyKWh, second.EnergyKWh)
	}
}

func TestStopWithoutHintUsesPowerModel(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 40)

	// Pretend an hour has passed.
	f.sessions.now = func() time.Time { return session.StartTime.Add(time.Hour) }

	stopped, err := f.sessions.Stop(context.Background(), session.ID, nil)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	// 22 kW for one hour = 22 kWh on a 60 kWh pack starting at 40%.
	if diff := stopped.EnergyKWh - 22; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected 22 kWh, got %v", stopped.EnergyKWh)
	}
	if stopped.FinalSoc == nil || *stopped.FinalSoc <= 40 || *stopped.FinalSoc > 100 {
		t.Fatalf("final soc out of bounds: %v", stopped.FinalSoc)
	}
	if stopped.DurationMinutes != 60 {
		t.Fatalf("expected 60 minutes, got %v", stopped.DurationMinutes)
	}
}

func TestStopClampsHintToValidRange(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 50)

	// A hint below the initial SOC would mean negative energy; it clamps.
	low := 10.0
	stopped, err := f.sessions.Stop(context.Background(), session.ID, &low)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if *stopped.FinalSoc != 50 {
		t.Fatalf("expected clamp to initial soc 50, got %v", *stopped.FinalSoc)
	}
	if stopped.EnergyKWh != 0 {
		t.Fatalf("expected zero energy, got %v", stopped.EnergyKWh)
	}
}

func TestCancelSessionSkipsBilling(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 20)

	cancelled, err := f.sessions.Cancel(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.SessionCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.Cost != 0 || cancelled.FinalSoc != nil {
		t.Fatalf("abnormal stop must not bill")
	}

	// A cancelled session cannot be stopped or settled.
	if _, err := f.sessions.Stop(context.Background(), session.ID, nil); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("stop cancelled: expected ErrSessionNotActive, got %v", err)
	}
	if _, err := f.settlement.Settle(context.Background(), session.ID); !errors.Is(err, domain.ErrSessionNotCompleted) {
		t.Fatalf("settle cancelled: expected ErrSessionNotCompleted, got %v", err)
	}
}

func TestSettleExactlyOneInvoicePerSession(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 20)

	hint := 80.0
	stopped, err := f.sessions.Stop(context.Background(), session.ID, &hint)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}

	first, err := f.settlement.Settle(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if first.Status != domain.InvoiceUnpaid {
		t.Fatalf("expected UNPAID invoice, got %s", first.Status)
	}
	if first.Amount != stopped.Cost {
		t.Fatalf("invoice amount %v, expected session cost %v", first.Amount, stopped.Cost)
	}

	second, err := f.settlement.Settle(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same invoice, got %d and %d", first.ID, second.ID)
	}
}

func TestSettleRequiresCompletedSession(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 20)

	_, err := f.settlement.Settle(context.Background(), session.ID)
	if !errors.Is(err, domain.ErrSessionNotCompleted) {
		t.Fatalf("expected ErrSessionNotCompleted, got %v", err)
	}
}

func TestPayInvoiceOnce(t *testing.T) {
	f := newFixture(t)
	booking := f.confirmedBooking(t)
	session := f.startSession(t, booking.ID, 20)

	hint := 70.0
	if _, err := f.sessions.Stop(context.Background(), session.ID, &hint); err != nil {
		t.Fatalf("stop: %v", err)
	}
	invoice, err := f.settlement.Settle(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	paid, err := f.settlement.Pay(context.Background(), invoice.ID, "card")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.Status != domain.InvoicePaid {
		t.Fatalf("expected PAID, got %s", paid.Status)
	}

	// Paying again changes nothing.
	again, err := f.settlement.Pay(context.Background(), invoice.ID, "cash")
	if err != nil {
		t.Fatalf("second pay: %v", err)
	}
	if again.PaymentMethod != "card" {
		t.Fatalf("paid invoice mutated: method %s", again.PaymentMethod)
	}
}

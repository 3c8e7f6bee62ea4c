package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargesync/domain"
	"chargesync/qrtoken"
	"chargesync/services/charging-service/internal/repository"
)

func newTestLedger(t *testing.T) (*BookingService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return NewBookingService(store, zap.NewNop()), store
}

func createBooking(t *testing.T, svc *BookingService, window time.Duration) domain.Booking {
	t.Helper()
	now := time.Now().UTC()
	booking, err := svc.Create(context.Background(), CreateBookingInput{
		StationID:       "station-1",
		ChargingPointID: 3,
		VehicleID:       11,
		WindowStart:     now,
		WindowEnd:       now.Add(window),
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}

func TestIssueCapabilityOnlyWhenConfirmed(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	// REQUESTED
	booking := createBooking(t, svc, time.Hour)
	if _, err := svc.IssueCapability(ctx, booking.ID); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Fatalf("requested: expected ErrNotConfirmed, got %v", err)
	}

	// CONFIRMED
	if _, err := svc.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	token, err := svc.IssueCapability(ctx, booking.ID)
	if err != nil {
		t.Fatalf("confirmed: expected capability, got %v", err)
	}
	payload, err := qrtoken.Decode(token)
	if err != nil {
		t.Fatalf("decode issued token: %v", err)
	}
	if payload.BookingID != booking.ID {
		t.Fatalf("token bound to booking %d, expected %d", payload.BookingID, booking.ID)
	}

	// Issuing is idempotent and does not consume the booking.
	if _, err := svc.IssueCapability(ctx, booking.ID); err != nil {
		t.Fatalf("second issue: %v", err)
	}

	// CONSUMED
	if _, err := svc.Consume(ctx, booking.ID); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := svc.IssueCapability(ctx, booking.ID); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Fatalf("consumed: expected ErrNotConfirmed, got %v", err)
	}

	// CANCELLED
	cancelled := createBooking(t, svc, time.Hour)
	if _, err := svc.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.IssueCapability(ctx, cancelled.ID); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Fatalf("cancelled: expected ErrNotConfirmed, got %v", err)
	}

	// EXPIRED
	expired := createBooking(t, svc, time.Hour)
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	if _, err := svc.IssueCapability(ctx, expired.ID); !errors.Is(err, domain.ErrNotConfirmed) {
		t.Fatalf("expired: expected ErrNotConfirmed, got %v", err)
	}
}

func TestConfirmRequiresRequested(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	booking := createBooking(t, svc, time.Hour)
	if _, err := svc.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Confirm(ctx, booking.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("double confirm: expected ErrInvalidState, got %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	// From REQUESTED.
	requested := createBooking(t, svc, time.Hour)
	if _, err := svc.Cancel(ctx, requested.ID); err != nil {
		t.Fatalf("cancel requested: %v", err)
	}

	// From CONFIRMED.
	confirmed := createBooking(t, svc, time.Hour)
	if _, err := svc.Confirm(ctx, confirmed.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Cancel(ctx, confirmed.ID); err != nil {
		t.Fatalf("cancel confirmed: %v", err)
	}

	// Cancelling twice.
	if _, err := svc.Cancel(ctx, confirmed.ID); !errors.Is(err, domain.ErrAlreadyCancelled) {
		t.Fatalf("double cancel: expected ErrAlreadyCancelled, got %v", err)
	}

	// No cancellation once consumed.
	consumed := createBooking(t, svc, time.Hour)
	if _, err := svc.Confirm(ctx, consumed.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Consume(ctx, consumed.ID); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := svc.Cancel(ctx, consumed.ID); !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Fatalf("cancel consumed: expected ErrAlreadyConsumed, got %v", err)
	}
}

func TestLazyExpiryObservedOnRead(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	booking := createBooking(t, svc, 30*time.Minute)
	if _, err := svc.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Inside the window the booking still reads CONFIRMED.
	got, err := svc.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.BookingConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", got.Status)
	}

	// Any read after the window elapses observes EXPIRED, with no timer.
	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	got, err = svc.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get after window: %v", err)
	}
	if got.Status != domain.BookingExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}

	if _, err := svc.Consume(ctx, booking.ID); !errors.Is(err, domain.ErrBookingExpired) {
		t.Fatalf("consume expired: expected ErrBookingExpired, got %v", err)
	}
	if _, err := svc.Cancel(ctx, booking.ID); !errors.Is(err, domain.ErrBookingExpired) {
		t.Fatalf("cancel expired: expected ErrBookingExpired, got %v", err)
	}
}

func TestConsumeExactlyOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	booking := createBooking(t, svc, time.Hour)
	if _, err := svc.Confirm(ctx, booking.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Consume(ctx, booking.ID); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := svc.Consume(ctx, booking.ID); !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Fatalf("second consume: expected ErrAlreadyConsumed, got %v", err)
	}
}

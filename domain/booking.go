package domain

import "time"

// Booking states.
const (
	BookingRequested = "REQUESTED"
	BookingConfirmed = "CONFIRMED"
	BookingConsumed  = "CONSUMED"
	BookingCancelled = "CANCELLED"
	BookingExpired   = "EXPIRED"
)

// Booking is a reservation of a charging point for a time window.
type Booking struct {
	ID              int64     `db:"id" json:"id"`
	ChargingPointID int64     `db:"charging_point_id" json:"charging_point_id"`
	StationID       string    `db:"station_id" json:"station_id"`
	VehicleID       int64     `db:"vehicle_id" json:"vehicle_id"`
	Status          string    `db:"status" json:"status"`
	WindowStart     time.Time `db:"window_start" json:"window_start"`
	WindowEnd       time.Time `db:"window_end" json:"window_end"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus applies lazy expiry: a REQUESTED or CONFIRMED booking whose
// reservation window has elapsed reads as EXPIRED. Stored state is untouched;
// every reader must go through this.
func (b Booking) EffectiveStatus(now time.Time) string {
	switch b.Status {
	case BookingRequested, BookingConfirmed:
		if !b.WindowEnd.IsZero() && now.After(b.WindowEnd) {
			return BookingExpired
		}
	}
	return b.Status
}

// Terminal reports whether no further transition may leave the given status.
func (b Booking) Terminal(now time.Time) bool {
	switch b.EffectiveStatus(now) {
	case BookingConsumed, BookingCancelled, BookingExpired:
		return true
	}
	return false
}

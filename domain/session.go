package domain

import "time"

// Session states.
const (
	SessionInProgress = "IN_PROGRESS"
	SessionCompleted  = "COMPLETED"
	SessionCancelled  = "CANCELLED"
)

// Session is a charging session created when a booking is consumed. The
// backend owns the canonical copy; clients hold read-mostly, eventually
// stale replicas. FinalSoc and Cost are set exactly once, at stop, and are
// never revised once the status leaves IN_PROGRESS.
type Session struct {
	ID              int64      `db:"id" json:"id"`
	BookingID       int64      `db:"booking_id" json:"booking_id"`
	StationID       string     `db:"station_id" json:"station_id"`
	PointNumber     int        `db:"point_number" json:"point_number"`
	VehiclePlate    string     `db:"vehicle_plate" json:"vehicle_plate"`
	Status          string     `db:"status" json:"status"`
	StartTime       time.Time  `db:"start_time" json:"start_time"`
	EndTime         *time.Time `db:"end_time" json:"end_time,omitempty"`
	InitialSoc      float64    `db:"initial_soc" json:"initial_soc"`
	FinalSoc        *float64   `db:"final_soc" json:"final_soc,omitempty"`
	EnergyKWh       float64    `db:"energy_kwh" json:"energy_kwh"`
	DurationMinutes float64    `db:"duration_minutes" json:"duration_minutes"`
	Cost            float64    `db:"cost" json:"cost"`
	Currency        string     `db:"currency" json:"currency"`
	PricePerKWh     float64    `db:"price_per_kwh" json:"price_per_kwh"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Active reports whether the session is still charging.
func (s Session) Active() bool {
	return s.Status == SessionInProgress
}

// Equal compares the fields the staff view renders. The poller uses it to
// decide whether a fresh snapshot actually differs from the one on screen.
func (s Session) Equal(other Session) bool {
	if s.ID != other.ID ||
		s.BookingID != other.BookingID ||
		s.Status != other.Status ||
		s.PointNumber != other.PointNumber ||
		s.VehiclePlate != other.VehiclePlate ||
		s.InitialSoc != other.InitialSoc ||
		s.EnergyKWh != other.EnergyKWh ||
		s.Cost != other.Cost ||
		!s.StartTime.Equal(other.StartTime) {
		return false
	}
	if (s.EndTime == nil) != (other.EndTime == nil) {
		return false
	}
	if s.EndTime != nil && !s.EndTime.Equal(*other.EndTime) {
		return false
	}
	if (s.FinalSoc == nil) != (other.FinalSoc == nil) {
		return false
	}
	if s.FinalSoc != nil && *s.FinalSoc != *other.FinalSoc {
		return false
	}
	return true
}

// SessionsEqual compares two station snapshots by value, order-sensitive.
func SessionsEqual(a, b []Session) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

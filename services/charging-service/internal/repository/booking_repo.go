package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargesync/domain"
)

// BookingRepository persists bookings in Postgres.
type BookingRepository struct {
	db *sql.DB
}

// NewBookingRepository returns repository.
func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateBooking inserts a booking and fills the generated fields.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	const query = `
		INSERT INTO bookings (station_id, charging_point_id, vehicle_id, status, window_start, window_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		booking.StationID,
		booking.ChargingPointID,
		booking.VehicleID,
		booking.Status,
		booking.WindowStart,
		booking.WindowEnd,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

// GetBooking returns a booking by id.
func (r *BookingRepository) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	const query = `
		SELECT id, station_id, charging_point_id, vehicle_id, status, window_start, window_end, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`
	var booking domain.Booking
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.StationID,
		&booking.ChargingPointID,
		&booking.VehicleID,
		&booking.Status,
		&booking.WindowStart,
		&booking.WindowEnd,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return booking, nil
}

// UpdateBookingStatus applies the transition only where the stored status
// still matches; the row count tells the caller whether it won.
func (r *BookingRepository) UpdateBookingStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	const query = `
		UPDATE bookings
		SET status = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

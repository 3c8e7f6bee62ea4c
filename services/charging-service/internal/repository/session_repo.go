package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargesync/domain"
)

// SessionRepository persists charging sessions in Postgres.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `
	id, booking_id, station_id, point_number, vehicle_plate, status,
	start_time, end_time, initial_soc, final_soc, energy_kwh,
	duration_minutes, cost, currency, price_per_kwh, created_at, updated_at
`

// CreateSession inserts an IN_PROGRESS session and fills the generated fields.
func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	const query = `
		INSERT INTO charging_sessions (booking_id, station_id, point_number, vehicle_plate, status, start_time, initial_soc, currency, price_per_kwh, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		session.BookingID,
		session.StationID,
		session.PointNumber,
		session.VehiclePlate,
		session.Status,
		session.StartTime,
		session.InitialSoc,
		session.Currency,
		session.PricePerKWh,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
}

// GetSession returns a session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// ListSessionsByStation returns the station's sessions, newest first.
func (r *SessionRepository) ListSessionsByStation(ctx context.Context, stationID string) ([]domain.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE station_id = $1
		ORDER BY start_time DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// FinalizeSession writes the terminal fields only while the session is still
// IN_PROGRESS; the row count tells the caller whether it won the stop race.
func (r *SessionRepository) FinalizeSession(ctx context.Context, session domain.Session) (bool, error) {
	const query = `
		UPDATE charging_sessions
		SET status = $2,
		    end_time = $3,
		    final_soc = $4,
		    energy_kwh = $5,
		    duration_minutes = $6,
		    cost = $7,
		    updated_at = NOW()
		WHERE id = $1 AND status = $8
	`
	var endTime sql.NullTime
	if session.EndTime != nil {
		endTime = sql.NullTime{Time: *session.EndTime, Valid: true}
	}
	var finalSoc sql.NullFloat64
	if session.FinalSoc != nil {
		finalSoc = sql.NullFloat64{Float64: *session.FinalSoc, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		endTime,
		finalSoc,
		session.EnergyKWh,
		session.DurationMinutes,
		session.Cost,
		domain.SessionInProgress,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var session domain.Session
	var endTime sql.NullTime
	var finalSoc sql.NullFloat64

	err := row.Scan(
		&session.ID,
		&session.BookingID,
		&session.StationID,
		&session.PointNumber,
		&session.VehiclePlate,
		&session.Status,
		&session.StartTime,
		&endTime,
		&session.InitialSoc,
		&finalSoc,
		&session.EnergyKWh,
		&session.DurationMinutes,
		&session.Cost,
		&session.Currency,
		&session.PricePerKWh,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	if finalSoc.Valid {
		session.FinalSoc = &finalSoc.Float64
	}
	return session, nil
}

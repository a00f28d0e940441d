package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/YuMe-02/Hydroconnect/internal/auth"
)

// Repository stores usage sessions.
type Repository interface {
	// Create stores s. It returns ErrDuplicateSession if s is already stored.
	Create(ctx context.Context, s *Session) error
	// ListByDate returns sessions reported for date, or every session when
	// date is the zero time. Ordered by start time, then insertion.
	ListByDate(ctx context.Context, date time.Time) ([]Session, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed usage repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sessionColumns = `id, session_id, device_id, sink_id, sensor_id, water_amount,
	duration, start_time, end_time, date, is_error, received_at`

// Create inserts s and sets its ID and ReceivedAt.
//
// A session is identified by device, sink, hub session ID and date. Storing
// the same session again changes nothing and returns ErrDuplicateSession.
func (r *SQLiteRepository) Create(ctx context.Context, s *Session) error {
	s.ReceivedAt = time.Now().UTC().Truncate(time.Second)

	isError := 0
	if s.IsError {
		isError = 1
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO water_sessions (session_id, device_id, sink_id, sensor_id, water_amount,
			duration, start_time, end_time, date, is_error, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, sink_id, session_id, date) DO NOTHING`,
		s.SessionID, s.DeviceID, s.SinkID, s.SensorID, s.WaterAmount,
		s.Duration, s.StartTime.Format(ClockLayout), s.EndTime.Format(ClockLayout),
		s.Date.Format(auth.DateLayout), isError, s.ReceivedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing usage session: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storing usage session: %w", err)
	}
	if n == 0 {
		return ErrDuplicateSession
	}

	if s.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("storing usage session: %w", err)
	}
	return nil
}

// ListByDate returns the sessions for date, or all sessions for a zero date.
func (r *SQLiteRepository) ListByDate(ctx context.Context, date time.Time) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM water_sessions`
	var args []any
	if !date.IsZero() {
		query += ` WHERE date = ?`
		args = append(args, date.Format(auth.DateLayout))
	}
	query += ` ORDER BY date ASC, start_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing usage sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(rows *sql.Rows) (*Session, error) {
	var s Session
	var start, end, date, receivedAt string
	var isError int

	if err := rows.Scan(&s.ID, &s.SessionID, &s.DeviceID, &s.SinkID, &s.SensorID,
		&s.WaterAmount, &s.Duration, &start, &end, &date, &isError, &receivedAt); err != nil {
		return nil, fmt.Errorf("scanning usage session: %w", err)
	}

	var err error
	if s.Date, err = time.Parse(auth.DateLayout, date); err != nil {
		return nil, fmt.Errorf("parsing session date %q: %w", date, err)
	}
	if s.StartTime, err = parseClock(s.Date, start); err != nil {
		return nil, fmt.Errorf("parsing session start: %w", err)
	}
	if s.EndTime, err = parseClock(s.Date, end); err != nil {
		return nil, fmt.Errorf("parsing session end: %w", err)
	}
	if s.EndTime.Before(s.StartTime) {
		s.EndTime = s.EndTime.AddDate(0, 0, 1)
	}
	s.IsError = isError != 0
	s.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt) //nolint:errcheck // format is controlled
	return &s, nil
}

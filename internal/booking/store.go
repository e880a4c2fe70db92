package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/functiomed/voice-agent/pkg/logging"
)

// ErrSlotTaken means the requested slot was booked between being offered
// and being confirmed.
var ErrSlotTaken = errors.New("booking: slot already booked")

// Appointment is one confirmed booking row.
type Appointment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Service   string    `json:"service"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    string    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reservation carries the fields required to commit a booking.
type Reservation struct {
	SessionID string
	Service   string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Name      string
	Email     string
	Phone     string
}

// Store persists appointments and the open-slot inventory in Postgres.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

// openHours are the slot start times seeded for each open day.
var openHours = []string{
	"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00",
}

// SeedSlots inserts the open-slot inventory for the next `days` days for
// every given service. Existing rows are left alone, so re-running on
// startup is safe and never un-books anything.
func (s *Store) SeedSlots(ctx context.Context, services []string, days int, now time.Time, closed map[time.Weekday]bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO available_slots (date, time, service, is_booked)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (date, time, service) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare seed statement: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for d := 0; d < days; d++ {
		day := now.AddDate(0, 0, d)
		if closed[day.Weekday()] {
			continue
		}
		date := day.Format("2006-01-02")
		for _, hour := range openHours {
			for _, svc := range services {
				res, err := stmt.ExecContext(ctx, date, hour, svc)
				if err != nil {
					return inserted, fmt.Errorf("seed slot %s %s %s: %w", date, hour, svc, err)
				}
				if n, _ := res.RowsAffected(); n > 0 {
					inserted += n
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit seed transaction: %w", err)
	}
	s.logger.Info("slot inventory seeded", "inserted", inserted, "days", days)
	return inserted, nil
}

// QueryAvailability returns the open slot times for a service on a date,
// ascending. An empty slice means the day is fully booked.
func (s *Store) QueryAvailability(ctx context.Context, service, date string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time FROM available_slots
		WHERE date = $1 AND service = $2 AND is_booked = FALSE
		ORDER BY time ASC`, date, service)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan availability row: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability rows: %w", err)
	}
	return times, nil
}

// Reserve marks the slot booked and creates the appointment in one
// transaction. The slot update is conditional on is_booked = FALSE, so a
// concurrent booking of the same slot gets ErrSlotTaken instead of a
// double booking.
func (s *Store) Reserve(ctx context.Context, r Reservation) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reservation transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE available_slots SET is_booked = TRUE
		WHERE date = $1 AND time = $2 AND service = $3 AND is_booked = FALSE`,
		r.Date, r.Time, r.Service)
	if err != nil {
		return 0, fmt.Errorf("mark slot booked: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read slot update count: %w", err)
	}
	if affected == 0 {
		return 0, ErrSlotTaken
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO appointments (name, email, phone, service, date, time, status, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, 'confirmed', $7)
		RETURNING id`,
		r.Name, r.Email, r.Phone, r.Service, r.Date, r.Time, r.SessionID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reservation: %w", err)
	}

	s.logger.Info("appointment reserved",
		"appointment_id", id, "service", r.Service, "date", r.Date, "time", r.Time)
	return id, nil
}

// ListAppointments returns confirmed appointments, newest first. A
// non-empty date restricts to that day.
func (s *Store) ListAppointments(ctx context.Context, date string) ([]Appointment, error) {
	query := `
		SELECT id, name, email, phone, service, date, time, status, COALESCE(session_id, ''), created_at
		FROM appointments`
	var args []any
	if date != "" {
		query += ` WHERE date = $1`
		args = append(args, date)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Service,
			&a.Date, &a.Time, &a.Status, &a.SessionID, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan appointment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointment rows: %w", err)
	}
	return out, nil
}

// GetAppointment fetches one appointment by id.
func (s *Store) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	var a Appointment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, service, date, time, status, COALESCE(session_id, ''), created_at
		FROM appointments WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Service,
		&a.Date, &a.Time, &a.Status, &a.SessionID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query appointment %d: %w", id, err)
	}
	return &a, nil
}

// CancelAppointment marks an appointment cancelled and frees its slot.
// Returns false when the id does not exist or is already cancelled.
func (s *Store) CancelAppointment(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer tx.Rollback()

	var svc, date, slot string
	err = tx.QueryRowContext(ctx, `
		UPDATE appointments SET status = 'cancelled'
		WHERE id = $1 AND status = 'confirmed'
		RETURNING service, date, time`, id,
	).Scan(&svc, &date, &slot)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cancel appointment %d: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE available_slots SET is_booked = FALSE
		WHERE date = $1 AND time = $2 AND service = $3`, date, slot, svc)
	if err != nil {
		return false, fmt.Errorf("free slot for appointment %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cancel: %w", err)
	}
	s.logger.Info("appointment cancelled", "appointment_id", id)
	return true, nil
}

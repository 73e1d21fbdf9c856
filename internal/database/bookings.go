package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"termin/internal/models"
)

const bookingColumns = `id, name, email, phone, date, time, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var dateStr, timeStr string
	err := row.Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone, &dateStr, &timeStr,
		&b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Date, err = time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	b.Time, err = models.ParseTimeOfDay(timeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking time %s: %w", timeStr, err)
	}
	return b, nil
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (name, email, phone, date, time, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		booking.Name,
		booking.Email,
		booking.Phone,
		booking.DateString(),
		booking.Time.String(),
		booking.Status,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus moves a booking from one status to another. The write
// lands only while the row still has status from; otherwise the result is
// ErrConcurrentModification, or ErrNotFound when the row is gone.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, from, to string) error {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		// reviving a cancelled booking can collide with a newer one
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := db.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrConcurrentModification
}

func (db *DB) UpdateBookingSlot(ctx context.Context, id int64, date time.Time, tod models.TimeOfDay) error {
	query := `UPDATE bookings SET date = ?, time = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, date.Format(models.DateLayout), tod.String(), time.Now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking slot: %w", err)
	}
	return expectOneRow(result)
}

func (db *DB) SlotTaken(ctx context.Context, date time.Time, tod models.TimeOfDay, excludeID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE date = ? AND time = ? AND status <> ? AND id <> ?`
	var count int
	err := db.QueryRowContext(ctx, query,
		date.Format(models.DateLayout), tod.String(), models.StatusCancelled, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return count > 0, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, filter.From.Format(models.DateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, filter.To.Format(models.DateLayout))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + likeEscaper.Replace(s) + "%"
		where = append(where, `(name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, time DESC"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return db.queryBookings(ctx, query, args...)
}

// BookingsOn returns every booking on the date, earliest first.
func (db *DB) BookingsOn(ctx context.Context, date time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? ORDER BY time ASC`
	return db.queryBookings(ctx, query, date.Format(models.DateLayout))
}

func (db *DB) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// CountPerDay returns the number of bookings per date in [from, to]; days without bookings are absent.
func (db *DB) CountPerDay(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `SELECT date, COUNT(*) FROM bookings WHERE date BETWEEN ? AND ? GROUP BY date`
	rows, err := db.QueryContext(ctx, query, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings per day: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

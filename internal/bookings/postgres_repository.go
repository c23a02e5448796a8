package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"

	// Constraint names from migrations/0001_init.up.sql.
	serialConstraint = "appointments_clinic_date_serial_key"
	mobileConstraint = "appointments_mobile_clinic_date_key"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores bookings in the appointments table.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db querier) *PostgresRepository {
	if db == nil {
		panic("bookings: db required")
	}
	return &PostgresRepository{db: db}
}

const bookingColumns = `id, name, age, mobile, clinic, clinic_time_range, serial_date::text,
	serial_no, status, is_old_patient, sent_email, sent_whatsapp, created_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	if err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Age,
		&b.Mobile,
		&b.Clinic,
		&b.ClinicTimeRange,
		&b.SerialDate,
		&b.SerialNo,
		&status,
		&b.IsOldPatient,
		&b.SentEmail,
		&b.SentWhatsApp,
		&b.CreatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}

// FindByMobile returns the booking for the triple or ErrBookingNotFound.
func (r *PostgresRepository) FindByMobile(ctx context.Context, mobile, clinic, serialDate string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM appointments
		WHERE mobile = $1 AND clinic = $2 AND serial_date = $3::date
		LIMIT 1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, mobile, clinic, serialDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: find by mobile: %w", err)
	}
	return b, nil
}

// InsertNext computes MAX(serial_no)+1 inside the INSERT. Racing writers hit
// the (clinic, serial_date, serial_no) unique constraint.
func (r *PostgresRepository) InsertNext(ctx context.Context, b *Booking) (*Booking, error) {
	status := b.Status
	if status == "" {
		status = StatusPending
	}
	query := `
		INSERT INTO appointments (name, age, mobile, clinic, clinic_time_range, serial_date, serial_no, status, is_old_patient)
		SELECT $1, $2, $3, $4, $5, $6::date, COALESCE(MAX(serial_no), 0) + 1, $7, $8
		FROM appointments
		WHERE clinic = $4 AND serial_date = $6::date
		RETURNING id, serial_no, created_at
	`
	out := *b
	out.Status = status
	err := r.db.QueryRow(ctx, query,
		b.Name,
		b.Age,
		b.Mobile,
		b.Clinic,
		b.ClinicTimeRange,
		b.SerialDate,
		string(status),
		b.IsOldPatient,
	).Scan(&out.ID, &out.SerialNo, &out.CreatedAt)
	if err != nil {
		return nil, classifyInsertError(err)
	}
	return &out, nil
}

func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case serialConstraint:
			return ErrAllocationConflict
		case mobileConstraint:
			return ErrDuplicateBooking
		}
	}
	return fmt.Errorf("bookings: insert: %w", err)
}

// Get returns a booking by id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM appointments WHERE id = $1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// UpdateStatus sets the booking status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return r.execOne(ctx, "update status", `UPDATE appointments SET status = $2 WHERE id = $1`, id, string(status))
}

// MarkNotified records notification outcomes.
func (r *PostgresRepository) MarkNotified(ctx context.Context, id int64, sentEmail, sentWhatsApp bool) error {
	return r.execOne(ctx, "mark notified",
		`UPDATE appointments SET sent_email = $2, sent_whatsapp = $3 WHERE id = $1`,
		id, sentEmail, sentWhatsApp)
}

// Delete removes a booking.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete", `DELETE FROM appointments WHERE id = $1`, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("bookings: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// Search filters bookings ordered by serial_date DESC, serial_no ASC.
func (r *PostgresRepository) Search(ctx context.Context, filter SearchFilter) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM appointments WHERE 1=1`
	var args []any
	argIdx := 1

	if q := strings.TrimSpace(filter.Query); q != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR mobile LIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+q+"%")
		argIdx++
	}
	if filter.Clinic != "" {
		query += fmt.Sprintf(" AND clinic = $%d", argIdx)
		args = append(args, filter.Clinic)
		argIdx++
	}
	if filter.Date != "" {
		query += fmt.Sprintf(" AND serial_date = $%d::date", argIdx)
		args = append(args, filter.Date)
	}
	query += fmt.Sprintf(" ORDER BY serial_date DESC, serial_no ASC LIMIT %d", filter.limit())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookings: search: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: search rows: %w", err)
	}
	return out, nil
}

// DayStats counts bookings for a clinic and date by status.
func (r *PostgresRepository) DayStats(ctx context.Context, clinic, serialDate string) (*DayStats, error) {
	query := `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE clinic = $1 AND serial_date = $2::date
		GROUP BY status
	`
	rows, err := r.db.Query(ctx, query, clinic, serialDate)
	if err != nil {
		return nil, fmt.Errorf("bookings: day stats: %w", err)
	}
	defer rows.Close()

	stats := &DayStats{Clinic: clinic, Date: serialDate}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("bookings: scan stats: %w", err)
		}
		stats.add(Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: stats rows: %w", err)
	}
	return stats, nil
}

var _ Repository = (*PostgresRepository)(nil)

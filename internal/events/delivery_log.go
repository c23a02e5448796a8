package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-serial/internal/bookings"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DeliveryLog keeps the outcome of every outbox event that was sent. An
// entry redelivered after a crash reuses the stored outcome instead of
// notifying staff a second time.
type DeliveryLog struct {
	db rowQuerier
}

func NewDeliveryLog(pool *pgxpool.Pool) *DeliveryLog {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &DeliveryLog{db: pool}
}

func newDeliveryLogWithExec(db rowQuerier) *DeliveryLog {
	if db == nil {
		panic("events: exec required")
	}
	return &DeliveryLog{db: db}
}

// Find returns the recorded outcome for eventID.
func (l *DeliveryLog) Find(ctx context.Context, eventID uuid.UUID) (bookings.Delivery, bool, error) {
	var d bookings.Delivery
	err := l.db.QueryRow(ctx,
		`SELECT sent_email, sent_whatsapp FROM notification_deliveries WHERE event_id = $1`,
		eventID,
	).Scan(&d.SentEmail, &d.SentWhatsApp)
	if errors.Is(err, pgx.ErrNoRows) {
		return bookings.Delivery{}, false, nil
	}
	if err != nil {
		return bookings.Delivery{}, false, fmt.Errorf("events: find delivery: %w", err)
	}
	return d, true, nil
}

// Record stores the outcome for eventID. The first outcome wins.
func (l *DeliveryLog) Record(ctx context.Context, eventID uuid.UUID, bookingID int64, d bookings.Delivery) error {
	query := `
		INSERT INTO notification_deliveries (event_id, booking_id, sent_email, sent_whatsapp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`
	if _, err := l.db.Exec(ctx, query, eventID, bookingID, d.SentEmail, d.SentWhatsApp); err != nil {
		return fmt.Errorf("events: record delivery: %w", err)
	}
	return nil
}

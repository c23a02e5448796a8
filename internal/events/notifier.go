package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-serial/internal/bookings"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// OutboxNotifier queues booking notifications instead of sending them during
// the request. When the outbox write fails it hands the booking to fallback.
type OutboxNotifier struct {
	store    *OutboxStore
	fallback bookings.Notifier
	logger   *logging.Logger
}

// NewOutboxNotifier creates a queueing notifier. fallback may be nil.
func NewOutboxNotifier(store *OutboxStore, fallback bookings.Notifier, logger *logging.Logger) *OutboxNotifier {
	if store == nil {
		panic("events: outbox store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboxNotifier{store: store, fallback: fallback, logger: logger}
}

// NotifyBooking writes a booking.created event.
func (n *OutboxNotifier) NotifyBooking(ctx context.Context, b bookings.Booking) bookings.Delivery {
	id, err := n.store.Insert(context.WithoutCancel(ctx), b.ID, TypeBookingCreated, BookingCreatedFrom(b))
	if err != nil {
		n.logger.Error("failed to queue booking notification", "booking_id", b.ID, "error", err)
		if n.fallback != nil {
			return n.fallback.NotifyBooking(ctx, b)
		}
		return bookings.Delivery{}
	}
	n.logger.Debug("booking notification queued", "booking_id", b.ID, "event_id", id)
	return bookings.Delivery{Queued: true}
}

// BookingCreatedFrom snapshots b for the outbox.
func BookingCreatedFrom(b bookings.Booking) BookingCreatedV1 {
	return BookingCreatedV1{
		BookingID:       b.ID,
		Name:            b.Name,
		Age:             b.Age,
		Mobile:          b.Mobile,
		Clinic:          b.Clinic,
		ClinicTimeRange: b.ClinicTimeRange,
		SerialDate:      b.SerialDate,
		SerialNo:        b.SerialNo,
		IsOldPatient:    b.IsOldPatient,
		CreatedAt:       b.CreatedAt,
	}
}

// Booking rebuilds the booking the notifications are rendered from.
func (e BookingCreatedV1) Booking() bookings.Booking {
	return bookings.Booking{
		ID:              e.BookingID,
		Name:            e.Name,
		Age:             e.Age,
		Mobile:          e.Mobile,
		Clinic:          e.Clinic,
		ClinicTimeRange: e.ClinicTimeRange,
		SerialDate:      e.SerialDate,
		SerialNo:        e.SerialNo,
		IsOldPatient:    e.IsOldPatient,
		CreatedAt:       e.CreatedAt,
	}
}

type deliveryLog interface {
	Find(ctx context.Context, eventID uuid.UUID) (bookings.Delivery, bool, error)
	Record(ctx context.Context, eventID uuid.UUID, bookingID int64, d bookings.Delivery) error
}

type notificationRecorder interface {
	MarkNotified(ctx context.Context, id int64, sentEmail, sentWhatsApp bool) error
}

// BookingNotificationHandler sends queued booking notifications and records
// the flags on the appointment.
type BookingNotificationHandler struct {
	notifier bookings.Notifier
	bookings notificationRecorder
	log      deliveryLog
	logger   *logging.Logger
}

// NewBookingNotificationHandler wires the outbox consumer. log may be nil, in
// which case a redelivered entry notifies again.
func NewBookingNotificationHandler(notifier bookings.Notifier, repo notificationRecorder, log deliveryLog, logger *logging.Logger) *BookingNotificationHandler {
	if notifier == nil {
		panic("events: notifier required")
	}
	if repo == nil {
		panic("events: booking repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotificationHandler{notifier: notifier, bookings: repo, log: log, logger: logger}
}

// Handle implements DeliveryHandler.
func (h *BookingNotificationHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	if entry.Type != TypeBookingCreated {
		h.logger.Warn("skipping unknown outbox event", "event_id", entry.ID, "type", entry.Type)
		return nil
	}
	var evt BookingCreatedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		return fmt.Errorf("events: decode %s: %w", entry.Type, err)
	}

	delivery, err := h.deliver(ctx, entry.ID, evt)
	if err != nil {
		return err
	}
	if err := h.bookings.MarkNotified(ctx, evt.BookingID, delivery.SentEmail, delivery.SentWhatsApp); err != nil {
		if !errors.Is(err, bookings.ErrBookingNotFound) {
			return fmt.Errorf("events: record notification flags: %w", err)
		}
		h.logger.Info("booking deleted before notification flags were recorded", "booking_id", evt.BookingID)
	}
	return nil
}

func (h *BookingNotificationHandler) deliver(ctx context.Context, eventID uuid.UUID, evt BookingCreatedV1) (bookings.Delivery, error) {
	if h.log == nil {
		return h.notifier.NotifyBooking(ctx, evt.Booking()), nil
	}
	if d, ok, err := h.log.Find(ctx, eventID); err != nil {
		return bookings.Delivery{}, err
	} else if ok {
		h.logger.Debug("outbox event already sent; reapplying flags", "event_id", eventID)
		return d, nil
	}
	d := h.notifier.NotifyBooking(ctx, evt.Booking())
	if err := h.log.Record(ctx, eventID, evt.BookingID, d); err != nil {
		h.logger.Warn("failed to record notification outcome", "event_id", eventID, "error", err)
	}
	return d, nil
}

var (
	_ bookings.Notifier = (*OutboxNotifier)(nil)
	_ DeliveryHandler   = (*BookingNotificationHandler)(nil)
)

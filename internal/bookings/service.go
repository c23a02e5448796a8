package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-serial/internal/availability"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	"github.com/wolfman30/clinic-serial/internal/observability/metrics"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinic.internal.bookings")

// Notifier sends the post-booking notifications. Implementations never fail
// the booking; they report what was delivered or queued.
type Notifier interface {
	NotifyBooking(ctx context.Context, b Booking) Delivery
}

// ServiceDeps wires the booking engine.
type ServiceDeps struct {
	Repo              Repository
	Clinics           availability.ClinicLookup
	Evaluator         *availability.Evaluator
	Notifier          Notifier
	Metrics           *metrics.BookingMetrics
	AllocationRetries int
	Logger            *logging.Logger
}

// Service is the booking engine: validation, duplicate detection,
// availability, serial allocation and notification dispatch.
type Service struct {
	repo      Repository
	clinics   availability.ClinicLookup
	evaluator *availability.Evaluator
	allocator *Allocator
	notifier  Notifier
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

// NewService constructs a bookings service.
func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		panic("bookings: repository required")
	}
	if deps.Clinics == nil {
		panic("bookings: clinic lookup required")
	}
	if deps.Evaluator == nil {
		deps.Evaluator = availability.NewEvaluator(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	allocator := NewAllocator(deps.Repo, deps.AllocationRetries, deps.Logger)
	if deps.Metrics != nil {
		allocator.observer = deps.Metrics
	}
	return &Service{
		repo:      deps.Repo,
		clinics:   deps.Clinics,
		evaluator: deps.Evaluator,
		allocator: allocator,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// Submit books a serial for req. A duplicate (mobile, clinic, date) returns
// the existing booking with OutcomeDuplicate and a nil error.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.submit")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveSubmitLatency("appointment", time.Since(start).Seconds()) }()

	req.normalize()
	span.SetAttributes(
		attribute.String("clinic.name", req.Clinic),
		attribute.String("clinic.serial_date", req.SerialDate),
	)

	if err := req.Validate(); err != nil {
		s.metrics.ObserveSubmission("invalid")
		return nil, err
	}

	date, err := availability.ParseDate(req.SerialDate, s.evaluator.Location())
	if err != nil {
		s.metrics.ObserveSubmission("unavailable")
		return nil, &UnavailableDateError{Clinic: req.Clinic, Date: req.SerialDate, Reason: string(availability.ReasonBadDate)}
	}
	req.SerialDate = date.Format(clinic.DateLayout)

	existing, err := s.repo.FindByMobile(ctx, req.Mobile, req.Clinic, req.SerialDate)
	switch {
	case err == nil:
		return s.duplicate(span, existing), nil
	case !errors.Is(err, ErrBookingNotFound):
		return nil, s.storageFailure(span, "duplicate lookup", err)
	}

	c, err := s.clinics.GetClinic(ctx, req.Clinic)
	if errors.Is(err, clinic.ErrClinicNotFound) {
		s.metrics.ObserveSubmission("unavailable")
		return nil, &UnavailableDateError{Clinic: req.Clinic, Date: req.SerialDate, Reason: ReasonUnknownClinic}
	}
	if err != nil {
		return nil, s.storageFailure(span, "clinic lookup", err)
	}

	decision := s.evaluator.Check(c, req.SerialDate)
	if !decision.Bookable {
		s.metrics.ObserveSubmission("unavailable")
		s.logger.Info("booking rejected for unavailable date",
			"clinic", req.Clinic,
			"serial_date", req.SerialDate,
			"reason", decision.Reason,
		)
		return nil, &UnavailableDateError{Clinic: req.Clinic, Date: req.SerialDate, Reason: string(decision.Reason)}
	}

	timeRange := req.TimeRangeSnapshot
	if timeRange == "" {
		timeRange = c.TimeRange
	}
	booking, err := s.allocator.Allocate(ctx, &Booking{
		Name:            req.Name,
		Age:             req.Age,
		Mobile:          req.Mobile,
		Clinic:          c.Name,
		ClinicTimeRange: timeRange,
		SerialDate:      decision.Date.Format(clinic.DateLayout),
		Status:          StatusPending,
		IsOldPatient:    req.IsOldPatient,
	})
	if errors.Is(err, ErrDuplicateBooking) {
		// Lost the race to an identical submission; report the winner.
		existing, findErr := s.repo.FindByMobile(ctx, req.Mobile, c.Name, decision.Date.Format(clinic.DateLayout))
		if findErr != nil {
			return nil, s.storageFailure(span, "duplicate reload", findErr)
		}
		return s.duplicate(span, existing), nil
	}
	if err != nil {
		return nil, s.storageFailure(span, "allocate", err)
	}

	span.SetAttributes(
		attribute.Int64("clinic.booking_id", booking.ID),
		attribute.Int("clinic.serial_no", booking.SerialNo),
	)
	s.logger.Info("booking created",
		"booking_id", booking.ID,
		"clinic", booking.Clinic,
		"serial_date", booking.SerialDate,
		"serial_no", booking.SerialNo,
	)
	s.metrics.ObserveSubmission(string(OutcomeCreated))

	result := &Result{Outcome: OutcomeCreated, Booking: booking}
	s.notify(ctx, booking, result)
	return result, nil
}

func (s *Service) notify(ctx context.Context, booking *Booking, result *Result) {
	if s.notifier == nil {
		return
	}
	delivery := s.notifier.NotifyBooking(ctx, *booking)
	result.SentEmail = delivery.SentEmail
	result.SentWhatsApp = delivery.SentWhatsApp
	result.NotificationsQueued = delivery.Queued
	if delivery.Queued {
		return
	}
	booking.SentEmail = delivery.SentEmail
	booking.SentWhatsApp = delivery.SentWhatsApp
	// The booking stands even if the flags cannot be written.
	if err := s.repo.MarkNotified(context.WithoutCancel(ctx), booking.ID, delivery.SentEmail, delivery.SentWhatsApp); err != nil {
		s.logger.Warn("failed to record notification flags", "booking_id", booking.ID, "error", err)
	}
}

func (s *Service) duplicate(span trace.Span, existing *Booking) *Result {
	s.metrics.ObserveSubmission(string(OutcomeDuplicate))
	span.SetAttributes(attribute.Bool("clinic.duplicate", true))
	s.logger.Info("duplicate booking",
		"booking_id", existing.ID,
		"clinic", existing.Clinic,
		"serial_date", existing.SerialDate,
		"serial_no", existing.SerialNo,
	)
	return &Result{Outcome: OutcomeDuplicate, Message: DuplicateMessage, Booking: existing}
}

func (s *Service) storageFailure(span trace.Span, op string, err error) error {
	s.metrics.ObserveSubmission("error")
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.logger.Error("booking storage failure", "op", op, "error", err)
	if errors.Is(err, ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id int64) (*Booking, error) {
	return s.repo.Get(ctx, id)
}

// SetStatus applies an admin status toggle. Any transition is allowed.
func (s *Service) SetStatus(ctx context.Context, id int64, raw string) (Status, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return "", err
	}
	s.logger.Info("booking status changed", "booking_id", id, "status", status)
	return status, nil
}

// Delete removes a booking.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("booking deleted", "booking_id", id)
	return nil
}

// Search lists bookings for the admin view.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Booking, error) {
	return s.repo.Search(ctx, filter)
}

// DayStats counts a clinic's bookings for one date by status.
func (s *Service) DayStats(ctx context.Context, clinicName, serialDate string) (*DayStats, error) {
	if _, err := availability.ParseDate(serialDate, s.evaluator.Location()); err != nil {
		return nil, err
	}
	return s.repo.DayStats(ctx, clinicName, serialDate)
}

package bookings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-serial/internal/availability"
)

var (
	// ErrValidation is matched by *ValidationError.
	ErrValidation = errors.New("required fields missing")

	// ErrUnavailableDate is matched by *UnavailableDateError.
	ErrUnavailableDate = errors.New("date is not available for this clinic")

	// ErrAllocationConflict means a concurrent insert took the serial. It is
	// retried by the allocator and never returned from Submit.
	ErrAllocationConflict = errors.New("serial allocation conflict")

	// ErrDuplicateBooking means the (mobile, clinic, date) triple already exists.
	ErrDuplicateBooking = errors.New("booking already exists")

	// ErrStorageFailure wraps persistence failures surfaced to callers.
	ErrStorageFailure = errors.New("booking storage failure")

	// ErrBookingNotFound is returned when no booking has the requested id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidStatus is returned for status values outside pending|appointed|absent.
	ErrInvalidStatus = errors.New("invalid booking status")
)

// ValidationError lists the required fields that were empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bookings: required fields missing: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnavailableDateError explains why a date cannot be booked.
type UnavailableDateError struct {
	Clinic string
	Date   string
	Reason string
}

func (e *UnavailableDateError) Error() string {
	return fmt.Sprintf("bookings: %s is not available for %s (%s)", e.Date, e.Clinic, e.Reason)
}

func (e *UnavailableDateError) Is(target error) bool { return target == ErrUnavailableDate }

// Message is the patient-facing explanation.
func (e *UnavailableDateError) Message() string {
	switch e.Reason {
	case ReasonUnknownClinic:
		return "The selected clinic is not available."
	case string(availability.ReasonPast):
		return "The selected date has already passed."
	case string(availability.ReasonBadDate):
		return "The selected date is not valid."
	default:
		return "The clinic does not accept appointments on the selected date."
	}
}

// ReasonUnknownClinic is the UnavailableDateError reason for a clinic missing
// from the registry.
const ReasonUnknownClinic = "unknown_clinic"

// Package availability decides which calendar dates a clinic accepts bookings
// for. A date is bookable when its weekday is one of the clinic's weekdays or
// it is listed as an explicit date, and it is not before today.
package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-serial/internal/clinic"
)

// Reason explains why a date was rejected.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonBadDate    Reason = "invalid_date"
	ReasonPast       Reason = "past_date"
	ReasonNotOffered Reason = "not_offered"
)

// ErrInvalidDate is returned when a date string is not an ISO calendar date.
var ErrInvalidDate = errors.New("availability: invalid date")

// IsBookable reports whether date is bookable for c given today. Both dates
// are compared as calendar days in their own locations.
func IsBookable(c clinic.Clinic, date, today time.Time) bool {
	return reason(c, date, today) == ReasonNone
}

func reason(c clinic.Clinic, date, today time.Time) Reason {
	iso := date.Format(clinic.DateLayout)
	if iso < today.Format(clinic.DateLayout) {
		return ReasonPast
	}
	if c.HasWeekday(date.Weekday()) || c.HasExplicitDate(iso) {
		return ReasonNone
	}
	return ReasonNotOffered
}

// ParseDate parses an ISO date as midnight in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(clinic.DateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}

// Evaluator evaluates availability against "today" in a fixed timezone.
type Evaluator struct {
	loc *time.Location
	now func() time.Time
}

// NewEvaluator creates an evaluator for loc. A nil loc means UTC.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc, now: time.Now}
}

// WithClock returns a copy of the evaluator using now as its clock.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	cp := *e
	cp.now = now
	return &cp
}

// Location returns the evaluator's timezone.
func (e *Evaluator) Location() *time.Location { return e.loc }

// Today returns midnight of the current day in the evaluator's timezone.
func (e *Evaluator) Today() time.Time {
	n := e.now().In(e.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, e.loc)
}

// Decision is the outcome of Check.
type Decision struct {
	Date     time.Time
	Bookable bool
	Reason   Reason
}

// Check parses rawDate and evaluates it for c. Unparseable dates are never
// bookable.
func (e *Evaluator) Check(c clinic.Clinic, rawDate string) Decision {
	date, err := ParseDate(rawDate, e.loc)
	if err != nil {
		return Decision{Reason: ReasonBadDate}
	}
	r := reason(c, date, e.Today())
	return Decision{Date: date, Bookable: r == ReasonNone, Reason: r}
}

// Upcoming lists the bookable dates for c from today through days ahead.
func (e *Evaluator) Upcoming(c clinic.Clinic, days int) []string {
	if days <= 0 {
		return nil
	}
	today := e.Today()
	var out []string
	for i := 0; i <= days; i++ {
		d := today.AddDate(0, 0, i)
		if IsBookable(c, d, today) {
			out = append(out, d.Format(clinic.DateLayout))
		}
	}
	return out
}

// ClinicLookup resolves a clinic by name.
type ClinicLookup interface {
	GetClinic(ctx context.Context, name string) (clinic.Clinic, error)
}

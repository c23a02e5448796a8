package bookings

import (
	"fmt"
	"strings"
	"time"
)

// Status tracks whether a patient showed up. Every transition is allowed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAppointed Status = "appointed"
	StatusAbsent    Status = "absent"
)

// ParseStatus validates a status value.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusAppointed, StatusAbsent:
		return s, nil
	default:
		return "", fmt.Errorf("bookings: %w: %q", ErrInvalidStatus, raw)
	}
}

// Booking is a persisted appointment. Clinic and ClinicTimeRange are
// snapshots taken at booking time.
type Booking struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Age             string    `json:"age"`
	Mobile          string    `json:"mobile"`
	Clinic          string    `json:"clinic"`
	ClinicTimeRange string    `json:"clinic_time_range"`
	SerialDate      string    `json:"serial_date"`
	SerialNo        int       `json:"serial_no"`
	Status          Status    `json:"status"`
	IsOldPatient    bool      `json:"is_old_patient"`
	SentEmail       bool      `json:"sent_email"`
	SentWhatsApp    bool      `json:"sent_whatsapp"`
	CreatedAt       time.Time `json:"created_at"`
}

// PatientType renders IsOldPatient the way staff read it.
func (b Booking) PatientType() string {
	if b.IsOldPatient {
		return "Old"
	}
	return "New"
}

// Request is an appointment submission from the booking form.
type Request struct {
	Name              string `json:"name"`
	Age               string `json:"age"`
	Mobile            string `json:"mobile"`
	Clinic            string `json:"clinic"`
	SerialDate        string `json:"serial_date"`
	TimeRangeSnapshot string `json:"clinic_time_range"`
	IsOldPatient      bool   `json:"is_old_patient"`
}

func (r *Request) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Age = strings.TrimSpace(r.Age)
	r.Mobile = strings.TrimSpace(r.Mobile)
	r.Clinic = strings.TrimSpace(r.Clinic)
	r.SerialDate = strings.TrimSpace(r.SerialDate)
	r.TimeRangeSnapshot = strings.TrimSpace(r.TimeRangeSnapshot)
}

// Validate reports every missing required field at once.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Mobile) == "" {
		missing = append(missing, "mobile")
	}
	if strings.TrimSpace(r.Clinic) == "" {
		missing = append(missing, "clinic")
	}
	if strings.TrimSpace(r.SerialDate) == "" {
		missing = append(missing, "serial_date")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Outcome distinguishes a new booking from an existing one.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
)

// DuplicateMessage is shown when the patient already holds a serial.
const DuplicateMessage = "You already have an appointment for this date."

// Result is the outcome of Submit. A duplicate is not an error: Booking is
// then the existing record.
type Result struct {
	Outcome             Outcome  `json:"outcome"`
	Message             string   `json:"message,omitempty"`
	Booking             *Booking `json:"appointment"`
	SentEmail           bool     `json:"sent_email"`
	SentWhatsApp        bool     `json:"sent_whatsapp"`
	NotificationsQueued bool     `json:"notifications_queued"`
}

// Delivery reports what happened to the booking notifications.
type Delivery struct {
	SentEmail    bool
	SentWhatsApp bool
	Queued       bool
}

// SearchFilter narrows the admin appointment list. Empty fields match all.
type SearchFilter struct {
	Clinic string
	Date   string
	Query  string // name or mobile substring
	Limit  int
}

const maxSearchLimit = 500

func (f SearchFilter) limit() int {
	if f.Limit <= 0 || f.Limit > maxSearchLimit {
		return maxSearchLimit
	}
	return f.Limit
}

// DayStats counts bookings for one clinic and date by status.
type DayStats struct {
	Clinic    string `json:"clinic"`
	Date      string `json:"date"`
	Total     int64  `json:"total"`
	Pending   int64  `json:"pending"`
	Appointed int64  `json:"appointed"`
	Absent    int64  `json:"absent"`
}

func (s *DayStats) add(status Status, n int64) {
	s.Total += n
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusAppointed:
		s.Appointed += n
	case StatusAbsent:
		s.Absent += n
	}
}

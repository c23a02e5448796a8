// Package events holds the notification outbox: booking events written after
// commit and delivered by a background poller.
package events

import "time"

// TypeBookingCreated is the outbox type for a newly allocated serial.
const TypeBookingCreated = "booking.created.v1"

// BookingCreatedV1 carries the booking snapshot the notifications are built from.
type BookingCreatedV1 struct {
	EventID         string    `json:"event_id"`
	BookingID       int64     `json:"booking_id"`
	Name            string    `json:"name"`
	Age             string    `json:"age,omitempty"`
	Mobile          string    `json:"mobile"`
	Clinic          string    `json:"clinic"`
	ClinicTimeRange string    `json:"clinic_time_range"`
	SerialDate      string    `json:"serial_date"`
	SerialNo        int       `json:"serial_no"`
	IsOldPatient    bool      `json:"is_old_patient"`
	CreatedAt       time.Time `json:"created_at"`
}

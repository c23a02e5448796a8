package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/wolfman30/clinic-serial/internal/bookings"
)

var bookingEmailTemplate = template.Must(template.New("booking_email").Parse(`<p>A new appointment has been submitted:</p>
<ul>
  <li><strong>Name:</strong> {{.Name}}</li>
  <li><strong>Age:</strong> {{.Age}}</li>
  <li><strong>Mobile:</strong> {{.Mobile}}</li>
  <li><strong>Clinic:</strong> {{.Clinic}}</li>
  <li><strong>Date:</strong> {{.SerialDate}}</li>
  <li><strong>Serial:</strong> {{.SerialNo}}</li>
  <li><strong>Time:</strong> {{.ClinicTimeRange}}</li>
  <li><strong>Patient Type:</strong> {{.PatientType}}</li>
</ul>`))

// WhatsAppPayload is the body posted to the WhatsApp gateway.
type WhatsAppPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// BookingEmail builds the admin email for a new booking.
func BookingEmail(to string, b bookings.Booking) (EmailMessage, error) {
	var html bytes.Buffer
	if err := bookingEmailTemplate.Execute(&html, b); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render booking email: %w", err)
	}
	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("New Appointment Submitted: #%d", b.SerialNo),
		Body:    bookingSummary("A new appointment has been submitted:", b),
		HTML:    html.String(),
	}, nil
}

// BookingWhatsApp builds the gateway payload for a new booking.
func BookingWhatsApp(phone string, b bookings.Booking) WhatsAppPayload {
	return WhatsAppPayload{Phone: phone, Message: bookingSummary("New appointment", b)}
}

func bookingSummary(title string, b bookings.Booking) string {
	return fmt.Sprintf("%s\nName: %s\nMobile: %s\nClinic: %s\nDate: %s\nSerial: %d\nTime: %s\nPatient: %s",
		title, b.Name, b.Mobile, b.Clinic, b.SerialDate, b.SerialNo, b.ClinicTimeRange, b.PatientType())
}

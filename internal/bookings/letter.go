package bookings

import (
	"bytes"
	"fmt"
	"html/template"
)

var letterTemplate = template.Must(template.New("letter").Option("missingkey=error").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Appointment Letter - #{{.Booking.ID}}</title>
<style>body{font-family:Arial,Helvetica,sans-serif;max-width:800px;margin:40px auto;padding:24px;border:1px solid #e6e6e6} h1{margin-bottom:0} .meta{margin-top:8px;color:#555} .box{margin-top:18px;padding:12px;border:1px dashed #ddd}</style>
</head><body>
<h1>{{.SiteName}} - Appointment Letter</h1>
<p class="meta">Appointment ID: <strong>#{{.Booking.ID}}</strong> &nbsp; | &nbsp; Date: <strong>{{.Booking.SerialDate}}</strong> &nbsp; | &nbsp; Serial: <strong>{{.Booking.SerialNo}}</strong></p>
<div class="box">
<p><strong>Patient Name:</strong> {{.Booking.Name}}</p>
<p><strong>Age:</strong> {{.Booking.Age}}</p>
<p><strong>Mobile:</strong> {{.Booking.Mobile}}</p>
<p><strong>Clinic / Office:</strong> {{.Booking.Clinic}}</p>
<p><strong>Available Time:</strong> {{.Booking.ClinicTimeRange}}</p>
</div>
<p>Please arrive 10 minutes before your appointment. Bring previous medical reports if any.</p>
<p style="margin-top:30px">Authority signature: ______________________</p>
</body></html>
`))

// LetterFilename is the download name for a booking's letter.
func LetterFilename(id int64) string {
	return fmt.Sprintf("appointment-%d.html", id)
}

// RenderLetter renders the printable confirmation for b. All booking fields
// are HTML-escaped.
func RenderLetter(siteName string, b *Booking) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("bookings: letter: booking required")
	}
	var buf bytes.Buffer
	if err := letterTemplate.Execute(&buf, struct {
		SiteName string
		Booking  *Booking
	}{SiteName: siteName, Booking: b}); err != nil {
		return nil, fmt.Errorf("bookings: letter: %w", err)
	}
	return buf.Bytes(), nil
}

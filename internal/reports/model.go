// Package reports stores patient report submissions and their attachments.
package reports

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	maxAdminResults  = 500
	maxPublicResults = 10
)

var (
	// ErrValidation is matched by *ValidationError.
	ErrValidation = errors.New("required fields missing")

	// ErrReportNotFound is returned when no report has the requested id.
	ErrReportNotFound = errors.New("report not found")
)

// ValidationError lists the required fields that were empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reports: required fields missing: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Attachment references one stored file.
type Attachment struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// Report is a patient submission. Attachments lists only files that were stored.
type Report struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Age         string       `json:"age"`
	Mobile      string       `json:"mobile"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ReportRequest is the patient-entered part of a submission.
type ReportRequest struct {
	Name   string `json:"name"`
	Age    string `json:"age"`
	Mobile string `json:"mobile"`
}

func (r *ReportRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Age = strings.TrimSpace(r.Age)
	r.Mobile = strings.TrimSpace(r.Mobile)
}

// Validate requires name and mobile.
func (r ReportRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.Mobile) == "" {
		missing = append(missing, "mobile")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Upload is one file from a submission.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ReportResult is the outcome of Submit.
type ReportResult struct {
	Report *Report `json:"report"`
	Stored int     `json:"stored"`
	Failed int     `json:"failed"`
}

// SearchFilter narrows report listings. Date matches the created_at day.
type SearchFilter struct {
	Query string
	Date  string
	Limit int
}

func (f SearchFilter) limit() int {
	if f.Limit <= 0 || f.Limit > maxAdminResults {
		return maxAdminResults
	}
	return f.Limit
}

// Summary is the public search row; attachments are only exposed by id.
type Summary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Age    string `json:"age"`
}

// LinkedAttachment is an attachment with a time-limited download URL.
type LinkedAttachment struct {
	Attachment
	URL string `json:"url"`
}

// View is a report with download links.
type View struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Age         string             `json:"age"`
	Mobile      string             `json:"mobile"`
	CreatedAt   time.Time          `json:"created_at"`
	Attachments []LinkedAttachment `json:"attachments"`
}

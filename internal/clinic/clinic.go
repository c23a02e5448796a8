// Package clinic owns clinic definitions: the availability rules patients book
// against and the site-wide settings record they are stored in.
package clinic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is the current layout of the persisted settings record.
const SchemaVersion = 3

// DateLayout is the ISO date format used for explicit dates and serial dates.
const DateLayout = "2006-01-02"

var (
	// ErrClinicNotFound is returned when no clinic has the requested name.
	ErrClinicNotFound = errors.New("clinic not found")

	// ErrNameRequired is returned when a clinic has no name on save.
	ErrNameRequired = errors.New("clinic name is required")

	// ErrDuplicateClinic is returned when two clinics share a name on save.
	ErrDuplicateClinic = errors.New("duplicate clinic name")

	// ErrUnsupportedSchema is returned when a stored record is newer than this build.
	ErrUnsupportedSchema = errors.New("unsupported settings schema version")

	// ErrStaleSettings is returned when settings changed between load and save.
	ErrStaleSettings = errors.New("settings were modified concurrently")
)

// Clinic is a bookable clinic and its availability rule.
type Clinic struct {
	Name           string   `json:"name"`
	TimeRange      string   `json:"time_range"`      // display only, e.g. "5 PM - 9 PM"
	AttendanceTime string   `json:"attendance_time"` // display only
	Weekdays       Weekdays `json:"weekdays"`        // 0=Sunday .. 6=Saturday
	ExplicitDates  []string `json:"explicit_dates,omitempty"`
}

// HasWeekday reports whether d is one of the clinic's recurring weekdays.
func (c Clinic) HasWeekday(d time.Weekday) bool {
	for _, wd := range c.Weekdays {
		if wd == int(d) {
			return true
		}
	}
	return false
}

// HasExplicitDate reports whether iso is listed as an explicit booking date.
func (c Clinic) HasExplicitDate(iso string) bool {
	for _, d := range c.ExplicitDates {
		if d == iso {
			return true
		}
	}
	return false
}

// Weekdays is a set of weekday indexes. Decoding is permissive: numbers and
// numeric strings are accepted, anything else or out of 0..6 is dropped.
type Weekdays []int

// UnmarshalJSON implements json.Unmarshaler.
func (w *Weekdays) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*w = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("clinic: weekdays must be a list: %w", err)
	}
	values := make([]int, 0, len(raw))
	for _, item := range raw {
		var n json.Number
		if err := json.Unmarshal(item, &n); err == nil {
			if v, err := strconv.Atoi(n.String()); err == nil {
				values = append(values, v)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				values = append(values, v)
			}
		}
	}
	*w = SanitizeWeekdays(values)
	return nil
}

// SanitizeWeekdays keeps values in 0..6, de-duplicated and sorted.
func SanitizeWeekdays(values []int) Weekdays {
	seen := make(map[int]struct{}, len(values))
	out := make(Weekdays, 0, len(values))
	for _, v := range values {
		if v < 0 || v > 6 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// SplitDates splits a ';'-delimited list, trimming entries and dropping empties.
// Malformed dates are kept; availability rejects them at evaluation time.
func SplitDates(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Input is the admin-facing shape of a clinic. DatesRaw carries the original
// "2025-12-25; 2025-12-31" form and is merged into ExplicitDates.
type Input struct {
	Name           string   `json:"name"`
	TimeRange      string   `json:"time_range"`
	AttendanceTime string   `json:"attendance_time"`
	Weekdays       Weekdays `json:"weekdays"`
	ExplicitDates  []string `json:"explicit_dates,omitempty"`
	DatesRaw       string   `json:"dates_raw,omitempty"`
}

// Normalize trims fields and applies the sanitization rules.
func (in Input) Normalize() Clinic {
	var dates []string
	seen := map[string]struct{}{}
	add := func(d string) {
		d = strings.TrimSpace(d)
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	for _, d := range in.ExplicitDates {
		add(d)
	}
	for _, d := range SplitDates(in.DatesRaw) {
		add(d)
	}
	return Clinic{
		Name:           strings.TrimSpace(in.Name),
		TimeRange:      strings.TrimSpace(in.TimeRange),
		AttendanceTime: strings.TrimSpace(in.AttendanceTime),
		Weekdays:       SanitizeWeekdays(in.Weekdays),
		ExplicitDates:  dates,
	}
}

// NormalizeAll normalizes inputs and drops entries without a name.
func NormalizeAll(inputs []Input) []Clinic {
	out := make([]Clinic, 0, len(inputs))
	for _, in := range inputs {
		c := in.Normalize()
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Settings is the versioned site settings record holding the clinic registry
// and notification targets.
type Settings struct {
	Version             int       `json:"version"`
	Revision            int64     `json:"revision"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
	WhatsAppPhone       string    `json:"whatsapp_phone,omitempty"`
	WhatsAppAPIEndpoint string    `json:"whatsapp_api_endpoint,omitempty"`
	WhatsAppAPIToken    string    `json:"whatsapp_api_token,omitempty"`
	EmailRecipient      string    `json:"email_recipient,omitempty"`
	Clinics             []Clinic  `json:"clinics"`
}

// DefaultSettings returns an empty registry at the current schema version.
func DefaultSettings() *Settings {
	return &Settings{Version: SchemaVersion, Clinics: []Clinic{}}
}

// Validate checks the schema version and clinic name invariants.
func (s *Settings) Validate() error {
	if s.Version > SchemaVersion {
		return fmt.Errorf("clinic: %w: %d", ErrUnsupportedSchema, s.Version)
	}
	return ValidateClinics(s.Clinics)
}

// ValidateClinics enforces non-empty, unique clinic names.
func ValidateClinics(clinics []Clinic) error {
	seen := make(map[string]struct{}, len(clinics))
	for _, c := range clinics {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("clinic: %w", ErrNameRequired)
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("clinic: %w: %q", ErrDuplicateClinic, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Find returns the clinic with the given name.
func (s *Settings) Find(name string) (Clinic, bool) {
	for _, c := range s.Clinics {
		if c.Name == name {
			return c, true
		}
	}
	return Clinic{}, false
}

// WhatsAppConfigured reports whether both the endpoint and phone are set.
func (s *Settings) WhatsAppConfigured() bool {
	return strings.TrimSpace(s.WhatsAppAPIEndpoint) != "" && strings.TrimSpace(s.WhatsAppPhone) != ""
}

// Clone returns a deep copy so callers can mutate without touching cached values.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	out.Clinics = make([]Clinic, len(s.Clinics))
	for i, c := range s.Clinics {
		c.Weekdays = append(Weekdays(nil), c.Weekdays...)
		c.ExplicitDates = append([]string(nil), c.ExplicitDates...)
		out.Clinics[i] = c
	}
	return &out
}

// upgrade brings an older record to the current schema. Version 0 records
// predate versioning and carry the same fields.
func (s *Settings) upgrade() {
	if s.Version < SchemaVersion {
		s.Version = SchemaVersion
	}
	if s.Clinics == nil {
		s.Clinics = []Clinic{}
	}
	for i := range s.Clinics {
		s.Clinics[i].Weekdays = SanitizeWeekdays(s.Clinics[i].Weekdays)
	}
}

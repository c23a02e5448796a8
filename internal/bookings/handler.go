package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-serial/internal/availability"
	"github.com/wolfman30/clinic-serial/internal/compliance"
	"github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

const maxSubmitBody = 64 << 10

// Handler exposes the booking engine over HTTP.
type Handler struct {
	service  *Service
	audit    compliance.Recorder
	siteName string
	logger   *logging.Logger
}

// NewHandler creates a booking handler. audit may be nil.
func NewHandler(service *Service, audit compliance.Recorder, siteName string, logger *logging.Logger) *Handler {
	if service == nil {
		panic("bookings: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, audit: audit, siteName: siteName, logger: logger}
}

// Routes returns the public appointment routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	r.Get("/{id}/letter", h.Letter)
	return r
}

// RegisterAdmin adds the admin appointment routes to r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/appointments", h.Search)
	r.Get("/appointments/stats", h.Stats)
	r.Patch("/appointments/{id}/status", h.SetStatus)
	r.Delete("/appointments/{id}", h.Delete)
}

// duplicateView mirrors the fields the booking form shows for an existing serial.
type duplicateView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
	Clinic string `json:"clinic"`
	Date   string `json:"date"`
	Serial int    `json:"serial"`
	Time   string `json:"time"`
}

// Submit books a serial.
// POST /appointments
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request.")
		return
	}

	result, err := h.service.Submit(r.Context(), req)
	if err != nil {
		var verr *ValidationError
		var uerr *UnavailableDateError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": "Required fields missing.",
				"fields":  verr.Fields,
			})
		case errors.As(err, &uerr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"success": false,
				"message": uerr.Message(),
				"reason":  uerr.Reason,
			})
		default:
			writeError(w, http.StatusInternalServerError, "Could not save your appointment, please try again.")
		}
		return
	}

	b := result.Booking
	if result.Outcome == OutcomeDuplicate {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"outcome": result.Outcome,
			"message": result.Message,
			"appointment": duplicateView{
				ID:     b.ID,
				Name:   b.Name,
				Mobile: b.Mobile,
				Clinic: b.Clinic,
				Date:   b.SerialDate,
				Serial: b.SerialNo,
				Time:   b.ClinicTimeRange,
			},
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":              true,
		"outcome":              result.Outcome,
		"appointment_id":       b.ID,
		"serial_no":            b.SerialNo,
		"serial_date":          b.SerialDate,
		"clinic_time_range":    b.ClinicTimeRange,
		"sent_email":           result.SentEmail,
		"sent_whatsapp":        result.SentWhatsApp,
		"notifications_queued": result.NotificationsQueued,
	})
}

// Letter downloads the printable appointment letter.
// GET /appointments/{id}/letter
func (h *Handler) Letter(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrBookingNotFound) {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load booking for letter", "booking_id", id, "error", err)
		http.Error(w, "Could not load appointment.", http.StatusInternalServerError)
		return
	}
	body, err := RenderLetter(h.siteName, b)
	if err != nil {
		h.logger.Error("failed to render letter", "booking_id", id, "error", err)
		http.Error(w, "Could not render letter.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+LetterFilename(b.ID)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Search lists bookings by clinic, date and name/mobile.
// GET /admin/appointments?clinic=&date=&q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SearchFilter{Clinic: q.Get("clinic"), Date: q.Get("date"), Query: q.Get("q")}
	if filter.Date != "" {
		if _, err := availability.ParseDate(filter.Date, nil); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	bookings, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to search bookings", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load appointments.")
		return
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointments": bookings})
}

// Stats counts a clinic's bookings for one date.
// GET /admin/appointments/stats?clinic=&date=
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	clinicName := r.URL.Query().Get("clinic")
	date := r.URL.Query().Get("date")
	if clinicName == "" || date == "" {
		writeError(w, http.StatusBadRequest, "clinic and date are required")
		return
	}
	stats, err := h.service.DayStats(r.Context(), clinicName, date)
	if errors.Is(err, availability.ErrInvalidDate) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if err != nil {
		h.logger.Error("failed to load booking stats", "clinic", clinicName, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load stats.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// SetStatus toggles a booking's status.
// PATCH /admin/appointments/{id}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request.")
		return
	}
	status, err := h.service.SetStatus(r.Context(), id, body.Status)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid")
		return
	case errors.Is(err, ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "Appointment not found.")
		return
	case err != nil:
		h.logger.Error("failed to update booking status", "booking_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not update")
		return
	}
	h.record(r.Context(), compliance.ActionAppointmentStatusChanged, id, map[string]any{"status": status})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status})
}

// Delete removes a booking.
// DELETE /admin/appointments/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	err := h.service.Delete(r.Context(), id)
	if errors.Is(err, ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "Appointment not found.")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete booking", "booking_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not delete appointment.")
		return
	}
	h.record(r.Context(), compliance.ActionAppointmentDeleted, id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) record(ctx context.Context, action compliance.AuditAction, id int64, details any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, action, middleware.AdminActor(ctx), strconv.FormatInt(id, 10), details); err != nil {
		h.logger.Warn("failed to record audit event", "action", action, "error", err)
	}
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

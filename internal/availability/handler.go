package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-serial/internal/clinic"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

const (
	defaultHorizonDays = 30
	maxHorizonDays     = 180
)

// Handler serves the dates a booking form may offer for a clinic.
type Handler struct {
	clinics   ClinicLookup
	evaluator *Evaluator
	logger    *logging.Logger
}

// NewHandler creates an availability handler.
func NewHandler(clinics ClinicLookup, evaluator *Evaluator, logger *logging.Logger) *Handler {
	if clinics == nil {
		panic("availability: clinic lookup required")
	}
	if evaluator == nil {
		evaluator = NewEvaluator(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{clinics: clinics, evaluator: evaluator, logger: logger}
}

// Routes mounts GET /{name} (upcoming dates) and GET /{name}/check?date=.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{name}", h.Upcoming)
	r.Get("/{name}/check", h.Check)
	return r
}

// Upcoming returns bookable dates from today for ?days= days (default 30).
func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	days := defaultHorizonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "days must be a positive integer"})
			return
		}
		if n > maxHorizonDays {
			n = maxHorizonDays
		}
		days = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"clinic":     c.Name,
		"time_range": c.TimeRange,
		"today":      h.evaluator.Today().Format(clinic.DateLayout),
		"dates":      h.evaluator.Upcoming(c, days),
	})
}

// Check evaluates a single ?date= for the clinic.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	d := h.evaluator.Check(c, r.URL.Query().Get("date"))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"clinic":   c.Name,
		"bookable": d.Bookable,
		"reason":   d.Reason,
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (clinic.Clinic, bool) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSpace(name)
	c, err := h.clinics.GetClinic(r.Context(), name)
	if errors.Is(err, clinic.ErrClinicNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Clinic not found."})
		return clinic.Clinic{}, false
	}
	if err != nil {
		h.logger.Error("failed to load clinic", "clinic", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Could not load clinic."})
		return clinic.Clinic{}, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-serial/internal/compliance"
	"github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// Handler provides HTTP endpoints for clinic information and admin settings.
type Handler struct {
	registry *Registry
	audit    compliance.Recorder
	logger   *logging.Logger
}

// NewHandler creates a new clinic HTTP handler. audit may be nil.
func NewHandler(registry *Registry, audit compliance.Recorder, logger *logging.Logger) *Handler {
	if registry == nil {
		panic("clinic: registry required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry: registry,
		audit:    audit,
		logger:   logger,
	}
}

// Routes returns the public clinic routes used by the booking form.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListClinics)
	r.Get("/{name}", h.GetClinic)
	return r
}

// RegisterAdmin adds the admin settings routes to r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Put("/clinics", h.UpsertClinics)
	r.Delete("/clinics/{name}", h.DeleteClinic)
}

// ListClinics returns every configured clinic.
// GET /clinics
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.registry.ListClinics(r.Context())
	if err != nil {
		h.logger.Error("failed to list clinics", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load clinics.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clinics": clinics})
}

// GetClinic returns one clinic's schedule for the booking form.
// GET /clinics/{name}
func (h *Handler) GetClinic(w http.ResponseWriter, r *http.Request) {
	name := clinicParam(r)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Clinic name is required.")
		return
	}
	c, err := h.registry.GetClinic(r.Context(), name)
	if errors.Is(err, ErrClinicNotFound) {
		writeError(w, http.StatusNotFound, "Clinic not found.")
		return
	}
	if err != nil {
		h.logger.Error("failed to get clinic", "clinic", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load clinic.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clinic": c})
}

// settingsView hides the webhook token from admin responses.
type settingsView struct {
	Version             int      `json:"version"`
	Revision            int64    `json:"revision"`
	UpdatedAt           string   `json:"updated_at,omitempty"`
	WhatsAppPhone       string   `json:"whatsapp_phone"`
	WhatsAppAPIEndpoint string   `json:"whatsapp_api_endpoint"`
	WhatsAppTokenSet    bool     `json:"whatsapp_api_token_set"`
	EmailRecipient      string   `json:"email_recipient"`
	Clinics             []Clinic `json:"clinics"`
}

func newSettingsView(s *Settings) settingsView {
	view := settingsView{
		Version:             s.Version,
		Revision:            s.Revision,
		WhatsAppPhone:       s.WhatsAppPhone,
		WhatsAppAPIEndpoint: s.WhatsAppAPIEndpoint,
		WhatsAppTokenSet:    s.WhatsAppAPIToken != "",
		EmailRecipient:      s.EmailRecipient,
		Clinics:             s.Clinics,
	}
	if !s.UpdatedAt.IsZero() {
		view.UpdatedAt = s.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return view
}

// GetSettings returns the settings record.
// GET /admin/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.registry.Settings(r.Context())
	if err != nil {
		h.logger.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load settings.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": newSettingsView(settings)})
}

// UpdateSettingsRequest is a partial settings update. A non-nil Clinics list
// replaces the whole registry.
type UpdateSettingsRequest struct {
	WhatsAppPhone       *string `json:"whatsapp_phone,omitempty"`
	WhatsAppAPIEndpoint *string `json:"whatsapp_api_endpoint,omitempty"`
	WhatsAppAPIToken    *string `json:"whatsapp_api_token,omitempty"`
	EmailRecipient      *string `json:"email_recipient,omitempty"`
	Clinics             []Input `json:"clinics,omitempty"`
}

func (req UpdateSettingsRequest) apply(s *Settings) error {
	if req.WhatsAppPhone != nil {
		s.WhatsAppPhone = strings.TrimSpace(*req.WhatsAppPhone)
	}
	if req.WhatsAppAPIEndpoint != nil {
		s.WhatsAppAPIEndpoint = strings.TrimSpace(*req.WhatsAppAPIEndpoint)
	}
	if req.WhatsAppAPIToken != nil {
		s.WhatsAppAPIToken = strings.TrimSpace(*req.WhatsAppAPIToken)
	}
	if req.EmailRecipient != nil {
		s.EmailRecipient = strings.TrimSpace(*req.EmailRecipient)
	}
	if req.Clinics != nil {
		clinics := NormalizeAll(req.Clinics)
		if err := ValidateClinics(clinics); err != nil {
			return err
		}
		s.Clinics = clinics
	}
	return nil
}

// UpdateSettings saves notification targets and optionally the clinic list.
// PUT /admin/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	var saved *Settings
	err := h.registry.Update(r.Context(), func(s *Settings) error {
		if err := req.apply(s); err != nil {
			return err
		}
		saved = s
		return nil
	})
	if err != nil {
		h.writeSaveError(w, "failed to save settings", err)
		return
	}

	h.record(r.Context(), compliance.ActionSettingsSaved, "", map[string]any{
		"revision": saved.Revision,
		"clinics":  len(saved.Clinics),
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": newSettingsView(saved)})
}

// UpsertClinics inserts or replaces clinics by name.
// PUT /admin/clinics
func (h *Handler) UpsertClinics(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Clinics []Input `json:"clinics"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if err := h.registry.UpsertAll(r.Context(), req.Clinics); err != nil {
		h.writeSaveError(w, "failed to upsert clinics", err)
		return
	}

	names := make([]string, 0, len(req.Clinics))
	for _, c := range NormalizeAll(req.Clinics) {
		names = append(names, c.Name)
	}
	h.record(r.Context(), compliance.ActionClinicsUpserted, "", map[string]any{"names": names})

	clinics, err := h.registry.ListClinics(r.Context())
	if err != nil {
		h.logger.Error("failed to reload clinics", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load clinics.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clinics": clinics})
}

// DeleteClinic removes a clinic. Existing bookings keep their snapshot.
// DELETE /admin/clinics/{name}
func (h *Handler) DeleteClinic(w http.ResponseWriter, r *http.Request) {
	name := clinicParam(r)
	err := h.registry.Delete(r.Context(), name)
	if errors.Is(err, ErrClinicNotFound) {
		writeError(w, http.StatusNotFound, "Clinic not found.")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete clinic", "clinic", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not delete clinic.")
		return
	}
	h.record(r.Context(), compliance.ActionClinicDeleted, name, nil)
	h.logger.Info("clinic deleted", "clinic", name)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Clinic deleted."})
}

func (h *Handler) writeSaveError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrDuplicateClinic):
		writeError(w, http.StatusBadRequest, "Clinic names must be unique.")
	case errors.Is(err, ErrNameRequired):
		writeError(w, http.StatusBadRequest, "Clinic name is required.")
	case errors.Is(err, ErrStaleSettings):
		writeError(w, http.StatusConflict, "Settings changed while saving, please retry.")
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not save settings.")
	}
}

func (h *Handler) record(ctx context.Context, action compliance.AuditAction, target string, details any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, action, middleware.AdminActor(ctx), target, details); err != nil {
		h.logger.Warn("failed to record audit event", "action", action, "error", err)
	}
}

func clinicParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		raw = name
	}
	return strings.TrimSpace(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

package reports

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-serial/internal/availability"
	"github.com/wolfman30/clinic-serial/internal/compliance"
	"github.com/wolfman30/clinic-serial/internal/http/middleware"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

const multipartMemory = 8 << 20

// Handler exposes report intake over HTTP.
type Handler struct {
	service  *Service
	audit    compliance.Recorder
	maxBytes int64
	logger   *logging.Logger
}

// NewHandler creates a report handler. maxBytes bounds a whole submission.
func NewHandler(service *Service, audit compliance.Recorder, maxBytes int64, logger *logging.Logger) *Handler {
	if service == nil {
		panic("reports: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &Handler{service: service, audit: audit, maxBytes: maxBytes, logger: logger}
}

// Routes returns the public report routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	r.Get("/search", h.SearchPublic)
	r.Get("/{id}", h.Get)
	return r
}

// RegisterAdmin adds the admin report routes to r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/reports", h.Search)
	r.Delete("/reports/{id}", h.Delete)
}

// Submit accepts a multipart form with name, age, mobile and any number of
// "attachments" files.
// POST /reports
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload is too large.")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request.")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := ReportRequest{
		Name:   r.FormValue("name"),
		Age:    r.FormValue("age"),
		Mobile: r.FormValue("mobile"),
	}

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["attachments"]...)
	headers = append(headers, r.MultipartForm.File["attachments[]"]...)

	uploads := make([]Upload, 0, len(headers))
	openFailures := 0
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			openFailures++
			h.logger.Warn("could not open uploaded file", "filename", fh.Filename, "error", err)
			continue
		}
		defer f.Close()
		uploads = append(uploads, Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}

	result, err := h.service.Submit(r.Context(), req, uploads)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			var verr *ValidationError
			errors.As(err, &verr)
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": ErrorMessage(err),
				"fields":  verr.Fields,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, ErrorMessage(err))
		return
	}
	result.Failed += openFailures

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   "Report saved successfully.",
		"report_id": result.Report.ID,
		"stored":    result.Stored,
		"failed":    result.Failed,
	})
}

// SearchPublic finds reports by name or mobile.
// GET /reports/search?q=
func (h *Handler) SearchPublic(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.SearchPublic(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.logger.Error("failed to search reports", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not search reports.")
		return
	}
	if results == nil {
		results = []Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reports": results})
}

// Get returns one report with attachment links.
// GET /reports/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrReportNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load report", "report_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load report.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": view})
}

// Search lists reports for admins.
// GET /admin/reports?q=&date=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SearchFilter{Query: q.Get("q"), Date: q.Get("date")}
	if filter.Date != "" {
		if _, err := availability.ParseDate(filter.Date, nil); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	results, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to search reports", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not load reports.")
		return
	}
	if results == nil {
		results = []Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reports": results})
}

// Delete removes a report.
// DELETE /admin/reports/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := reportID(w, r)
	if !ok {
		return
	}
	err := h.service.Delete(r.Context(), id)
	if errors.Is(err, ErrReportNotFound) {
		writeError(w, http.StatusNotFound, "Report not found.")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete report", "report_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not delete report.")
		return
	}
	h.record(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": true})
}

func (h *Handler) record(ctx context.Context, id int64) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, compliance.ActionReportDeleted, middleware.AdminActor(ctx), strconv.FormatInt(id, 10), nil); err != nil {
		h.logger.Warn("failed to record audit event", "action", compliance.ActionReportDeleted, "error", err)
	}
}

func reportID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "missing id")
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

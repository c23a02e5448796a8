package compliance

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/clinic-serial/pkg/logging"
)

type eventQuerier interface {
	QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditHandler lists admin audit events.
type AuditHandler struct {
	events eventQuerier
	logger *logging.Logger
}

func NewAuditHandler(events eventQuerier, logger *logging.Logger) *AuditHandler {
	if events == nil {
		panic("compliance: audit events required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditHandler{events: events, logger: logger}
}

// ListEvents handles GET /admin/audit?action=&target=&from=&to=&limit=
// from and to are RFC 3339 timestamps.
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AuditFilter{
		Action:   AuditAction(q.Get("action")),
		TargetID: q.Get("target"),
	}
	for key, dst := range map[string]*time.Time{"from": &filter.StartTime, "to": &filter.EndTime} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": key + " must be an RFC 3339 timestamp"})
			return
		}
		*dst = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	events, err := h.events.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Could not load audit log."})
		return
	}
	if events == nil {
		events = []AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "events": events})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

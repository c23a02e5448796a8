// Package compliance keeps an append-only trail of admin actions on patient data.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction names an admin operation.
type AuditAction string

const (
	ActionAppointmentDeleted       AuditAction = "appointment.deleted"
	ActionAppointmentStatusChanged AuditAction = "appointment.status_changed"
	ActionReportDeleted            AuditAction = "report.deleted"
	ActionClinicDeleted            AuditAction = "clinic.deleted"
	ActionClinicsUpserted          AuditAction = "clinic.upserted"
	ActionSettingsSaved            AuditAction = "settings.saved"
)

// AuditEvent is an immutable audit record.
type AuditEvent struct {
	ID        string          `json:"id"`
	Action    AuditAction     `json:"action"`
	Actor     string          `json:"actor,omitempty"`
	TargetID  string          `json:"target_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder is what HTTP handlers depend on.
type Recorder interface {
	Record(ctx context.Context, action AuditAction, actor, targetID string, details any) error
}

// AuditService writes audit events to admin_audit_log.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO admin_audit_log (id, action, actor, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Action),
		nullString(event.Actor),
		nullString(event.TargetID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: log audit event: %w", err)
	}
	return nil
}

// Record marshals details and logs the action.
func (s *AuditService) Record(ctx context.Context, action AuditAction, actor, targetID string, details any) error {
	var raw json.RawMessage
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("compliance: marshal details: %w", err)
		}
		raw = data
	}
	return s.LogEvent(ctx, AuditEvent{
		Action:   action,
		Actor:    actor,
		TargetID: targetID,
		Details:  raw,
	})
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	Action    AuditAction
	TargetID  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// QueryEvents retrieves audit events, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, action, actor, target_id, details, created_at
		FROM admin_audit_log
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, string(filter.Action))
		argIdx++
	}
	if filter.TargetID != "" {
		query += fmt.Sprintf(" AND target_id = $%d", argIdx)
		args = append(args, filter.TargetID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var action string
		var actor, target sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &action, &actor, &target, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: scan audit event: %w", err)
		}
		e.Action = AuditAction(action)
		e.Actor = actor.String
		e.TargetID = target.String
		e.Details = append(json.RawMessage(nil), details...)
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Recorder = (*AuditService)(nil)

package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-serial/pkg/logging"
)

type intakeMetrics interface {
	ObserveAttachments(stored, failed int)
	ObserveSubmitLatency(kind string, seconds float64)
}

// Service handles report intake and lookup.
type Service struct {
	repo    Repository
	store   AttachmentStore
	metrics intakeMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewService wires report intake. metrics may be nil.
func NewService(repo Repository, store AttachmentStore, metrics intakeMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("reports: repository required")
	}
	if store == nil {
		panic("reports: attachment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Submit stores each upload independently and saves the report with the
// attachments that were stored. A failed upload is logged and skipped.
func (s *Service) Submit(ctx context.Context, req ReportRequest, uploads []Upload) (*ReportResult, error) {
	start := s.now()
	req.normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &ReportResult{}
	attachments := make([]Attachment, 0, len(uploads))
	for _, up := range uploads {
		if strings.TrimSpace(up.Filename) == "" || up.Body == nil {
			continue
		}
		key := attachmentKey(start.UTC(), up.Filename)
		if err := s.store.Put(ctx, key, up); err != nil {
			result.Failed++
			s.logger.Warn("report attachment not stored", "filename", up.Filename, "error", err)
			continue
		}
		result.Stored++
		attachments = append(attachments, Attachment{
			Key:         key,
			Filename:    up.Filename,
			ContentType: contentTypeOrDefault(up.ContentType),
			Size:        up.Size,
		})
	}

	saved, err := s.repo.Insert(ctx, &Report{
		Name:        req.Name,
		Age:         req.Age,
		Mobile:      req.Mobile,
		Attachments: attachments,
	})
	if err != nil {
		s.logger.Error("failed to save report", "error", err, "attachments", len(attachments))
		return nil, err
	}
	result.Report = saved

	if s.metrics != nil {
		s.metrics.ObserveAttachments(result.Stored, result.Failed)
		s.metrics.ObserveSubmitLatency("report", s.now().Sub(start).Seconds())
	}
	s.logger.Info("report submitted", "report_id", saved.ID, "stored", result.Stored, "failed", result.Failed)
	return result, nil
}

// Get returns a report with download URLs. Attachments whose URL cannot be
// issued are omitted.
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	rep, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &View{
		ID:          rep.ID,
		Name:        rep.Name,
		Age:         rep.Age,
		Mobile:      rep.Mobile,
		CreatedAt:   rep.CreatedAt,
		Attachments: make([]LinkedAttachment, 0, len(rep.Attachments)),
	}
	for _, att := range rep.Attachments {
		url, err := s.store.URL(ctx, att.Key)
		if err != nil {
			s.logger.Warn("no url for report attachment", "report_id", id, "key", att.Key, "error", err)
			continue
		}
		view.Attachments = append(view.Attachments, LinkedAttachment{Attachment: att, URL: url})
	}
	return view, nil
}

// SearchPublic finds up to ten reports by name or mobile. An empty query
// returns nothing.
func (s *Service) SearchPublic(ctx context.Context, query string) ([]Summary, error) {
	if strings.TrimSpace(query) == "" {
		return []Summary{}, nil
	}
	return s.repo.SearchPublic(ctx, query, maxPublicResults)
}

// Search lists reports for the admin panel.
func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Report, error) {
	return s.repo.Search(ctx, filter)
}

// Delete removes the report, then its stored files on a best-effort basis.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rep, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	var errs []error
	for _, att := range rep.Attachments {
		if err := s.store.Delete(ctx, att.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("report deleted but attachments remain", "report_id", id, "error", errors.Join(errs...))
	}
	return nil
}

// ErrorMessage returns the patient-facing text for a submit error.
func ErrorMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("Required fields missing: %s.", strings.Join(verr.Fields, ", "))
	}
	return "Could not save."
}

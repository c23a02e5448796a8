package reports

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository persists report records.
type Repository interface {
	Insert(ctx context.Context, r *Report) (*Report, error)
	Get(ctx context.Context, id int64) (*Report, error)
	Search(ctx context.Context, filter SearchFilter) ([]Report, error)
	SearchPublic(ctx context.Context, query string, limit int) ([]Summary, error)
	Delete(ctx context.Context, id int64) error
}

// InMemoryRepository is used in development and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	reports map[int64]Report
	now     func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{reports: map[int64]Report{}, now: time.Now}
}

func (r *InMemoryRepository) Insert(ctx context.Context, rep *Report) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	saved := *rep
	saved.ID = r.nextID
	saved.Attachments = append([]Attachment{}, rep.Attachments...)
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = r.now().UTC()
	}
	r.reports[saved.ID] = saved
	out := saved
	return &out, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id int64) (*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return &rep, nil
}

func (r *InMemoryRepository) Search(ctx context.Context, filter SearchFilter) ([]Report, error) {
	r.mu.RLock()
	var out []Report
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, rep := range r.reports {
		if q != "" && !matches(rep, q) {
			continue
		}
		if filter.Date != "" && rep.CreatedAt.Format("2006-01-02") != filter.Date {
			continue
		}
		out = append(out, rep)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) SearchPublic(ctx context.Context, query string, limit int) ([]Summary, error) {
	r.mu.RLock()
	var out []Summary
	q := strings.ToLower(strings.TrimSpace(query))
	for _, rep := range r.reports {
		if matches(rep, q) {
			out = append(out, Summary{ID: rep.ID, Name: rep.Name, Mobile: rep.Mobile, Age: rep.Age})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reports[id]; !ok {
		return ErrReportNotFound
	}
	delete(r.reports, id)
	return nil
}

func matches(rep Report, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(rep.Name), lowerQuery) || strings.Contains(rep.Mobile, lowerQuery)
}

var _ Repository = (*InMemoryRepository)(nil)

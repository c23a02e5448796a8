package bookings

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository persists bookings. InsertNext must assign serial_no as the
// current maximum for (clinic, serial_date) plus one, returning
// ErrAllocationConflict when a concurrent writer took that serial and
// ErrDuplicateBooking when the (mobile, clinic, serial_date) triple exists.
type Repository interface {
	FindByMobile(ctx context.Context, mobile, clinic, serialDate string) (*Booking, error)
	InsertNext(ctx context.Context, b *Booking) (*Booking, error)
	Get(ctx context.Context, id int64) (*Booking, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	MarkNotified(ctx context.Context, id int64, sentEmail, sentWhatsApp bool) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, filter SearchFilter) ([]Booking, error)
	DayStats(ctx context.Context, clinic, serialDate string) (*DayStats, error)
}

// InMemoryRepository keeps bookings in process. Allocation is serialized per
// (clinic, serial_date) with a dedicated mutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	bookings map[int64]*Booking

	keyMu    sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		bookings: make(map[int64]*Booking),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func (r *InMemoryRepository) lockFor(clinic, serialDate string) *sync.Mutex {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()
	key := clinic + "\x00" + serialDate
	l, ok := r.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.keyLocks[key] = l
	}
	return l
}

// FindByMobile returns the booking for the triple or ErrBookingNotFound.
func (r *InMemoryRepository) FindByMobile(ctx context.Context, mobile, clinic, serialDate string) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bookings {
		if b.Mobile == mobile && b.Clinic == clinic && b.SerialDate == serialDate {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrBookingNotFound
}

// InsertNext stores b with the next serial for its clinic and date.
func (r *InMemoryRepository) InsertNext(ctx context.Context, b *Booking) (*Booking, error) {
	l := r.lockFor(b.Clinic, b.SerialDate)
	l.Lock()
	defer l.Unlock()

	// Same-key writers are excluded by l, so the scan and the insert below
	// cannot interleave with another allocation for this clinic and date.
	r.mu.RLock()
	maxSerial := 0
	for _, existing := range r.bookings {
		if existing.Clinic != b.Clinic || existing.SerialDate != b.SerialDate {
			continue
		}
		if existing.Mobile == b.Mobile {
			r.mu.RUnlock()
			return nil, ErrDuplicateBooking
		}
		if existing.SerialNo > maxSerial {
			maxSerial = existing.SerialNo
		}
	}
	r.mu.RUnlock()

	stored := *b
	stored.SerialNo = maxSerial + 1
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	stored.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	r.nextID++
	stored.ID = r.nextID
	r.bookings[stored.ID] = &stored
	r.mu.Unlock()

	out := stored
	return &out, nil
}

// Get returns a booking by id.
func (r *InMemoryRepository) Get(ctx context.Context, id int64) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

// UpdateStatus sets the booking status.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.Status = status
	return nil
}

// MarkNotified records notification outcomes.
func (r *InMemoryRepository) MarkNotified(ctx context.Context, id int64, sentEmail, sentWhatsApp bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	b.SentEmail = sentEmail
	b.SentWhatsApp = sentWhatsApp
	return nil
}

// Delete removes a booking.
func (r *InMemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[id]; !ok {
		return ErrBookingNotFound
	}
	delete(r.bookings, id)
	return nil
}

// Search filters bookings ordered by serial_date DESC, serial_no ASC.
func (r *InMemoryRepository) Search(ctx context.Context, filter SearchFilter) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []Booking
	for _, b := range r.bookings {
		if filter.Clinic != "" && b.Clinic != filter.Clinic {
			continue
		}
		if filter.Date != "" && b.SerialDate != filter.Date {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Name), q) && !strings.Contains(b.Mobile, q) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SerialDate != out[j].SerialDate {
			return out[i].SerialDate > out[j].SerialDate
		}
		return out[i].SerialNo < out[j].SerialNo
	})
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DayStats counts bookings for a clinic and date by status.
func (r *InMemoryRepository) DayStats(ctx context.Context, clinic, serialDate string) (*DayStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &DayStats{Clinic: clinic, Date: serialDate}
	for _, b := range r.bookings {
		if b.Clinic == clinic && b.SerialDate == serialDate {
			stats.add(b.Status, 1)
		}
	}
	return stats, nil
}

var _ Repository = (*InMemoryRepository)(nil)

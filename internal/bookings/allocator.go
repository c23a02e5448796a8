package bookings

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wolfman30/clinic-serial/pkg/logging"
)

const (
	defaultAllocationAttempts = 5
	allocationBaseBackoff     = 5 * time.Millisecond
)

// retryObserver is satisfied by *metrics.BookingMetrics.
type retryObserver interface {
	ObserveAllocationRetry()
}

// Allocator assigns the next serial for a (clinic, date) and persists the
// booking, retrying when a concurrent writer wins the same serial.
type Allocator struct {
	repo        Repository
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	observer    retryObserver
	logger      *logging.Logger
}

// NewAllocator creates an allocator making at most maxAttempts inserts.
func NewAllocator(repo Repository, maxAttempts int, logger *logging.Logger) *Allocator {
	if repo == nil {
		panic("bookings: repository required")
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultAllocationAttempts
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Allocator{
		repo:        repo,
		maxAttempts: maxAttempts,
		backoff:     allocationBaseBackoff,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// Allocate inserts b with the next serial. ErrDuplicateBooking passes
// through; exhausting the retries yields ErrStorageFailure.
func (a *Allocator) Allocate(ctx context.Context, b *Booking) (*Booking, error) {
	for attempt := 1; ; attempt++ {
		stored, err := a.repo.InsertNext(ctx, b)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, ErrDuplicateBooking) {
			return nil, err
		}
		if !errors.Is(err, ErrAllocationConflict) {
			return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
		if attempt >= a.maxAttempts {
			a.logger.Error("serial allocation exhausted retries",
				"clinic", b.Clinic,
				"serial_date", b.SerialDate,
				"attempts", attempt,
			)
			return nil, fmt.Errorf("%w: serial allocation failed after %d attempts", ErrStorageFailure, attempt)
		}
		if a.observer != nil {
			a.observer.ObserveAllocationRetry()
		}
		a.logger.Debug("serial allocation conflict, retrying", "clinic", b.Clinic, "serial_date", b.SerialDate, "attempt", attempt)
		if err := a.sleep(ctx, a.jitter(attempt)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
	}
}

// jitter grows linearly with the attempt and adds up to one base interval.
func (a *Allocator) jitter(attempt int) time.Duration {
	if a.backoff <= 0 {
		return 0
	}
	return time.Duration(attempt)*a.backoff + rand.N(a.backoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

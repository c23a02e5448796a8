package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conflictRepo fails InsertNext with the queued errors before delegating.
type conflictRepo struct {
	*InMemoryRepository
	errs  []error
	calls int
}

func (c *conflictRepo) InsertNext(ctx context.Context, b *Booking) (*Booking, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	return c.InMemoryRepository.InsertNext(ctx, b)
}

type retryCounter struct{ n int }

func (r *retryCounter) ObserveAllocationRetry() { r.n++ }

func newTestAllocator(repo Repository, attempts int) (*Allocator, *[]time.Duration) {
	a := NewAllocator(repo, attempts, nil)
	var slept []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return a, &slept
}

func TestAllocatorRetriesConflicts(t *testing.T) {
	repo := &conflictRepo{
		InMemoryRepository: NewInMemoryRepository(),
		errs:               []error{ErrAllocationConflict, ErrAllocationConflict},
	}
	a, slept := newTestAllocator(repo, 5)
	counter := &retryCounter{}
	a.observer = counter

	b, err := a.Allocate(context.Background(), &Booking{Mobile: "1", Clinic: "Dr. Khan", SerialDate: "2025-11-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.SerialNo)
	assert.Equal(t, 3, repo.calls)
	assert.Equal(t, 2, counter.n)
	require.Len(t, *slept, 2)
	assert.GreaterOrEqual(t, (*slept)[1], 2*allocationBaseBackoff)
}

func TestAllocatorEscalatesAfterMaxAttempts(t *testing.T) {
	repo := &conflictRepo{
		InMemoryRepository: NewInMemoryRepository(),
		errs:               []error{ErrAllocationConflict, ErrAllocationConflict, ErrAllocationConflict},
	}
	a, _ := newTestAllocator(repo, 3)

	_, err := a.Allocate(context.Background(), &Booking{Mobile: "1", Clinic: "Dr. Khan", SerialDate: "2025-11-03"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageFailure))
	assert.False(t, errors.Is(err, ErrAllocationConflict), "conflicts must not leak to callers")
	assert.Equal(t, 3, repo.calls)
}

func TestAllocatorPassesDuplicateThrough(t *testing.T) {
	repo := &conflictRepo{InMemoryRepository: NewInMemoryRepository(), errs: []error{ErrDuplicateBooking}}
	a, _ := newTestAllocator(repo, 5)

	_, err := a.Allocate(context.Background(), &Booking{})
	assert.True(t, errors.Is(err, ErrDuplicateBooking))
	assert.Equal(t, 1, repo.calls)
}

func TestAllocatorWrapsStorageErrors(t *testing.T) {
	repo := &conflictRepo{InMemoryRepository: NewInMemoryRepository(), errs: []error{errors.New("disk full")}}
	a, _ := newTestAllocator(repo, 5)

	_, err := a.Allocate(context.Background(), &Booking{})
	assert.True(t, errors.Is(err, ErrStorageFailure))
	assert.Equal(t, 1, repo.calls)
}

func TestAllocatorStopsOnCancelledContext(t *testing.T) {
	repo := &conflictRepo{InMemoryRepository: NewInMemoryRepository(), errs: []error{ErrAllocationConflict}}
	a := NewAllocator(repo, 5, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Allocate(ctx, &Booking{})
	assert.True(t, errors.Is(err, ErrStorageFailure))
	assert.True(t, errors.Is(err, context.Canceled))
}

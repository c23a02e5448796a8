package clinic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	loads int
}

func (c *countingStore) Load(ctx context.Context) (*Settings, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.MemoryStore.Load(ctx)
}

func newTestRegistry(t *testing.T) (*Registry, *countingStore) {
	t.Helper()
	store := &countingStore{MemoryStore: NewMemoryStore()}
	return NewRegistry(store, 4, time.Minute, nil), store
}

func TestRegistryUpsertAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	err := reg.UpsertAll(ctx, []Input{
		{Name: "Dr. Khan", TimeRange: "5 PM - 9 PM", Weekdays: Weekdays{1, 3, 5}},
		{Name: "Dr. Ahmed", Weekdays: Weekdays{}, DatesRaw: "2025-12-25; 2025-12-31"},
	})
	require.NoError(t, err)

	khan, err := reg.GetClinic(ctx, "Dr. Khan")
	require.NoError(t, err)
	assert.Equal(t, "5 PM - 9 PM", khan.TimeRange)

	ahmed, err := reg.GetClinic(ctx, "Dr. Ahmed")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-12-25", "2025-12-31"}, ahmed.ExplicitDates)

	_, err = reg.GetClinic(ctx, "Dr. Nobody")
	assert.True(t, errors.Is(err, ErrClinicNotFound))
}

func TestRegistryUpsertReplacesByName(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.UpsertAll(ctx, []Input{{Name: "Dr. Khan", Weekdays: Weekdays{1}}, {Name: "Dr. Ahmed"}}))
	require.NoError(t, reg.UpsertAll(ctx, []Input{{Name: "Dr. Khan", Weekdays: Weekdays{2, 9}}}))

	clinics, err := reg.ListClinics(ctx)
	require.NoError(t, err)
	require.Len(t, clinics, 2)
	assert.Equal(t, "Dr. Khan", clinics[0].Name)
	assert.Equal(t, Weekdays{2}, clinics[0].Weekdays)
}

func TestRegistryUpsertRejectsDuplicateInput(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.UpsertAll(context.Background(), []Input{{Name: "Dr. Khan"}, {Name: " Dr. Khan "}})
	assert.True(t, errors.Is(err, ErrDuplicateClinic))
}

func TestRegistryDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.UpsertAll(ctx, []Input{{Name: "Dr. Khan"}, {Name: "Dr. Ahmed"}}))

	require.NoError(t, reg.Delete(ctx, "Dr. Khan"))
	_, err := reg.GetClinic(ctx, "Dr. Khan")
	assert.True(t, errors.Is(err, ErrClinicNotFound))

	assert.True(t, errors.Is(reg.Delete(ctx, "Dr. Khan"), ErrClinicNotFound))
}

func TestRegistryCachesReadsAndPurgesOnWrite(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.ListClinics(ctx)
	require.NoError(t, err)
	_, err = reg.ListClinics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)

	require.NoError(t, reg.UpsertAll(ctx, []Input{{Name: "Dr. Khan"}}))
	clinics, err := reg.ListClinics(ctx)
	require.NoError(t, err)
	assert.Len(t, clinics, 1, "write must invalidate the cached record")
}

func TestRegistryCachedCopiesAreIsolated(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.UpsertAll(ctx, []Input{{Name: "Dr. Khan", Weekdays: Weekdays{1}}}))

	clinics, _ := reg.ListClinics(ctx)
	clinics[0].Weekdays[0] = 6

	again, _ := reg.ListClinics(ctx)
	assert.Equal(t, Weekdays{1}, again[0].Weekdays)
}

// staleOnceStore fails the first save as if another admin saved first.
type staleOnceStore struct {
	*MemoryStore
	failed bool
}

func (s *staleOnceStore) Save(ctx context.Context, settings *Settings) error {
	if !s.failed {
		s.failed = true
		return ErrStaleSettings
	}
	return s.MemoryStore.Save(ctx, settings)
}

func TestRegistryUpdateRetriesStaleSave(t *testing.T) {
	store := &staleOnceStore{MemoryStore: NewMemoryStore()}
	reg := NewRegistry(store, 1, time.Minute, nil)

	calls := 0
	err := reg.Update(context.Background(), func(s *Settings) error {
		calls++
		s.EmailRecipient = "ops@clinic.example"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	s, _ := reg.Settings(context.Background())
	assert.Equal(t, "ops@clinic.example", s.EmailRecipient)
}

func TestRegistryConcurrentUpserts(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"Dr. Khan", "Dr. Ahmed"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			errs <- reg.UpsertAll(ctx, []Input{{Name: name}})
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	clinics, err := reg.ListClinics(ctx)
	require.NoError(t, err)
	assert.Len(t, clinics, 2)
}

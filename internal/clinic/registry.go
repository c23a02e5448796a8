package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

const (
	settingsCacheKey = "settings"
	maxSaveAttempts  = 3
)

// Registry is the only owner of clinic definitions. Reads are served from a
// short-lived LRU cache; every write goes to the store and purges the cache.
type Registry struct {
	store  SettingsStore
	cache  *expirable.LRU[string, *Settings]
	logger *logging.Logger
}

// NewRegistry wraps store with a read cache of the given size and TTL.
func NewRegistry(store SettingsStore, cacheSize int, ttl time.Duration, logger *logging.Logger) *Registry {
	if store == nil {
		panic("clinic: settings store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{
		store:  store,
		cache:  expirable.NewLRU[string, *Settings](cacheSize, nil, ttl),
		logger: logger,
	}
}

// Settings returns a copy of the current settings record.
func (r *Registry) Settings(ctx context.Context) (*Settings, error) {
	if cached, ok := r.cache.Get(settingsCacheKey); ok {
		return cached.Clone(), nil
	}
	settings, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Add(settingsCacheKey, settings.Clone())
	return settings, nil
}

// ListClinics returns clinics in their configured order.
func (r *Registry) ListClinics(ctx context.Context) ([]Clinic, error) {
	settings, err := r.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Clinics, nil
}

// GetClinic returns the clinic named name or ErrClinicNotFound.
func (r *Registry) GetClinic(ctx context.Context, name string) (Clinic, error) {
	settings, err := r.Settings(ctx)
	if err != nil {
		return Clinic{}, err
	}
	c, ok := settings.Find(name)
	if !ok {
		return Clinic{}, ErrClinicNotFound
	}
	return c, nil
}

// UpsertAll inserts or replaces clinics by name, keeping existing order and
// appending new names. Inputs are sanitized; nameless entries are dropped.
func (r *Registry) UpsertAll(ctx context.Context, inputs []Input) error {
	clinics := NormalizeAll(inputs)
	if err := ValidateClinics(clinics); err != nil {
		return err
	}
	return r.Update(ctx, func(s *Settings) error {
		for _, c := range clinics {
			replaced := false
			for i := range s.Clinics {
				if s.Clinics[i].Name == c.Name {
					s.Clinics[i] = c
					replaced = true
					break
				}
			}
			if !replaced {
				s.Clinics = append(s.Clinics, c)
			}
		}
		return nil
	})
}

// Delete removes the named clinic. Bookings keep their clinic snapshot.
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.Update(ctx, func(s *Settings) error {
		kept := s.Clinics[:0]
		found := false
		for _, c := range s.Clinics {
			if c.Name == name {
				found = true
				continue
			}
			kept = append(kept, c)
		}
		if !found {
			return ErrClinicNotFound
		}
		s.Clinics = kept
		return nil
	})
}

// Update applies mutate to a fresh copy of the settings and saves it,
// retrying when another writer saved in between.
func (r *Registry) Update(ctx context.Context, mutate func(*Settings) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		settings, err := r.store.Load(ctx)
		if err != nil {
			return err
		}
		if err := mutate(settings); err != nil {
			return err
		}
		err = r.store.Save(ctx, settings)
		r.cache.Purge()
		if err == nil {
			r.logger.Info("clinic settings saved", "revision", settings.Revision, "clinics", len(settings.Clinics))
			return nil
		}
		if !errors.Is(err, ErrStaleSettings) {
			return err
		}
		lastErr = err
		r.logger.Warn("clinic settings changed concurrently, retrying", "attempt", attempt)
	}
	return fmt.Errorf("clinic: update settings: %w", lastErr)
}

package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettingsStore loads and saves the settings record.
type SettingsStore interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, settings *Settings) error
}

// Store persists the settings record as one JSON blob in Redis. Saves are
// optimistic: the caller's Revision must match the stored one.
type Store struct {
	redis *redis.Client
	key   string
	now   func() time.Time
}

// NewStore creates a Redis-backed settings store under key.
func NewStore(redisClient *redis.Client, key string) *Store {
	if redisClient == nil {
		panic("clinic: redis client required")
	}
	if key == "" {
		key = "clinic:settings:v3"
	}
	return &Store{redis: redisClient, key: key, now: time.Now}
}

// Load retrieves the settings, returning defaults if none were saved yet.
func (s *Store) Load(ctx context.Context) (*Settings, error) {
	return readSettings(ctx, s.redis, s.key)
}

// Save validates and writes settings. On success settings.Revision and
// UpdatedAt reflect the stored record.
func (s *Store) Save(ctx context.Context, settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("clinic: settings required")
	}
	settings.Version = SchemaVersion
	if err := settings.Validate(); err != nil {
		return err
	}

	var saved Settings
	txf := func(tx *redis.Tx) error {
		current, err := readSettings(ctx, tx, s.key)
		if err != nil {
			return err
		}
		if current.Revision != settings.Revision {
			return ErrStaleSettings
		}
		saved = *settings
		saved.Revision = current.Revision + 1
		saved.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("clinic: marshal settings: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	if err := s.redis.Watch(ctx, txf, s.key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrStaleSettings
		}
		if errors.Is(err, ErrStaleSettings) {
			return err
		}
		return fmt.Errorf("clinic: save settings: %w", err)
	}
	settings.Revision = saved.Revision
	settings.UpdatedAt = saved.UpdatedAt
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readSettings(ctx context.Context, cmd getter, key string) (*Settings, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get settings: %w", err)
	}
	return decodeSettings(data)
}

func decodeSettings(data []byte) (*Settings, error) {
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal settings: %w", err)
	}
	if settings.Version > SchemaVersion {
		return nil, fmt.Errorf("clinic: %w: %d", ErrUnsupportedSchema, settings.Version)
	}
	settings.upgrade()
	return &settings, nil
}

// MemoryStore keeps settings in process. Used when Redis is unavailable in
// development and by tests.
type MemoryStore struct {
	mu       sync.Mutex
	settings *Settings
}

// NewMemoryStore creates an empty in-memory settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: DefaultSettings()}
}

// Load returns a copy of the stored settings.
func (m *MemoryStore) Load(ctx context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Clone(), nil
}

// Save applies the same validation and revision check as Store.
func (m *MemoryStore) Save(ctx context.Context, settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("clinic: settings required")
	}
	settings.Version = SchemaVersion
	if err := settings.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if settings.Revision != m.settings.Revision {
		return ErrStaleSettings
	}
	settings.Revision++
	settings.UpdatedAt = time.Now().UTC()
	m.settings = settings.Clone()
	return nil
}

var (
	_ SettingsStore = (*Store)(nil)
	_ SettingsStore = (*MemoryStore)(nil)
)

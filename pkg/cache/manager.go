package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache lifetimes.
type Config struct {
	// MaxAge is how long an entry is kept in Redis.
	MaxAge time.Duration

	// FreshFor is how long an entry is served without asking the API.
	// It is capped at MaxAge.
	FreshFor time.Duration
}

// DefaultConfig keeps payloads for 30 days; NR records rarely change.
func DefaultConfig() Config {
	return Config{
		MaxAge:   30 * 24 * time.Hour,
		FreshFor: 30 * 24 * time.Hour,
	}
}

// Manager handles payload caching with a Redis backend.
type Manager struct {
	redis  *redis.Client
	config Config
}

// NewManager creates a new cache manager.
func NewManager(redisClient *redis.Client, cfg Config) (*Manager, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("cache max age must be > 0 (got %s)", cfg.MaxAge)
	}
	if cfg.FreshFor <= 0 || cfg.FreshFor > cfg.MaxAge {
		cfg.FreshFor = cfg.MaxAge
	}
	return &Manager{
		redis:  redisClient,
		config: cfg,
	}, nil
}

// Get retrieves the entry for id. Returns ErrCacheMiss if there is none.
func (m *Manager) Get(ctx context.Context, id nr.Identifier) (*Entry, error) {
	data, err := m.redis.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Identifier != id.String() {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: stored for %q", ErrInvalidEntry, entry.Identifier)
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores entry for MaxAge.
func (m *Manager) Set(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	id, err := nr.Parse(entry.Identifier)
	if err != nil {
		return fmt.Errorf("cache entry: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, Key(id), data, m.config.MaxAge).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the entry for id.
func (m *Manager) Delete(ctx context.Context, id nr.Identifier) error {
	if err := m.redis.Del(ctx, Key(id)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// IsFresh reports whether entry may be served without contacting the API.
func (m *Manager) IsFresh(entry *Entry, now time.Time) bool {
	if entry == nil {
		return false
	}
	return entry.Age(now) <= m.config.FreshFor
}

// Touch records that the API confirmed entry unchanged at now and re-stores it.
func (m *Manager) Touch(ctx context.Context, entry *Entry, now time.Time) error {
	entry.RetrievedAt = now
	return m.Set(ctx, entry)
}

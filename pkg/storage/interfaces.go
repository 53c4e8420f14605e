package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/platinummonkey/chartpay/pkg/payments"
)

// ActiveRequestStore caches the user's current payment request across
// process restarts.
type ActiveRequestStore interface {
	payments.Store
	io.Closer
}

// Config for the active request cache
type Config struct {
	Type string // "memory", "redis", "sqlite"

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisKeyPrefix  string

	// SQLite config
	SQLitePath string

	// TTL bounds how long an entry survives without being rewritten
	TTL time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:           "memory",
		RedisURL:       "redis://localhost:6379",
		RedisDB:        -1,
		RedisKeyPrefix: "chartpay",
		SQLitePath:     "chartpay.db",
		TTL:            7 * 24 * time.Hour,
	}
}

// New opens the store selected by cfg.Type.
func New(cfg Config) (ActiveRequestStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memoryStore{payments.NewMemoryStore()}, nil
	case "redis":
		return NewRedisStore(cfg)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("invalid storage type: %s (must be memory, redis, or sqlite)", cfg.Type)
	}
}

type memoryStore struct {
	*payments.MemoryStore
}

func (memoryStore) Close() error { return nil }

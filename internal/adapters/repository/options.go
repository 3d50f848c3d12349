package repository

import (
	"time"

	"github.com/okian/eldlog/pkg/logger"
)

// RedisConfig configures the Redis snapshot store.
type RedisConfig struct {
	// Address is the Redis server address, e.g. "localhost:6379".
	Address  string
	Password string
	Database int

	// Prefix is prepended to every key.
	Prefix string

	// TTL expires snapshots; zero keeps them forever.
	TTL time.Duration

	Timeout      time.Duration
	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns defaults for address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "eldlog:snapshot:",
		TTL:          72 * time.Hour,
		Timeout:      3 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	}
}

// Option applies a configuration option to a store.
type Option func(*storeOptions)

type storeOptions struct {
	logger logger.Logger
	now    func() time.Time
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *storeOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now for SavedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(name string, opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(name)
	}
	return o
}

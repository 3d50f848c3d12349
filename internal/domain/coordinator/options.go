package coordinator

import (
	"context"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/normalize"
	"github.com/okian/eldlog/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNormalizer sets the normalizer fetched records pass through.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.normalizer = n
		}
	}
}

// WithSession binds the coordinator to a session; submissions carry its
// trip id and user-entered times are read in its location.
func WithSession(s *model.Session) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.session = s
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithOnChange registers the render trigger, called after every mutation
// with the new snapshot. It runs outside the coordinator lock.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// WithFetchHook is called with the raw records of every successful fetch.
func WithFetchHook(fn func(ctx context.Context, records []model.RawRecord)) Option {
	return func(c *Coordinator) {
		c.onFetched = fn
	}
}

// WithHistory sets how many settled operations stay queryable.
func WithHistory(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.history = n
		}
	}
}

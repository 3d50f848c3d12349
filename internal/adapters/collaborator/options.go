package collaborator

import (
	"net/http"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithSession sets the session whose location submitted times are written in.
func WithSession(s *model.Session) Option {
	return func(cl *Client) {
		if s != nil {
			cl.session = s
		}
	}
}

package request

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Option configures a Request or Loader.
type Option func(*config)

type config struct {
	baseURL    string
	client     *http.Client
	headers    map[string]string
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithBaseURL prefixes every expanded template. A trailing slash is dropped.
func WithBaseURL(base string) Option {
	return func(c *config) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithHTTPClient sets the client used to send requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithHeader adds a static header sent on every call.
func WithHeader(key, value string) Option {
	return func(c *config) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithRetry retries transport errors, 429 and 5xx responses up to maxRetries
// times with exponential backoff between baseDelay and maxDelay. Retry-After
// is honored when the server sends it. Calls are not retried by default.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *config) {
		c.maxRetries = maxRetries
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) config {
	c := config{
		baseDelay: 100 * time.Millisecond,
		maxDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 20 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.maxDelay < c.baseDelay {
		c.maxDelay = c.baseDelay
	}
	return c
}

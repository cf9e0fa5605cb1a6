package join

import (
	"log/slog"

	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/observable"
)

// Option configures a Join.
type Option func(*config)

type config struct {
	name            string
	payloadRequired bool
	logger          *slog.Logger
	metrics         metrics.Collector
}

// WithName labels the join in logs, metrics and traces.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithPayloadRequired makes a payload part of completeness.
func WithPayloadRequired() Option {
	return func(c *config) {
		c.payloadRequired = true
	}
}

// WithLogger sets the join's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the collector the join reports to.
func WithMetrics(m metrics.Collector) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	c.metrics = metrics.Or(c.metrics)
	return c
}

func (c config) dispatchOptions(source string) []observable.DispatchOption {
	return []observable.DispatchOption{
		observable.WithName(source),
		observable.WithLogger(c.logger),
		observable.WithPanicHandler(func(source string, _ any) {
			c.metrics.RecordSubscriberPanic(source)
		}),
	}
}

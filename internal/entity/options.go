package entity

import (
	"log/slog"

	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/observable"
)

// Option configures a Store.
type Option func(*config)

type config struct {
	name    string
	logger  *slog.Logger
	metrics metrics.Collector
	resolve func(entity any, field string) (any, bool)
}

// WithName labels the store in logs, metrics and traces.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger sets the store's logger. Views inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the collector the store and its views report to.
func WithMetrics(m metrics.Collector) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithFieldResolver overrides how queries read fields from T.
func WithFieldResolver[T any](resolve FieldResolver[T]) Option {
	return func(c *config) {
		c.resolve = func(entity any, field string) (any, bool) {
			return resolve(entity.(T), field)
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		logger:  slog.Default(),
		resolve: ResolveField,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	c.metrics = metrics.Or(c.metrics)
	return c
}

// dispatchOptions derives the notification settings for one named source.
func (c config) dispatchOptions(source string) []observable.DispatchOption {
	return []observable.DispatchOption{
		observable.WithName(source),
		observable.WithLogger(c.logger),
		observable.WithPanicHandler(func(source string, _ any) {
			c.metrics.RecordSubscriberPanic(source)
		}),
	}
}

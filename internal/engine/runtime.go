package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/livestore/internal/compiler"
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/ir"
	"github.com/roach88/livestore/internal/join"
	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/observable"
)

// Payload is the per-entry payload carried by catalog joins.
type Payload = map[string]any

// Runtime is a live catalog: its stores, views and joins wired together.
//
// Runtime is not safe for concurrent use. Drive it from one goroutine, or
// through an Engine.
type Runtime struct {
	catalog *ir.Catalog
	hash    string
	logger  *slog.Logger

	stores map[string]*entity.Store[entity.Record]
	views  map[string]*observable.Observable[[]entity.Record]
	joins  map[string]*join.Join[Payload]
	tracer *Tracer
}

// RuntimeOption configures Build.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	logger  *slog.Logger
	metrics metrics.Collector
	tracer  *Tracer
}

// WithLogger sets the logger handed to every store, view and join.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(c *runtimeConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the collector every store, view and join reports to.
func WithMetrics(m metrics.Collector) RuntimeOption {
	return func(c *runtimeConfig) {
		c.metrics = m
	}
}

// WithTracer subscribes t to every source as it is built. Stores are traced
// before anything else subscribes to them, so a store event is always traced
// ahead of the view and join events it causes.
func WithTracer(t *Tracer) RuntimeOption {
	return func(c *runtimeConfig) {
		c.tracer = t
	}
}

// Build validates cat and instantiates it.
func Build(cat *ir.Catalog, opts ...RuntimeOption) (*Runtime, error) {
	cfg := runtimeConfig{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.metrics = metrics.Or(cfg.metrics)

	if errs := compiler.Validate(cat); len(errs) > 0 {
		return nil, errs
	}
	hash, err := ir.CatalogHash(cat)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		catalog: cat,
		hash:    hash,
		logger:  cfg.logger,
		stores:  make(map[string]*entity.Store[entity.Record], len(cat.Stores)),
		views:   make(map[string]*observable.Observable[[]entity.Record], len(cat.Views)),
		joins:   make(map[string]*join.Join[Payload], len(cat.Joins)),
		tracer:  cfg.tracer,
	}

	for _, def := range cat.Stores {
		s := entity.NewStore[entity.Record](
			entity.WithName(def.Name),
			entity.WithLogger(cfg.logger),
			entity.WithMetrics(cfg.metrics),
		)
		rt.stores[def.Name] = s
		if rt.tracer != nil {
			rt.tracer.traceStore(def.Name, s)
		}
	}

	for _, def := range cat.Views {
		q, err := compiler.Query(def)
		if err != nil {
			rt.Close()
			return nil, err
		}
		obs, err := rt.stores[def.Store].View(q)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("view %s: %w", def.Name, err)
		}
		rt.views[def.Name] = obs
		if rt.tracer != nil {
			rt.tracer.traceView(def.Name, obs)
		}
	}

	for _, def := range cat.Joins {
		sources := make(map[string]entity.Source, len(def.Slots))
		for slot, store := range def.Slots {
			sources[slot] = rt.stores[store].Source()
		}
		jopts := []join.Option{
			join.WithName(def.Name),
			join.WithLogger(cfg.logger),
			join.WithMetrics(cfg.metrics),
		}
		if def.Payload {
			jopts = append(jopts, join.WithPayloadRequired())
		}
		j, err := join.New[Payload](sources, jopts...)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("join %s: %w", def.Name, err)
		}
		rt.joins[def.Name] = j
		if rt.tracer != nil {
			rt.tracer.traceJoin(def.Name, j)
		}
	}

	cfg.logger.Debug("runtime built",
		"catalog", hash,
		"stores", len(rt.stores),
		"views", len(rt.views),
		"joins", len(rt.joins),
	)
	return rt, nil
}

// Catalog returns the catalog the runtime was built from.
func (r *Runtime) Catalog() *ir.Catalog {
	return r.catalog
}

// Hash returns the catalog hash.
func (r *Runtime) Hash() string {
	return r.hash
}

// Tracer returns the tracer given to Build, or nil.
func (r *Runtime) Tracer() *Tracer {
	return r.tracer
}

// Store returns the named store.
func (r *Runtime) Store(name string) (*entity.Store[entity.Record], error) {
	s, ok := r.stores[name]
	if !ok {
		return nil, newUnknownError(ErrCodeUnknownStore, "store", name)
	}
	return s, nil
}

// View returns a handle onto the named view. Handles returned by repeated
// calls are the same Observable; bindings made through it live until Close.
func (r *Runtime) View(name string) (*observable.Observable[[]entity.Record], error) {
	v, ok := r.views[name]
	if !ok {
		return nil, newUnknownError(ErrCodeUnknownView, "view", name)
	}
	return v, nil
}

// Join returns the named join.
func (r *Runtime) Join(name string) (*join.Join[Payload], error) {
	j, ok := r.joins[name]
	if !ok {
		return nil, newUnknownError(ErrCodeUnknownJoin, "join", name)
	}
	return j, nil
}

// StoreNames returns the declared store names, sorted.
func (r *Runtime) StoreNames() []string {
	return slices.Sorted(maps.Keys(r.stores))
}

// ViewNames returns the declared view names, sorted.
func (r *Runtime) ViewNames() []string {
	return slices.Sorted(maps.Keys(r.views))
}

// JoinNames returns the declared join names, sorted.
func (r *Runtime) JoinNames() []string {
	return slices.Sorted(maps.Keys(r.joins))
}

// Update validates records against the store definition and upserts them.
// Nothing is applied unless every record is valid.
func (r *Runtime) Update(store string, records ...entity.Record) error {
	s, err := r.Store(store)
	if err != nil {
		return err
	}
	def, _ := r.catalog.Store(store)
	for _, rec := range records {
		if rec.ID == "" {
			return NewInvalidRecordError(store, "", fmt.Errorf("record has an empty id"))
		}
		if err := def.Validate(rec.Fields); err != nil {
			return NewInvalidRecordError(store, rec.ID, err)
		}
	}
	s.Update(records...)
	return nil
}

// Delete removes ids from the store. Unknown ids are ignored.
func (r *Runtime) Delete(store string, ids ...string) error {
	s, err := r.Store(store)
	if err != nil {
		return err
	}
	s.Delete(ids...)
	return nil
}

// Related returns a live list of the complete entries of join name whose key
// names id in slot. It follows the join until disposed.
func (r *Runtime) Related(name, slot, id string) (*observable.Filter[join.Composite[Payload]], error) {
	j, err := r.Join(name)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(j.Slots(), slot) {
		return nil, &RuntimeError{
			Code:    ErrCodeInvalidRecord,
			Message: fmt.Sprintf("join has no slot %q", slot),
			Source:  name,
		}
	}
	return observable.NewFilter(j.Observe(), func(c join.Composite[Payload]) bool {
		return c.Key[slot] == id
	}), nil
}

// Link registers or refreshes join entries.
func (r *Runtime) Link(name string, entries ...join.Entry[Payload]) error {
	j, err := r.Join(name)
	if err != nil {
		return err
	}
	if err := j.Update(entries...); err != nil {
		return &RuntimeError{Code: ErrCodeInvalidRecord, Message: "join key rejected", Source: name, Err: err}
	}
	return nil
}

// Unlink removes join entries.
func (r *Runtime) Unlink(name string, keys ...join.Key) error {
	j, err := r.Join(name)
	if err != nil {
		return err
	}
	if err := j.Remove(keys...); err != nil {
		return &RuntimeError{Code: ErrCodeInvalidRecord, Message: "join key rejected", Source: name, Err: err}
	}
	return nil
}

// Close detaches the tracer and disposes every join and view. Stores keep
// their entities.
func (r *Runtime) Close() {
	if r.tracer != nil {
		r.tracer.Close()
	}
	for _, j := range r.joins {
		j.Dispose()
	}
	for _, v := range r.views {
		v.Dispose()
	}
	for _, s := range r.stores {
		s.Close()
	}
}

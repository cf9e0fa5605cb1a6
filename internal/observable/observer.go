package observable

import (
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// Observer receives the new and previous value of a Listenable.
// On the immediate call made by Bind with trigger set, old is the zero value.
type Observer[T any] func(value, old T)

// Handle identifies one registration. Handles are unique for the life of the
// process; the zero Handle is never issued.
type Handle uint64

var lastHandle atomic.Uint64

func nextHandle() Handle {
	return Handle(lastHandle.Add(1))
}

// Listenable is the capability every reactive source exposes.
type Listenable[T any] interface {
	Value() T
	Bind(observer Observer[T], trigger bool) Handle
	Unbind(h Handle)
}

// Disposable is implemented by sources that hold upstream registrations.
type Disposable interface {
	Dispose()
}

// PanicHandler is told about every recovered subscriber panic.
type PanicHandler func(source string, recovered any)

// DispatchOption configures how a source delivers notifications.
type DispatchOption func(*dispatcher)

// WithName labels the source in logs and panic reports.
func WithName(name string) DispatchOption {
	return func(d *dispatcher) {
		d.name = name
	}
}

// WithLogger sets the logger used to report subscriber panics.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) DispatchOption {
	return func(d *dispatcher) {
		d.logger = logger
	}
}

// WithPanicHandler registers a hook invoked after a subscriber panic is logged.
func WithPanicHandler(h PanicHandler) DispatchOption {
	return func(d *dispatcher) {
		d.onPanic = h
	}
}

type dispatcher struct {
	name    string
	logger  *slog.Logger
	onPanic PanicHandler
}

func newDispatcher(opts []DispatchOption) dispatcher {
	var d dispatcher
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	return d
}

// call runs fn, containing any panic it raises.
func (d *dispatcher) call(fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger := d.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("subscriber panicked",
			"source", d.name,
			"panic", r,
			"stack", string(debug.Stack()),
		)
		if d.onPanic != nil {
			d.onPanic(d.name, r)
		}
	}()
	fn()
}

// registry is an ordered handle -> callback table.
//
// Entries removed while a notification is in flight are skipped for the rest
// of that notification.
type registry[F any] struct {
	entries []*registration[F]
}

type registration[F any] struct {
	handle  Handle
	fn      F
	removed bool
}

func (r *registry[F]) add(fn F) Handle {
	h := nextHandle()
	r.entries = append(r.entries, &registration[F]{handle: h, fn: fn})
	return h
}

func (r *registry[F]) remove(h Handle) bool {
	for i, e := range r.entries {
		if e.handle == h {
			e.removed = true
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *registry[F]) clear() {
	for _, e := range r.entries {
		e.removed = true
	}
	r.entries = nil
}

func (r *registry[F]) len() int {
	return len(r.entries)
}

// each calls visit for every live registration, iterating over a snapshot so
// that callbacks may bind or unbind freely.
func (r *registry[F]) each(visit func(F)) {
	snapshot := make([]*registration[F], len(r.entries))
	copy(snapshot, r.entries)
	for _, e := range snapshot {
		if e.removed {
			continue
		}
		visit(e.fn)
	}
}

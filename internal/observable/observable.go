package observable

// Observable is a consumer-side handle onto a Listenable. It forwards
// bindings to the underlying source and remembers them, so Dispose releases
// every binding made through it without touching bindings made by others.
//
// Stores hand out Observables for their snapshot and for memoized views: many
// Observables can share one source.
type Observable[T any] struct {
	source   Listenable[T]
	handles  map[Handle]struct{}
	disposed bool
}

// Wrap returns a new Observable over source.
func Wrap[T any](source Listenable[T]) *Observable[T] {
	return &Observable[T]{
		source:  source,
		handles: make(map[Handle]struct{}),
	}
}

// Value returns the source's current value.
func (o *Observable[T]) Value() T {
	return o.source.Value()
}

// Bind registers observer on the source. After Dispose it does nothing and
// returns the zero Handle.
func (o *Observable[T]) Bind(observer Observer[T], trigger bool) Handle {
	if o.disposed {
		return 0
	}
	h := o.source.Bind(observer, trigger)
	o.handles[h] = struct{}{}
	return h
}

// Unbind removes a registration made through this Observable.
// Handles that belong to other consumers are ignored.
func (o *Observable[T]) Unbind(h Handle) {
	if _, ok := o.handles[h]; !ok {
		return
	}
	delete(o.handles, h)
	o.source.Unbind(h)
}

// Source returns the underlying Listenable.
func (o *Observable[T]) Source() Listenable[T] {
	return o.source
}

// Dispose unbinds everything registered through this Observable.
// It is safe to call more than once.
func (o *Observable[T]) Dispose() {
	if o.disposed {
		return
	}
	o.disposed = true
	for h := range o.handles {
		o.source.Unbind(h)
	}
	clear(o.handles)
}

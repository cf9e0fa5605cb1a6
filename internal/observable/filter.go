package observable

// Filter projects a Listenable of slices through a predicate and re-emits the
// filtered slice every time the source changes.
//
// Unlike a store View, a Filter recomputes from the full source value on each
// change and always notifies; use it for small derived lists where that is
// cheap.
type Filter[T any] struct {
	source    Listenable[[]T]
	keep      func(T) bool
	value     []T
	upstream  Handle
	observers registry[Observer[[]T]]
	dispatch  dispatcher
	disposed  bool
}

// NewFilter binds to source immediately and seeds the filtered value.
func NewFilter[T any](source Listenable[[]T], keep func(T) bool, opts ...DispatchOption) *Filter[T] {
	f := &Filter[T]{
		source:   source,
		keep:     keep,
		dispatch: newDispatcher(opts),
	}
	f.upstream = source.Bind(f.onChange, true)
	return f
}

// Value returns the filtered slice.
func (f *Filter[T]) Value() []T {
	return f.value
}

// Bind registers observer; with trigger it is called once with the current value.
func (f *Filter[T]) Bind(observer Observer[[]T], trigger bool) Handle {
	h := f.observers.add(observer)
	if trigger {
		current := f.value
		f.dispatch.call(func() { observer(current, nil) })
	}
	return h
}

// Unbind removes a registration. Unknown handles are ignored.
func (f *Filter[T]) Unbind(h Handle) {
	f.observers.remove(h)
}

// Dispose detaches from the source and drops all observers.
func (f *Filter[T]) Dispose() {
	if f.disposed {
		return
	}
	f.disposed = true
	f.source.Unbind(f.upstream)
	f.observers.clear()
}

func (f *Filter[T]) onChange(elements, _ []T) {
	if f.disposed {
		return
	}
	old := f.value
	next := make([]T, 0, len(elements))
	for _, e := range elements {
		if f.keep(e) {
			next = append(next, e)
		}
	}
	f.value = next
	f.observers.each(func(o Observer[[]T]) {
		f.dispatch.call(func() { o(next, old) })
	})
}

package observable

// Value holds a current value and notifies observers when it is replaced.
// It is the settable cell behind store snapshots and join outputs.
//
// Value is not safe for concurrent use; callers serialize access.
type Value[T any] struct {
	value     T
	observers registry[Observer[T]]
	dispatch  dispatcher
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T, opts ...DispatchOption) *Value[T] {
	return &Value[T]{
		value:    initial,
		dispatch: newDispatcher(opts),
	}
}

// Value returns the current value.
func (v *Value[T]) Value() T {
	return v.value
}

// Set replaces the current value and synchronously notifies every registered
// observer with (value, old).
func (v *Value[T]) Set(value T) {
	old := v.value
	v.value = value
	v.observers.each(func(o Observer[T]) {
		v.dispatch.call(func() { o(value, old) })
	})
}

// Swap replaces the current value without notifying anyone and returns the
// previous value. Owners use it to refresh a value whose observable content is
// unchanged.
func (v *Value[T]) Swap(value T) T {
	old := v.value
	v.value = value
	return old
}

// Bind registers observer. When trigger is true the observer is called once,
// immediately, with the current value.
func (v *Value[T]) Bind(observer Observer[T], trigger bool) Handle {
	h := v.observers.add(observer)
	if trigger {
		var zero T
		current := v.value
		v.dispatch.call(func() { observer(current, zero) })
	}
	return h
}

// Unbind removes a registration. Unknown handles are ignored.
func (v *Value[T]) Unbind(h Handle) {
	v.observers.remove(h)
}

// Clear removes every observer.
func (v *Value[T]) Clear() {
	v.observers.clear()
}

// Observers reports how many observers are registered.
func (v *Value[T]) Observers() int {
	return v.observers.len()
}

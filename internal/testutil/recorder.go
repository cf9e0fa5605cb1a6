package testutil

import "sync"

// Call is one observed (value, old) notification.
type Call[T any] struct {
	Value T
	Old   T
}

// Recorder captures observer notifications for assertions.
//
//	rec := &testutil.Recorder[[]User]{}
//	view.Bind(rec.Observe, false)
//	store.Update(u)
//	require.Equal(t, 1, rec.Count())
type Recorder[T any] struct {
	mu    sync.Mutex
	calls []Call[T]
}

// Observe records a call. Its signature matches observable.Observer.
func (r *Recorder[T]) Observe(value, old T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call[T]{Value: value, Old: old})
}

// Calls returns a copy of all recorded calls, oldest first.
func (r *Recorder[T]) Calls() []Call[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call[T], len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns the number of recorded calls.
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Last returns the most recent call.
func (r *Recorder[T]) Last() (Call[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Call[T]{}, false
	}
	return r.calls[len(r.calls)-1], true
}

// Reset forgets all recorded calls.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Events captures payloads delivered on an event channel.
type Events[E any] struct {
	mu       sync.Mutex
	payloads []E
}

// Handle records a payload. Its signature matches a channel handler.
func (e *Events[E]) Handle(payload E) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, payload)
}

// All returns a copy of every payload, oldest first.
func (e *Events[E]) All() []E {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]E, len(e.payloads))
	copy(out, e.payloads)
	return out
}

// Count returns the number of payloads received.
func (e *Events[E]) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.payloads)
}

// Last returns the most recent payload.
func (e *Events[E]) Last() (E, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.payloads) == 0 {
		var zero E
		return zero, false
	}
	return e.payloads[len(e.payloads)-1], true
}

// Reset forgets all payloads.
func (e *Events[E]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = nil
}

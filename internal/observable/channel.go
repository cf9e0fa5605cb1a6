package observable

// Channel is one named event stream carrying payloads of type E.
// Components expose one Channel per event kind (created, updated, deleted),
// which keeps handler signatures typed per kind.
type Channel[E any] struct {
	handlers registry[func(E)]
	dispatch dispatcher
}

// NewChannel creates an empty Channel.
func NewChannel[E any](opts ...DispatchOption) *Channel[E] {
	return &Channel[E]{dispatch: newDispatcher(opts)}
}

// On registers handler and returns its Handle.
func (c *Channel[E]) On(handler func(E)) Handle {
	return c.handlers.add(handler)
}

// Off removes a registration and reports whether it belonged to this Channel.
func (c *Channel[E]) Off(h Handle) bool {
	return c.handlers.remove(h)
}

// Emit delivers payload to every handler, in registration order.
func (c *Channel[E]) Emit(payload E) {
	c.handlers.each(func(fn func(E)) {
		c.dispatch.call(func() { fn(payload) })
	})
}

// Len reports the number of registered handlers.
func (c *Channel[E]) Len() int {
	return c.handlers.len()
}

// Clear removes every handler.
func (c *Channel[E]) Clear() {
	c.handlers.clear()
}

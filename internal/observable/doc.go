// Package observable implements the subscription primitives the rest of
// livestore is built on.
//
// A Listenable is anything with a current value that can be bound to. Value
// is the basic settable cell, Observable wraps a Listenable and remembers the
// bindings it made so they can be released together, Filter projects a
// Listenable of slices through a predicate, and Channel is a single named
// event stream.
//
// Registration always hands back a Handle and deregistration takes that
// Handle; callback identity is never compared.
//
// Delivery is synchronous and in registration order. A subscriber that
// panics is recovered, logged, and reported to the configured PanicHandler;
// the remaining subscribers still run.
package observable

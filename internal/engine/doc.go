// Package engine hosts a compiled catalog and serializes access to it.
//
// Build turns an ir.Catalog into a Runtime: one entity store per declared
// store, memoized views over them and joins across them. The reactive core
// is synchronous and single-threaded, so every mutation must happen on one
// goroutine.
//
// Single-Writer Command Loop:
// Engine wraps a Runtime with a FIFO command queue. Callers on any goroutine
// Enqueue or Submit commands; Run applies them one at a time. Notifications
// fire on the Run goroutine, inside the command that caused them.
//
// Tracing:
// A Tracer subscribes to every store, view and join of a Runtime and stamps
// each notification with a logical sequence number from Clock. Traces are
// deterministic: the same commands against the same catalog produce the same
// events in the same order.
package engine

package engine

import (
	"context"
	"log/slog"
)

// DefaultMaxPending bounds the command queue so a flood of HTTP requests
// cannot grow it without limit.
const DefaultMaxPending = 10000

// Engine is the single-writer command loop around a Runtime.
//
// CRITICAL: All mutations happen in the goroutine that calls Run (or, when no
// loop is running, the goroutine that calls Apply). External callers use
// Enqueue or Submit.
//
// Thread-safety model:
//   - Enqueue(), Submit(), Stop(), QueueLen(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Apply(): only from the writer goroutine
type Engine struct {
	runtime    *Runtime
	queue      *commandQueue
	maxPending int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxPending sets how many commands may wait in the queue. Zero means
// unbounded.
func WithMaxPending(n int) EngineOption {
	return func(e *Engine) {
		e.maxPending = n
	}
}

// New creates an Engine around rt.
func New(rt *Runtime, opts ...EngineOption) *Engine {
	e := &Engine{
		runtime:    rt,
		maxPending: DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = newCommandQueue(e.maxPending)
	return e
}

// Runtime returns the wrapped runtime. Touch it only from the writer
// goroutine.
func (e *Engine) Runtime() *Runtime {
	return e.runtime
}

// Enqueue submits cmd without waiting for its result. Failures are logged by
// the Run loop.
//
// Returns false if the engine has been stopped or the queue is full.
func (e *Engine) Enqueue(cmd Command) bool {
	return e.queue.Enqueue(pending{cmd: cmd}) == nil
}

// Submit enqueues cmd and waits until the Run loop has applied it, returning
// the command's error. If ctx ends first Submit returns ctx.Err(); the
// command may still be applied later.
func (e *Engine) Submit(ctx context.Context, cmd Command) error {
	done := make(chan error, 1)
	if err := e.queue.Enqueue(pending{cmd: cmd, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply runs cmd immediately on the calling goroutine.
func (e *Engine) Apply(cmd Command) error {
	err := cmd.Apply(e.runtime)
	if err != nil {
		slog.Debug("command failed", "command", commandName(cmd), "error", err)
	}
	return err
}

// QueueLen returns the number of commands waiting.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer command loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// ERROR HANDLING: a failed command is reported to its submitter and logged;
// the loop continues with the next command.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "catalog", e.runtime.Hash())

	for {
		if p, ok := e.queue.TryDequeue(); ok {
			e.process(p)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.fail(e.queue.Drain())
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which makes
			// this case fire immediately.
			if e.queue.Len() == 0 && e.stopped() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run applies what is already queued, then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

func (e *Engine) process(p pending) {
	err := p.cmd.Apply(e.runtime)
	if err != nil {
		// Log with the command for manual investigation
		slog.Warn("command failed", "command", commandName(p.cmd), "error", err)
	}
	if p.done != nil {
		p.done <- err
	}
}

func (e *Engine) fail(ps []pending) {
	for _, p := range ps {
		if p.done != nil {
			p.done <- errStopped
		}
	}
}

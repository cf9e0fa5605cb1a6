package engine

import "sync"

// pending is one queued command and, for Submit, where to report its result.
type pending struct {
	cmd  Command
	done chan error // buffered, size 1; nil for fire-and-forget commands
}

// commandQueue is a thread-safe FIFO queue for commands.
//
// Thread-safety is provided for external enqueuing (e.g., HTTP handlers)
// while the Engine's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type commandQueue struct {
	mu       sync.Mutex
	items    []pending
	closed   bool
	capacity int           // 0 means unbounded
	signal   chan struct{} // Signals item availability (buffered, size 1)
}

func newCommandQueue(capacity int) *commandQueue {
	return &commandQueue{
		items:    make([]pending, 0, 64),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Returns errStopped if the queue is closed, or a QUEUE_FULL error if it is
// at capacity.
func (q *commandQueue) Enqueue(p pending) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errStopped
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return &RuntimeError{Code: ErrCodeQueueFull, Message: "command queue is full"}
	}

	q.items = append(q.items, p)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// TryDequeue attempts to dequeue without blocking.
// Returns (pending{}, false) if the queue is empty.
func (q *commandQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pending{}, false
	}

	p := q.items[0]

	// Nil out the slot so the backing array does not pin the command.
	q.items[0] = pending{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

// Wait returns a channel that signals when items may be available. The
// channel is closed by Close.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more items will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Drain removes and returns everything still queued.
func (q *commandQueue) Drain() []pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

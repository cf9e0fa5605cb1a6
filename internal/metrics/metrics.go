// Package metrics defines the Collector that stores, views and joins report
// to, with no-op, in-memory and Prometheus implementations.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Mutation operations reported by RecordMutation.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpJoin   = "join"
	OpUnjoin = "unjoin"
)

// Collector receives operational metrics from livestore components.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordMutation is called once per applied batch. count is the number of
	// entities (or join entries) the batch touched.
	RecordMutation(source, op string, count int)

	// RecordEmission is called every time a component notifies subscribers.
	// size is the number of ids (or elements) in the payload.
	RecordEmission(source, channel string, size int)

	// RecordViewSize is called after a view's membership changes.
	RecordViewSize(view string, size int)

	// RecordJoinState is called after a join's entry states change.
	RecordJoinState(join string, complete, partial int)

	// RecordSubscriberPanic is called for every recovered subscriber panic.
	RecordSubscriberPanic(source string)
}

// Or returns c, or Noop when c is nil.
func Or(c Collector) Collector {
	if c == nil {
		return Noop{}
	}
	return c
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordMutation(string, string, int) {}
func (Noop) RecordEmission(string, string, int) {}
func (Noop) RecordViewSize(string, int)         {}
func (Noop) RecordJoinState(string, int, int)   {}
func (Noop) RecordSubscriberPanic(string)       {}

// Basic keeps simple in-memory totals. Useful in tests and for the CLI's
// summary output.
type Basic struct {
	Mutations       atomic.Int64
	MutatedEntities atomic.Int64
	Emissions       atomic.Int64
	Panics          atomic.Int64

	mu        sync.Mutex
	viewSizes map[string]int
	joins     map[string]JoinState
}

// JoinState is the last reported entry breakdown of one join.
type JoinState struct {
	Complete int
	Partial  int
}

// RecordMutation implements Collector.
func (b *Basic) RecordMutation(_, _ string, count int) {
	b.Mutations.Add(1)
	b.MutatedEntities.Add(int64(count))
}

// RecordEmission implements Collector.
func (b *Basic) RecordEmission(string, string, int) {
	b.Emissions.Add(1)
}

// RecordViewSize implements Collector.
func (b *Basic) RecordViewSize(view string, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.viewSizes == nil {
		b.viewSizes = make(map[string]int)
	}
	b.viewSizes[view] = size
}

// RecordJoinState implements Collector.
func (b *Basic) RecordJoinState(join string, complete, partial int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.joins == nil {
		b.joins = make(map[string]JoinState)
	}
	b.joins[join] = JoinState{Complete: complete, Partial: partial}
}

// RecordSubscriberPanic implements Collector.
func (b *Basic) RecordSubscriberPanic(string) {
	b.Panics.Add(1)
}

// ViewSize returns the last reported size of view.
func (b *Basic) ViewSize(view string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.viewSizes[view]
	return n, ok
}

// Join returns the last reported state of join.
func (b *Basic) Join(join string) (JoinState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.joins[join]
	return s, ok
}

// Stats is a point-in-time copy of the Basic counters.
type Stats struct {
	Mutations       int64 `json:"mutations"`
	MutatedEntities int64 `json:"mutated_entities"`
	Emissions       int64 `json:"emissions"`
	Panics          int64 `json:"panics"`
}

// Stats returns a snapshot of the counters.
func (b *Basic) Stats() Stats {
	return Stats{
		Mutations:       b.Mutations.Load(),
		MutatedEntities: b.MutatedEntities.Load(),
		Emissions:       b.Emissions.Load(),
		Panics:          b.Panics.Load(),
	}
}

// Multi fans every call out to each collector in order.
type Multi []Collector

func (m Multi) RecordMutation(source, op string, count int) {
	for _, c := range m {
		c.RecordMutation(source, op, count)
	}
}

func (m Multi) RecordEmission(source, channel string, size int) {
	for _, c := range m {
		c.RecordEmission(source, channel, size)
	}
}

func (m Multi) RecordViewSize(view string, size int) {
	for _, c := range m {
		c.RecordViewSize(view, size)
	}
}

func (m Multi) RecordJoinState(join string, complete, partial int) {
	for _, c := range m {
		c.RecordJoinState(join, complete, partial)
	}
}

func (m Multi) RecordSubscriberPanic(source string) {
	for _, c := range m {
		c.RecordSubscriberPanic(source)
	}
}

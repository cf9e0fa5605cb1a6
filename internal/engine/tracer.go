package engine

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/join"
	"github.com/roach88/livestore/internal/observable"
)

// Source kinds in a trace.
const (
	KindStore = "store"
	KindView  = "view"
	KindJoin  = "join"
)

// TraceEvent is one notification observed by a Tracer.
type TraceEvent struct {
	Seq     int64    `json:"seq"`
	Source  string   `json:"source"`
	Kind    string   `json:"kind"`
	Channel string   `json:"channel"`
	IDs     []string `json:"ids"`
}

// Sink receives trace events in seq order.
type Sink interface {
	Record(ev TraceEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev TraceEvent) error

func (f SinkFunc) Record(ev TraceEvent) error {
	return f(ev)
}

// MemorySink keeps every event in memory. It is safe to read from other
// goroutines while the writer records.
type MemorySink struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (m *MemorySink) Record(ev TraceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Tracer turns store, view and join notifications into TraceEvents.
type Tracer struct {
	clock  SeqSource
	sinks  []Sink
	logger *slog.Logger
	detach []func()
}

// SeqSource hands out strictly increasing sequence numbers. *Clock is the
// production implementation.
type SeqSource interface {
	Next() int64
	Current() int64
}

// NewTracer creates a Tracer stamping events from clock. A nil clock starts
// at zero.
func NewTracer(clock SeqSource, sinks ...Sink) *Tracer {
	if clock == nil {
		clock = NewClock()
	}
	return &Tracer{clock: clock, sinks: sinks, logger: slog.Default()}
}

// AddSink registers another sink. Events already traced are not replayed.
func (t *Tracer) AddSink(s Sink) {
	t.sinks = append(t.sinks, s)
}

// Clock returns the tracer's sequence source.
func (t *Tracer) Clock() SeqSource {
	return t.clock
}

func (t *Tracer) emit(kind, source, channel string, ids []string) {
	ev := TraceEvent{
		Seq:     t.clock.Next(),
		Source:  source,
		Kind:    kind,
		Channel: channel,
		IDs:     ids,
	}
	for _, s := range t.sinks {
		if err := s.Record(ev); err != nil {
			t.logger.Warn("trace sink failed",
				"seq", ev.Seq,
				"source", source,
				"channel", channel,
				"error", err,
			)
		}
	}
}

func (t *Tracer) traceStore(name string, s *entity.Store[entity.Record]) {
	handles := []observable.Handle{
		s.OnCreated(func(rs []entity.Record) { t.emit(KindStore, name, entity.Created, recordIDs(rs)) }),
		s.OnUpdated(func(rs []entity.Record) { t.emit(KindStore, name, entity.Updated, recordIDs(rs)) }),
		s.OnDeleted(func(ids []string) { t.emit(KindStore, name, entity.Deleted, slices.Clone(ids)) }),
	}
	t.detach = append(t.detach, func() {
		for _, h := range handles {
			s.Off(h)
		}
	})
}

func (t *Tracer) traceView(name string, v *observable.Observable[[]entity.Record]) {
	h := v.Bind(func(rs, _ []entity.Record) {
		t.emit(KindView, name, entity.Changed, recordIDs(rs))
	}, false)
	t.detach = append(t.detach, func() { v.Unbind(h) })
}

func (t *Tracer) traceJoin(name string, j *join.Join[Payload]) {
	handles := []observable.Handle{
		j.OnCreated(func(cs []join.Composite[Payload]) { t.emit(KindJoin, name, entity.Created, compositeIDs(cs)) }),
		j.OnUpdated(func(cs []join.Composite[Payload]) { t.emit(KindJoin, name, entity.Updated, compositeIDs(cs)) }),
		j.OnDeleted(func(ids []string) { t.emit(KindJoin, name, entity.Deleted, slices.Clone(ids)) }),
	}
	t.detach = append(t.detach, func() {
		for _, h := range handles {
			j.Off(h)
		}
	})
}

// Close unsubscribes from every traced source.
func (t *Tracer) Close() {
	for _, fn := range t.detach {
		fn()
	}
	t.detach = nil
}

func recordIDs(rs []entity.Record) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func compositeIDs(cs []join.Composite[Payload]) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/roach88/livestore/internal/compiler"
	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/ir"
	"github.com/roach88/livestore/internal/join"
	"github.com/roach88/livestore/internal/testutil"
)

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	sinks  []engine.Sink
	logger *slog.Logger
}

// WithSink forwards every trace event to s as well, e.g. a trace log.
func WithSink(s engine.Sink) RunOption {
	return func(c *runConfig) {
		c.sinks = append(c.sinks, s)
	}
}

// WithLogger sets the logger the runtime reports to. Runs are silent by
// default.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// Harness applies one scenario to a fresh runtime.
type Harness struct {
	runtime *engine.Runtime
	trace   *engine.MemorySink
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
}

// LoadCatalog compiles the scenario's catalog.
func LoadCatalog(s *Scenario) (*ir.Catalog, error) {
	if s.CatalogSource != "" {
		return compiler.LoadString(s.CatalogSource, s.Name+".cue")
	}
	return compiler.Load(s.Catalog)
}

// Run executes a scenario on a fresh runtime and evaluates its assertions.
//
// Sequence numbers start at 1 for every run, so the same scenario always
// produces the same trace. An error is returned only when the scenario
// cannot be executed at all; failed expectations are reported in the Result.
func Run(s *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	cat, err := LoadCatalog(s)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	clock := testutil.NewDeterministicClock()
	trace := &engine.MemorySink{}
	tracer := engine.NewTracer(clock, append([]engine.Sink{trace}, cfg.sinks...)...)
	rt, err := engine.Build(cat, engine.WithTracer(tracer), engine.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime: %w", err)
	}
	defer rt.Close()

	h := &Harness{runtime: rt, trace: trace, clock: clock, logger: cfg.logger}
	result := NewResult()
	result.CatalogHash = rt.Hash()

	completed := h.executeSteps(s.Steps, result)

	result.Trace = trace.Events()
	result.State = h.snapshot()

	if !completed {
		return result, nil
	}
	actx := &AssertionContext{Runtime: rt}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSteps applies steps in order. It stops at the first step whose
// outcome contradicts its expectation and reports false.
func (h *Harness) executeSteps(steps []Step, result *Result) bool {
	for i, step := range steps {
		before := h.clock.Current()
		err := h.apply(step)
		h.logger.Debug("scenario step applied",
			"step", i,
			"op", step.Op(),
			"events", h.clock.Current()-before,
			"error", err,
		)

		if msg := checkStepOutcome(step, err); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op(), msg))
			return false
		}
	}
	return true
}

func checkStepOutcome(step Step, err error) string {
	if step.ExpectError == "" {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}
	if err == nil {
		return fmt.Sprintf("expected error %s, got success", step.ExpectError)
	}
	var re *engine.RuntimeError
	if !errors.As(err, &re) {
		return fmt.Sprintf("expected error %s, got %v", step.ExpectError, err)
	}
	if string(re.Code) != step.ExpectError {
		return fmt.Sprintf("expected error %s, got %s: %v", step.ExpectError, re.Code, err)
	}
	return ""
}

func (h *Harness) apply(step Step) error {
	switch step.Op() {
	case OpUpdate:
		records := make([]entity.Record, 0, len(step.Update.Records))
		for j, raw := range step.Update.Records {
			rec, err := toRecord(raw)
			if err != nil {
				return engine.NewInvalidRecordError(step.Update.Store, fmt.Sprintf("records[%d]", j), err)
			}
			records = append(records, rec)
		}
		return h.runtime.Update(step.Update.Store, records...)
	case OpDelete:
		return h.runtime.Delete(step.Delete.Store, step.Delete.IDs...)
	case OpJoin:
		entries := make([]join.Entry[engine.Payload], len(step.Join.Entries))
		for j, e := range step.Join.Entries {
			entries[j] = join.Entry[engine.Payload]{Key: join.Key(e.Key)}
			if e.Payload != nil {
				p := engine.Payload(normalizeMap(e.Payload))
				entries[j].Payload = &p
			}
		}
		return h.runtime.Link(step.Join.Join, entries...)
	case OpUnjoin:
		keys := make([]join.Key, len(step.Unjoin.Keys))
		for j, k := range step.Unjoin.Keys {
			keys[j] = join.Key(k)
		}
		return h.runtime.Unlink(step.Unjoin.Join, keys...)
	}
	return fmt.Errorf("step has no operation")
}

// snapshot captures every store's records as flat maps.
func (h *Harness) snapshot() map[string][]map[string]any {
	out := make(map[string][]map[string]any)
	for _, name := range h.runtime.StoreNames() {
		s, err := h.runtime.Store(name)
		if err != nil {
			continue
		}
		rows := make([]map[string]any, 0, s.Len())
		for _, r := range s.Snapshot() {
			row := maps.Clone(r.Fields)
			if row == nil {
				row = make(map[string]any, 1)
			}
			row["id"] = r.ID
			rows = append(rows, row)
		}
		out[name] = rows
	}
	return out
}

func toRecord(raw map[string]any) (entity.Record, error) {
	return entity.RecordFromMap(normalizeMap(raw))
}

// normalizeMap narrows YAML-decoded numbers: ints become int64 and integral
// floats become int64 as well.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		return normalizeMap(n)
	}
	return v
}

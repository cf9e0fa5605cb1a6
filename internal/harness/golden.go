package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/livestore/internal/canon"
	"github.com/roach88/livestore/internal/engine"
)

// TraceSnapshot is the golden form of a run: the scenario name and its trace.
type TraceSnapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Trace        []engine.TraceEvent `json:"trace"`
}

// events converts the trace to plain values for canon.Marshal.
func (s *TraceSnapshot) events() []any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		ids := make([]any, len(ev.IDs))
		for j, id := range ev.IDs {
			ids[j] = id
		}
		trace[i] = map[string]any{
			"seq":     ev.Seq,
			"source":  ev.Source,
			"kind":    ev.Kind,
			"channel": ev.Channel,
			"ids":     ids,
		}
	}
	return trace
}

// Marshal renders the snapshot as canonical JSON, one event per line, with a
// trailing newline.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	head, err := canon.Marshal(map[string]any{"scenario_name": s.ScenarioName})
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), head...)
	out = append(out, '\n')
	for _, ev := range s.events() {
		line, err := canon.Marshal(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/<name>.golden. Failed assertions fail t as well.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%v", scenario.Name, result.Errors)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace with the golden file for
// scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

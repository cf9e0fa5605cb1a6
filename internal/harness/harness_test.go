package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livestore/internal/engine"
)

const inlineCatalog = `
store: user: fields: {name: string, age: int}
view: adults: {store: "user", where: age: expr: "value >= 18"}
join: friendship: slots: {user: "user", friend: "user"}
`

func count(n int) *int {
	return &n
}

func inlineScenario(steps []Step, assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:          "inline",
		Description:   "inline scenario",
		CatalogSource: inlineCatalog,
		Steps:         steps,
		Assertions:    assertions,
	}
}

func updateUsers(records ...map[string]any) Step {
	return Step{Update: &UpdateStep{Store: "user", Records: records}}
}

func TestRun_MinimalScenario(t *testing.T) {
	s := inlineScenario(
		[]Step{updateUsers(map[string]any{"id": "1", "name": "ann", "age": 30})},
		Assertion{Type: AssertEventCount, Source: "user", Channel: "created", Count: count(1)},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.CatalogHash)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, engine.TraceEvent{Seq: 1, Source: "user", Kind: engine.KindStore, Channel: "created", IDs: []string{"1"}}, result.Trace[0])
	assert.Equal(t, engine.TraceEvent{Seq: 2, Source: "user", Kind: engine.KindStore, Channel: "updated", IDs: []string{"1"}}, result.Trace[1])
	assert.Equal(t, engine.TraceEvent{Seq: 3, Source: "adults", Kind: engine.KindView, Channel: "changed", IDs: []string{"1"}}, result.Trace[2])
}

func TestRun_NormalizesYAMLNumbers(t *testing.T) {
	s := inlineScenario(
		[]Step{updateUsers(map[string]any{"id": 7, "name": "bob", "age": 40.0})},
		Assertion{Type: AssertStoreRecord, Store: "user", ID: "7", Expect: map[string]any{"age": 40}},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []map[string]any{{"id": "7", "name": "bob", "age": int64(40)}}, result.State["user"])
}

func TestRun_FailingAssertionIsReported(t *testing.T) {
	s := inlineScenario(
		[]Step{updateUsers(map[string]any{"id": "1", "name": "kid", "age": 9})},
		Assertion{Type: AssertViewValue, View: "adults", IDs: []string{"1"}},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "view_value")
}

func TestRun_ExpectedError(t *testing.T) {
	s := inlineScenario(
		[]Step{{
			Update:      &UpdateStep{Store: "user", Records: []map[string]any{{"id": "1", "age": "old"}}},
			ExpectError: string(engine.ErrCodeInvalidRecord),
		}},
		Assertion{Type: AssertEventCount, Source: "user", Count: count(0)},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_UnexpectedErrorStopsSteps(t *testing.T) {
	s := inlineScenario(
		[]Step{
			{Delete: &DeleteStep{Store: "ghost", IDs: []string{"1"}}},
			updateUsers(map[string]any{"id": "1", "name": "ann"}),
		},
		Assertion{Type: AssertEventCount, Source: "user", Count: count(0)},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] (delete)")
	assert.Contains(t, result.Errors[0], "UNKNOWN_STORE")
	assert.Empty(t, result.Trace, "later steps are not applied")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := inlineScenario(
		[]Step{{
			Update:      &UpdateStep{Store: "user", Records: []map[string]any{{"id": "1", "name": "ann"}}},
			ExpectError: string(engine.ErrCodeInvalidRecord),
		}},
		Assertion{Type: AssertEventCount, Source: "user", Count: count(2)},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got success")
}

func TestRun_JoinAndUnjoin(t *testing.T) {
	key := map[string]string{"user": "1", "friend": "2"}
	s := inlineScenario(
		[]Step{
			updateUsers(
				map[string]any{"id": "1", "name": "a"},
				map[string]any{"id": "2", "name": "b"},
			),
			{Join: &JoinStep{Join: "friendship", Entries: []JoinEntry{{Key: key}}}},
			{Unjoin: &UnjoinStep{Join: "friendship", Keys: []map[string]string{key}}},
		},
		Assertion{Type: AssertEventOrder, Events: []string{"friendship.created", "friendship.deleted"}},
		Assertion{Type: AssertJoinComplete, Join: "friendship", Count: count(0)},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WithSink(t *testing.T) {
	sink := &engine.MemorySink{}
	s := inlineScenario(
		[]Step{updateUsers(map[string]any{"id": "1", "name": "ann"})},
		Assertion{Type: AssertEventCount, Source: "user", Count: count(2)},
	)

	result, err := Run(s, WithSink(sink))
	require.NoError(t, err)
	assert.Equal(t, result.Trace, sink.Events())
}

func TestRun_BadCatalog(t *testing.T) {
	s := inlineScenario(
		[]Step{updateUsers(map[string]any{"id": "1"})},
		Assertion{Type: AssertEventCount, Source: "user", Count: count(0)},
	)
	s.CatalogSource = `view: v: {store: "ghost"}`

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(3), normalizeValue(3))
	assert.Equal(t, int64(3), normalizeValue(3.0))
	assert.Equal(t, 2.5, normalizeValue(2.5))
	assert.Equal(t, []any{int64(1), "x"}, normalizeValue([]any{1, "x"}))
	assert.Equal(t, map[string]any{"n": int64(1)}, normalizeValue(map[string]any{"n": 1}))
}

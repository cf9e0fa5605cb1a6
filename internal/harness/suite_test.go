package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "authored_payload.yaml"),
		filepath.Join("testdata", "scenarios", "friend_join.yaml"),
		filepath.Join("testdata", "scenarios", "view_roundtrip.yaml"),
	}, paths)

	single, err := FindScenarios("testdata/scenarios/friend_join.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"testdata/scenarios/friend_join.yaml"}, single)
}

func TestFindScenarios_SkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yml", "x")
	writeScenario(t, dir, "a.YAML", "x")
	writeScenario(t, dir, "notes.txt", "x")

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.YAML"), filepath.Join(dir, "b.yml")}, paths)
}

func TestFindScenarios_Missing(t *testing.T) {
	_, err := FindScenarios("testdata/nope")
	require.Error(t, err)
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "testdata/nope", nf.Path)
}

func TestRunSuite_Demo(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)

	result, err := RunSuite(context.Background(), paths)
	require.NoError(t, err)
	assert.True(t, result.OK(), "failures: %v", result.Failures)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	require.Len(t, result.Results, 3)
	assert.Equal(t, "authored_payload", result.Results[0].Name)
	assert.Equal(t, 12, result.Results[0].Events)
}

func TestRunSuite_RecordsFailures(t *testing.T) {
	dir := t.TempDir()
	broken := writeScenario(t, dir, "broken.yaml", "name: [")
	failing := writeScenario(t, dir, "failing.yaml", `
name: failing
description: "expects an event that never happens"
catalog_source: "store: user: fields: {}"
steps:
  - delete: {store: user, ids: ["1"]}
assertions:
  - {type: event_count, source: user, count: 1}
`)

	result, err := RunSuite(context.Background(), []string{broken, failing})
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Error, "failed to load scenario")
	assert.Equal(t, "failing", result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Error, "scenario assertions failed")
}

func TestRunSuite_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunSuite(ctx, []string{"testdata/scenarios/friend_join.yaml"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Total)
}

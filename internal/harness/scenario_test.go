package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
name: minimal
description: "one update"
catalog_source: |
  store: user: fields: name: string
steps:
  - update:
      store: user
      records:
        - {id: "1", name: ann}
assertions:
  - {type: event_count, source: user, count: 2}
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Contains(t, s.CatalogSource, "store: user")
	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpUpdate, s.Steps[0].Op())
	assert.Equal(t, "user", s.Steps[0].Update.Store)
	assert.Equal(t, map[string]any{"id": "1", "name": "ann"}, s.Steps[0].Update.Records[0])
	require.Len(t, s.Assertions, 1)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 2, *s.Assertions[0].Count)
}

func TestParseScenario_AllStepKinds(t *testing.T) {
	src := `
name: kinds
description: "every step kind"
catalog_source: "store: user: fields: {}"
steps:
  - delete: {store: user, ids: ["1", "2"]}
  - join:
      join: friendship
      entries:
        - key: {user: "1", friend: "2"}
          payload: {since: 2020}
  - unjoin: {join: friendship, keys: [{user: "1", friend: "2"}]}
assertions:
  - {type: join_complete, join: friendship, count: 0}
`
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, s.Steps[0].Delete.IDs)
	assert.Equal(t, map[string]string{"user": "1", "friend": "2"}, s.Steps[1].Join.Entries[0].Key)
	assert.Equal(t, map[string]any{"since": 2020}, s.Steps[1].Join.Entries[0].Payload)
	assert.Equal(t, OpUnjoin, s.Steps[2].Op())
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	src := strings.Replace(minimalYAML, "assertions:", "assertion:", 1)
	_, err := ParseScenario([]byte(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{"no name", [2]string{"name: minimal", ""}, "name is required"},
		{"no description", [2]string{`description: "one update"`, ""}, "description is required"},
		{"both catalogs", [2]string{"steps:", "catalog: x.cue\nsteps:"}, "mutually exclusive"},
		{"no step op", [2]string{"  - update:\n      store: user\n      records:\n        - {id: \"1\", name: ann}", "  - {}"}, "exactly one of"},
		{"record without id", [2]string{`{id: "1", name: ann}`, `{name: ann}`}, "id is required"},
		{"unknown assertion", [2]string{"type: event_count", "type: nope"}, "unknown assertion type"},
		{"count missing", [2]string{", count: 2", ""}, "non-negative count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := strings.Replace(minimalYAML, tt.replace[0], tt.replace[1], 1)
			_, err := ParseScenario([]byte(src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStep_OpRequiresExactlyOne(t *testing.T) {
	assert.Equal(t, "", Step{}.Op())
	assert.Equal(t, "", Step{Update: &UpdateStep{}, Delete: &DeleteStep{}}.Op())
	assert.Equal(t, OpDelete, Step{Delete: &DeleteStep{}}.Op())
	assert.Equal(t, OpJoin, Step{Join: &JoinStep{}}.Op())
}

func TestLoadScenario_ResolvesCatalogRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte("store: user: fields: {}\n"), 0o644))
	path := writeScenario(t, dir, "s.yaml", `
name: rel
description: "relative catalog"
catalog: catalog.cue
steps:
  - delete: {store: user, ids: ["1"]}
assertions:
  - {type: event_count, source: user, count: 0}
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalog.cue"), s.Catalog)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestLoadScenario_MissingCatalog(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "s.yaml", strings.Replace(minimalYAML,
		"catalog_source: |\n  store: user: fields: name: string", "catalog: nowhere.cue", 1))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

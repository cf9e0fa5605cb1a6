package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
store: user: fields: {
	name: string
	age:  int
}
store: post: fields: title: string

view: adults: {
	store: "user"
	where: age: expr: "value >= 18"
}
view: kids: {
	store: "user"
	where: age: expr: "value < 18"
}

join: authored: {
	slots: {author: "user", post: "post"}
	payload: true
}
`

const passingScenario = `name: adults_view
description: "Adults enter the adults view"
catalog: ../catalog.cue
steps:
  - update:
      store: user
      records:
        - {id: "1", name: ann, age: 30}
        - {id: "2", name: kid, age: 9}
assertions:
  - {type: view_value, view: adults, ids: ["1"]}
  - {type: view_value, view: kids, ids: ["2"]}
  - {type: store_record, store: user, id: "2", expect: {name: kid}}
`

const failingScenario = `name: wrong_view
description: "Expects the child among the adults"
catalog: ../catalog.cue
steps:
  - update:
      store: user
      records:
        - {id: "2", name: kid, age: 9}
assertions:
  - {type: view_value, view: adults, ids: ["2"]}
`

// writeFile writes content under dir, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeFixture lays out catalog.cue and a scenarios directory holding the
// given scenario files.
func writeFixture(t *testing.T, scenarios map[string]string) (catalog, scenarioDir string) {
	t.Helper()
	dir := t.TempDir()
	catalog = writeFile(t, dir, "catalog.cue", testCatalog)
	scenarioDir = filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarioDir, 0o755))
	for name, content := range scenarios {
		writeFile(t, scenarioDir, name, content)
	}
	return catalog, scenarioDir
}

// execute runs cmd with args and returns everything written to stdout.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// bareCommand is a command carrying only output streams, for calling the
// run functions directly with options the flags do not expose.
func bareCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd
}

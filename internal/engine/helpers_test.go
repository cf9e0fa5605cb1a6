package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livestore/internal/compiler"
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/ir"
)

const testCatalog = `
store: user: fields: {name: string, age: int}
store: post: fields: title: string

view: adults: {store: "user", where: age: expr: "value >= 18"}

join: friendship: slots: {user: "user", friend: "user"}
join: authored: {
	slots: {author: "user", post: "post"}
	payload: true
}
`

func loadCatalog(t *testing.T) *ir.Catalog {
	t.Helper()
	cat, err := compiler.LoadString(testCatalog, "test.cue")
	require.NoError(t, err)
	return cat
}

func buildRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	rt, err := Build(loadCatalog(t), opts...)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func user(id, name string, age int64) entity.Record {
	return entity.NewRecord(id, map[string]any{"name": name, "age": age})
}

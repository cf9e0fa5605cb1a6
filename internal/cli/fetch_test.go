package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livestore/internal/compiler"
	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/server"
)

const usersBody = `[{"id":"1","name":"ann","age":30},{"id":"2","name":"kid","age":9}]`

func usersAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orgs/acme/users":
			assert.Equal(t, "Bearer t0k", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(usersBody))
		case "/orgs/acme/bad":
			_, _ = w.Write([]byte(`[{"id":"3","age":"old"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"no such org"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetchArgs(catalog, baseURL, path string, extra ...string) []string {
	args := []string{"--catalog", catalog, "--store", "user", "--base-url", baseURL, "--path", path, "--retries", "0"}
	return append(args, extra...)
}

func TestFetchText(t *testing.T) {
	catalog, _ := writeFixture(t, nil)
	api := usersAPI(t)

	out, err := execute(NewFetchCommand(&RootOptions{Format: "text"}),
		fetchArgs(catalog, api.URL, "/orgs/:org/users", "--param", "org=acme", "-H", "Authorization=Bearer t0k")...)
	require.NoError(t, err)
	assert.Equal(t, `Fetched 2 record(s) into user

=== user ===
  1 age=30 name=ann
  2 age=9 name=kid

view adults: [1]

view kids: [2]
`, out)
}

func TestFetchJSON(t *testing.T) {
	catalog, _ := writeFixture(t, nil)
	api := usersAPI(t)

	out, err := execute(NewFetchCommand(&RootOptions{Format: "json"}),
		fetchArgs(catalog, api.URL, "/orgs/:org/users", "--param", "org=acme", "-H", "Authorization=Bearer t0k")...)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   FetchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Fetched)
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, int64(30), resp.Data.Records[0].Fields["age"])
	require.Len(t, resp.Data.Views["adults"], 1)
	assert.Equal(t, "1", resp.Data.Views["adults"][0].ID)
	assert.NotContains(t, resp.Data.Views, "authored")
}

func TestFetchFromLivestoreServer(t *testing.T) {
	catalog, _ := writeFixture(t, nil)

	cat, err := compiler.Load(catalog)
	require.NoError(t, err)
	rt, err := engine.Build(cat)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	require.NoError(t, rt.Update("user",
		entity.NewRecord("7", map[string]any{"name": "eve", "age": int64(41)}),
	))

	eng := engine.New(rt)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = eng.Run(ctx) }()

	api := httptest.NewServer(server.New(eng, server.Config{}))
	t.Cleanup(api.Close)

	out, err := execute(NewFetchCommand(&RootOptions{Format: "text"}),
		fetchArgs(catalog, api.URL, "/v1/stores/:store", "--param", "store=user")...)
	require.NoError(t, err)
	assert.Contains(t, out, "  7 age=41 name=eve\n")
	assert.Contains(t, out, "view adults: [7]")
}

func TestFetchErrors(t *testing.T) {
	catalog, _ := writeFixture(t, nil)
	api := usersAPI(t)

	tests := []struct {
		name     string
		args     []string
		exitCode int
		contains string
	}{
		{
			name:     "status error",
			args:     fetchArgs(catalog, api.URL, "/orgs/:org/users", "--param", "org=ghost"),
			exitCode: ExitFailure,
			contains: "code=not_found: no such org",
		},
		{
			name:     "invalid record",
			args:     fetchArgs(catalog, api.URL, "/orgs/acme/bad"),
			exitCode: ExitFailure,
			contains: "Error [E008]",
		},
		{
			name:     "missing param",
			args:     fetchArgs(catalog, api.URL, "/orgs/:org/users"),
			exitCode: ExitFailure,
			contains: "org",
		},
		{
			name:     "bad param",
			args:     fetchArgs(catalog, api.URL, "/orgs/:org/users", "--param", "org"),
			exitCode: ExitCommandError,
			contains: "Error [E009]: invalid --param",
		},
		{
			name:     "unknown store",
			args:     []string{"--catalog", catalog, "--store", "ghost", "--base-url", api.URL, "--path", "/x"},
			exitCode: ExitCommandError,
			contains: `store "ghost" is not declared`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(NewFetchCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Contains(t, out, tt.contains)
		})
	}
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, got)

	_, err = parsePairs([]string{"=v"})
	assert.Error(t, err)
}

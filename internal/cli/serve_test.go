package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/testutil"
	"github.com/roach88/livestore/internal/tracelog"
)

// startServe runs the serve command in the background until the test ends
// or stop is called, and returns the base URL once the server listens.
func startServe(t *testing.T, opts *ServeOptions) (baseURL string, stop func() error) {
	t.Helper()
	ready := make(chan string, 1)
	opts.Addr = "127.0.0.1:0"
	opts.Ready = func(addr string) { ready <- addr }

	ctx, cancel := context.WithCancel(context.Background())
	cmd := bareCommand(&bytes.Buffer{})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var stopped bool
	var stopErr error
	stop = func() error {
		if !stopped {
			stopped = true
			cancel()
			stopErr = <-done
		}
		return stopErr
	}
	t.Cleanup(func() { _ = stop() })

	select {
	case addr := <-ready:
		return "http://" + addr, stop
	case err := <-done:
		stopped = true
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}
	return "", stop
}

func httpDo(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServeHandlesRequests(t *testing.T) {
	catalog, _ := writeFixture(t, nil)
	base, stop := startServe(t, &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Catalog:     catalog,
		MaxPending:  engine.DefaultMaxPending,
	})

	code, body := httpDo(t, http.MethodGet, base+"/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, body = httpDo(t, http.MethodPut, base+"/v1/stores/user", `[{"id":"1","name":"ann","age":30},{"id":"2","name":"kid","age":9}]`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":2}`, body)

	code, body = httpDo(t, http.MethodGet, base+"/v1/views/adults", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"id":"1","name":"ann","age":30}]`, body)

	code, body = httpDo(t, http.MethodGet, base+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "livestore_mutations_total")
	assert.Contains(t, body, "go_goroutines")

	require.NoError(t, stop())
}

func TestServeRecordsTrace(t *testing.T) {
	catalog, _ := writeFixture(t, nil)
	db := filepath.Join(t.TempDir(), "trace.db")
	base, stop := startServe(t, &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Catalog:     catalog,
		Record:      db,
		RunIDs:      testutil.NewFixedRunID("serve-1"),
	})

	code, _ := httpDo(t, http.MethodPut, base+"/v1/stores/user", `[{"id":"1","name":"ann","age":30}]`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, stop())

	log, err := tracelog.Open(db)
	require.NoError(t, err)
	defer log.Close()

	runs, err := log.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "serve-1", runs[0].ID)
	assert.Equal(t, "serve", runs[0].Name)

	events, err := log.Events(context.Background(), "serve-1")
	require.NoError(t, err)
	sources := make(map[string]bool)
	for _, ev := range events {
		sources[ev.Source] = true
	}
	assert.True(t, sources["user"])
	assert.True(t, sources["adults"])
}

func TestServeMissingCatalog(t *testing.T) {
	out := &bytes.Buffer{}
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Catalog:     filepath.Join(t.TempDir(), "missing.cue"),
		Addr:        "127.0.0.1:0",
	}
	err := runServe(opts, bareCommand(out))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "Error [E005]")
}

func TestServeRequiresCatalogFlag(t *testing.T) {
	_, err := execute(NewServeCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "catalog" not set`)
}

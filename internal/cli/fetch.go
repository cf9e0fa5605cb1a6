package cli

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/entity"
	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/request"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Catalog string
	Store   string
	BaseURL string
	Path    string
	Params  []string // key=value path parameters
	Headers []string // key=value request headers
	Retries int
	Timeout time.Duration
}

// FetchResult is the JSON payload of fetch.
type FetchResult struct {
	Store   string                     `json:"store"`
	Fetched int                        `json:"fetched"`
	Records []entity.Record            `json:"records"`
	Views   map[string][]entity.Record `json:"views"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Load records from an HTTP endpoint into a store",
		Long: `Call a JSON list endpoint, upsert the returned records into a store of the
catalog, and print the store and every view over it.

The path may contain :name segments filled from --param. Records must be
objects with an "id" field and are checked against the store's field kinds.

Examples:
  livestore fetch --catalog ./catalog.cue --store user --base-url http://localhost:8080 --path /v1/stores/user
  livestore fetch --catalog ./catalog.cue --store user --base-url https://api.example.com --path /orgs/:org/users --param org=acme`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "path to the CUE catalog (required)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "store to load into (required)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "base URL of the endpoint (required)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "endpoint path, may contain :param segments (required)")
	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "path parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "request header as key=value (repeatable)")
	cmd.Flags().IntVar(&opts.Retries, "retries", 2, "retries on transport errors, 429 and 5xx")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 20*time.Second, "per-attempt timeout")
	for _, name := range []string{"catalog", "store", "base-url", "path"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runFetch(opts *FetchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	params, err := parsePairs(opts.Params)
	if err != nil {
		return flagError(formatter, "--param", err)
	}
	headers, err := parsePairs(opts.Headers)
	if err != nil {
		return flagError(formatter, "--header", err)
	}

	cat, err := LoadCatalog(opts.Catalog)
	if err != nil {
		return commandError(formatter, err)
	}
	if _, ok := cat.Store(opts.Store); !ok {
		msg := fmt.Sprintf("store %q is not declared in %s", opts.Store, opts.Catalog)
		_ = formatter.Error(ErrCodeInvalidFlag, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	stats := &metrics.Basic{}
	rt, err := engine.Build(cat, engine.WithMetrics(stats), engine.WithLogger(logger))
	if err != nil {
		return commandError(formatter, err)
	}
	defer rt.Close()

	reqOpts := []request.Option{
		request.WithBaseURL(opts.BaseURL),
		request.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		request.WithRetry(opts.Retries, 200*time.Millisecond, 2*time.Second),
		request.WithLogger(logger),
	}
	for k, v := range headers {
		reqOpts = append(reqOpts, request.WithHeader(k, v))
	}
	list := request.New[[]entity.Record](http.MethodGet, opts.Path, http.StatusOK, reqOpts...)

	target := &runtimeTarget{rt: rt, store: opts.Store}
	fetched, err := request.Pull[entity.Record](ctx, list, request.Params{URL: params}, target)
	if err == nil {
		err = target.err
	}
	if err != nil {
		_ = formatter.Error(ErrCodeRequest, err.Error(), nil)
		return WrapExitError(ExitFailure, "fetch failed", err)
	}
	formatter.VerboseLog("Fetched %d record(s) from %s, %d mutation(s) applied", len(fetched), opts.Path, stats.Stats().Mutations)

	result, err := collectFetchResult(rt, opts.Store, len(fetched))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read store", err)
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputFetchText(formatter, result)
	return nil
}

// runtimeTarget feeds pulled records through the runtime so they are checked
// against the store definition.
type runtimeTarget struct {
	rt    *engine.Runtime
	store string
	err   error
}

func (t *runtimeTarget) Update(records ...entity.Record) {
	if err := t.rt.Update(t.store, records...); err != nil && t.err == nil {
		t.err = err
	}
}

func (t *runtimeTarget) Delete(ids ...string) {
	if err := t.rt.Delete(t.store, ids...); err != nil && t.err == nil {
		t.err = err
	}
}

func collectFetchResult(rt *engine.Runtime, store string, fetched int) (FetchResult, error) {
	st, err := rt.Store(store)
	if err != nil {
		return FetchResult{}, err
	}
	result := FetchResult{
		Store:   store,
		Fetched: fetched,
		Records: st.Snapshot(),
		Views:   make(map[string][]entity.Record),
	}
	for _, def := range rt.Catalog().Views {
		if def.Store != store {
			continue
		}
		v, err := rt.View(def.Name)
		if err != nil {
			return FetchResult{}, err
		}
		result.Views[def.Name] = v.Value()
	}
	return result, nil
}

func outputFetchText(f *OutputFormatter, result FetchResult) {
	f.Printf("Fetched %d record(s) into %s\n\n", result.Fetched, result.Store)
	f.Printf("=== %s ===\n", result.Store)
	for _, r := range result.Records {
		f.Printf("  %s %s\n", r.ID, formatFields(r.Fields))
	}
	for _, def := range sortedKeys(result.Views) {
		ids := make([]string, len(result.Views[def]))
		for i, r := range result.Views[def] {
			ids[i] = r.ID
		}
		f.Printf("\nview %s: [%s]\n", def, strings.Join(ids, ", "))
	}
}

// formatFields renders fields as k=v pairs in key order.
func formatFields(fields map[string]any) string {
	parts := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func flagError(f *OutputFormatter, flag string, err error) error {
	msg := fmt.Sprintf("invalid %s: %v", flag, err)
	_ = f.Error(ErrCodeInvalidFlag, msg, nil)
	return NewExitError(ExitCommandError, msg)
}

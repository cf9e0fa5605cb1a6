package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/harness"
	"github.com/roach88/livestore/internal/ir"
	"github.com/roach88/livestore/internal/tracelog"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Record string // trace database path; empty disables recording

	// RunIDs names recorded runs. Defaults to UUIDv7; tests pin it.
	RunIDs engine.RunIDGenerator
}

// RunReport is the JSON payload of run.
type RunReport struct {
	*harness.SuiteResult
	Runs map[string]string `json:"runs,omitempty"` // scenario path -> recorded run id
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario|dir>",
		Short: "Run scenarios against their catalogs",
		Long: `Run one scenario file, or every .yaml scenario in a directory, on a fresh
runtime and evaluate its assertions.

With --record, each scenario's trace is appended to a SQLite trace log under
a new run id; inspect it later with "livestore trace".

Examples:
  livestore run ./scenarios
  livestore run ./scenarios/friend_join.yaml --record ./trace.db
  livestore run ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Record, "record", "", "append traces to this SQLite database")
	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	runOpts := []harness.RunOption{harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr()))}

	paths, err := harness.FindScenarios(path)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeNotFound, err)
		}
		_ = formatter.Error(ErrCodeScanError, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeScanError, err)
	}
	if len(paths) == 0 {
		_ = formatter.Error(ErrCodeNoFiles, fmt.Sprintf("no scenarios found in %s", path), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", path))
	}
	formatter.VerboseLog("Running %d scenario(s)", len(paths))

	report := RunReport{}
	if opts.Record == "" {
		report.SuiteResult, err = harness.RunSuite(ctx, paths, runOpts...)
	} else {
		err = runRecorded(ctx, opts, paths, runOpts, &report)
	}
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run interrupted", err)
	}

	if err := outputRunReport(formatter, report); err != nil {
		return err
	}
	if !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total))
	}
	return nil
}

// runRecorded runs each scenario under its own trace-log run.
func runRecorded(ctx context.Context, opts *RunOptions, paths []string, runOpts []harness.RunOption, report *RunReport) error {
	log, err := tracelog.Open(opts.Record)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer log.Close()

	ids := opts.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}

	report.SuiteResult = &harness.SuiteResult{}
	report.Runs = make(map[string]string)
	for _, path := range paths {
		pathOpts := runOpts
		if id, ok, err := startRun(ctx, log, ids, path); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		} else if ok {
			report.Runs[path] = id
			pathOpts = append(append([]harness.RunOption(nil), runOpts...), harness.WithSink(log.Sink(ctx, id)))
		}

		// Scenarios that cannot be loaded are run anyway so the suite reports
		// the failure.
		one, err := harness.RunSuite(ctx, []string{path}, pathOpts...)
		if err != nil {
			return err
		}
		report.Total += one.Total
		report.Passed += one.Passed
		report.Failed += one.Failed
		report.Results = append(report.Results, one.Results...)
		report.Failures = append(report.Failures, one.Failures...)
	}
	return nil
}

// startRun registers a trace-log run for the scenario at path. It reports
// false when the scenario or its catalog cannot be loaded.
func startRun(ctx context.Context, log *tracelog.Log, ids engine.RunIDGenerator, path string) (string, bool, error) {
	s, err := harness.LoadScenario(path)
	if err != nil {
		return "", false, nil
	}
	cat, err := harness.LoadCatalog(s)
	if err != nil {
		return "", false, nil
	}
	hash, err := ir.CatalogHash(cat)
	if err != nil {
		return "", false, nil
	}

	id := s.RunID
	if id == "" {
		id = ids.Generate()
	}
	if err := log.StartRun(ctx, tracelog.NewRun(id, s.Name, hash)); err != nil {
		return "", false, err
	}
	return id, true, nil
}

func outputRunReport(formatter *OutputFormatter, report RunReport) error {
	if formatter.JSON() {
		status := "ok"
		if !report.OK() {
			status = "error"
		}
		return formatter.Respond(CLIResponse{Status: status, Data: report})
	}

	failures := make(map[string]string, len(report.Failures))
	for _, f := range report.Failures {
		failures[f.ScenarioPath] = f.Error
	}
	for _, r := range report.Results {
		name := r.Name
		if name == "" {
			name = r.Path
		}
		if r.Pass {
			formatter.Printf("✓ %s (%d events)", name, r.Events)
			if id, ok := report.Runs[r.Path]; ok {
				formatter.Printf(" run=%s", id)
			}
			formatter.Printf("\n")
			continue
		}
		formatter.Printf("✗ %s\n    %s\n", name, failures[r.Path])
	}
	formatter.Printf("\n%d passed, %d failed\n", report.Passed, report.Failed)
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/tracelog"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID  string
	Source string // optional: only events from this store, view or join
}

// TraceResult is the JSON payload of trace --run.
type TraceResult struct {
	Run      *tracelog.Run       `json:"run,omitempty"`
	Timeline []engine.TraceEvent `json:"timeline"`
	Stats    TraceStats          `json:"stats"`
}

// TraceStats counts a run's events by kind.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Store       int `json:"store"`
	View        int `json:"view"`
	Join        int `json:"join"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <db>",
		Short: "Inspect recorded traces",
		Long: `List the runs in a trace database, or print the timeline of one run.

The timeline shows every notification in sequence order: which store, view
or join emitted it, on which channel, and for which ids.

Examples:
  livestore trace ./trace.db
  livestore trace ./trace.db --run 0190f3c2-...
  livestore trace ./trace.db --run 0190f3c2-... --source friendship --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")
	cmd.Flags().StringVar(&opts.Source, "source", "", "filter to one store, view or join")
	return cmd
}

func runTrace(opts *TraceOptions, dbPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	// Opening creates missing databases, so check first.
	if _, err := os.Stat(dbPath); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("trace database not found: %s", dbPath), nil)
		return WrapExitError(ExitCommandError, "trace database not found", err)
	}
	log, err := tracelog.Open(dbPath)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer log.Close()

	runs, err := log.Runs(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.RunID == "" {
		if formatter.JSON() {
			return formatter.Success(runs)
		}
		outputRunsText(formatter.Writer, runs)
		return nil
	}

	result := TraceResult{Timeline: []engine.TraceEvent{}}
	for i := range runs {
		if runs[i].ID == opts.RunID {
			result.Run = &runs[i]
		}
	}
	if result.Run == nil {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "No events found for run: %s\n", opts.RunID)
		return nil
	}

	events, err := log.Events(ctx, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	result.Timeline, result.Stats = buildTimeline(events, opts.Source)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTimeline drops the storage ids and applies the source filter.
func buildTimeline(events []tracelog.Event, source string) ([]engine.TraceEvent, TraceStats) {
	timeline := []engine.TraceEvent{}
	var stats TraceStats
	for _, ev := range events {
		if source != "" && ev.Source != source {
			continue
		}
		timeline = append(timeline, ev.TraceEvent)
		stats.TotalEvents++
		switch ev.Kind {
		case engine.KindStore:
			stats.Store++
		case engine.KindView:
			stats.View++
		case engine.KindJoin:
			stats.Join++
		}
	}
	return timeline, stats
}

func outputRunsText(w io.Writer, runs []tracelog.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	fmt.Fprintln(w, "=== Runs ===")
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  %-20s %4d events  catalog=%s\n", r.ID, r.Name, r.Events, truncateID(r.CatalogHash))
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Run: %s (%s)\n", result.Run.ID, result.Run.Name)
	if verbose {
		fmt.Fprintf(w, "Catalog: %s (catalog %s, engine %s)\n",
			result.Run.CatalogHash, result.Run.CatalogVersion, result.Run.EngineVersion)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s.%s (%s) [%s]\n", ev.Seq, ev.Source, ev.Channel, ev.Kind, strings.Join(ev.IDs, ", "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Store:        %d\n", result.Stats.Store)
	fmt.Fprintf(w, "  View:         %d\n", result.Stats.View)
	fmt.Fprintf(w, "  Join:         %d\n", result.Stats.Join)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

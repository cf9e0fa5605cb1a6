package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/livestore/internal/engine"
	"github.com/roach88/livestore/internal/ir"
	"github.com/roach88/livestore/internal/metrics"
	"github.com/roach88/livestore/internal/server"
	"github.com/roach88/livestore/internal/tracelog"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Catalog    string
	Addr       string
	Record     string
	MaxPending int

	// RunIDs names the recorded run. Defaults to UUIDv7.
	RunIDs engine.RunIDGenerator

	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a catalog over HTTP",
		Long: `Build a runtime from a catalog and serve its stores, views and joins as
JSON over HTTP. Every request goes through the single-writer command loop.
Prometheus metrics are served on /metrics.

With --record, every notification is appended to a SQLite trace log.

Examples:
  livestore serve --catalog ./catalog.cue
  livestore serve --catalog ./catalog --addr :9090 --record ./trace.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "path to the CUE catalog (required)")
	_ = cmd.MarkFlagRequired("catalog")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Record, "record", "", "append traces to this SQLite database")
	cmd.Flags().IntVar(&opts.MaxPending, "max-pending", engine.DefaultMaxPending, "command queue capacity (0 = unbounded)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cat, err := LoadCatalog(opts.Catalog)
	if err != nil {
		return commandError(formatter, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	prom, err := metrics.NewPrometheus(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	rtOpts := []engine.RuntimeOption{engine.WithMetrics(prom), engine.WithLogger(logger)}
	var runID string
	if opts.Record != "" {
		log, err := tracelog.Open(opts.Record)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer log.Close()

		ids := opts.RunIDs
		if ids == nil {
			ids = engine.UUIDv7Generator{}
		}
		runID = ids.Generate()
		hash, err := ir.CatalogHash(cat)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash catalog", err)
		}
		if err := log.StartRun(ctx, tracelog.NewRun(runID, "serve", hash)); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		rtOpts = append(rtOpts, engine.WithTracer(engine.NewTracer(nil, log.Sink(ctx, runID))))
	}

	rt, err := engine.Build(cat, rtOpts...)
	if err != nil {
		return commandError(formatter, err)
	}
	defer rt.Close()
	eng := engine.New(rt, engine.WithMaxPending(opts.MaxPending))

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", opts.Addr), err)
	}
	srv := &http.Server{
		Handler:           server.New(eng, server.Config{Gatherer: reg, Logger: logger}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	logger.Info("serving catalog", "addr", addr, "catalog", rt.Hash(), "run", runID)
	formatter.Printf("Serving %s on http://%s\n", opts.Catalog, addr)
	if runID != "" {
		formatter.Printf("Recording run %s to %s\n", runID, opts.Record)
	}
	formatter.Printf("Press Ctrl-C to stop.\n")
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serveDone:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	<-engineDone

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", serveErr)
	}
	logger.Info("server stopped gracefully")
	return nil
}

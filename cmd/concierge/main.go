// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// concierge is the procurement assistant's command-line front end.
// It runs conversation turns against a language-model provider with
// rate limiting, retries and circuit breaking, executes catalog and
// cart tools, and persists each turn atomically.
//
// With positional arguments it runs one turn and exits; the exit
// status distinguishes a retryable provider outage (75) from a
// persistence failure (74) and an invalid request (64). Without
// arguments it reads one turn per line from stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/config"
	"github.com/bureau-foundation/concierge/lib/metrics"
	"github.com/bureau-foundation/concierge/lib/process"
	"github.com/bureau-foundation/concierge/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath     string
		envFile        string
		conversationID string
		userID         string
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("concierge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to concierge.yaml (default: $CONCIERGE_CONFIG)")
	flagSet.StringVar(&envFile, "env-file", "", "dotenv file holding provider API keys")
	flagSet.StringVar(&conversationID, "conversation", "", "conversation ID to continue (default: start a new one)")
	flagSet.StringVar(&userID, "user", os.Getenv("USER"), "user the conversation belongs to")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println(version.Full("concierge"))
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if userID == "" {
		return errors.New("--user is required when $USER is not set")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Info("concierge starting", version.LogAttr(), "environment", cfg.Environment)

	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		return err
	}
	transport, err := newTransport(cfg, secrets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	if cfg.Metrics.Listen != "" {
		shutdown, err := serveMetrics(cfg.Metrics.Listen, registry, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	svc, err := newService(ctx, cfg, transport, clock.Real(), logger, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	current := &session{
		runner:         svc.orchestrator,
		conversations:  svc.store,
		conversationID: conversationID,
		userID:         userID,
		output:         os.Stdout,
		interactive:    term.IsTerminal(int(os.Stdin.Fd())),
	}

	if args := flagSet.Args(); len(args) > 0 {
		return current.runOnce(ctx, strings.Join(args, " "))
	}
	err = current.loop(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveMetrics starts the Prometheus endpoint and returns a function
// that shuts it down.
func serveMetrics(address string, gatherer prometheus.Gatherer, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", address, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "address", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/config"
	"github.com/bureau-foundation/concierge/lib/conversation"
	"github.com/bureau-foundation/concierge/lib/history"
	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
	"github.com/bureau-foundation/concierge/lib/orchestrator"
	"github.com/bureau-foundation/concierge/lib/procurement"
	"github.com/bureau-foundation/concierge/lib/reliability"
	"github.com/bureau-foundation/concierge/lib/toolexec"
)

// service is the assembled concierge: one orchestrator over one store.
type service struct {
	orchestrator *orchestrator.Orchestrator
	store        conversation.Store
}

func (s *service) Close() error {
	return s.store.Close()
}

// newService wires every component from cfg around transport, the
// raw provider. The caller owns transport construction so tests can
// substitute a scripted one.
func newService(ctx context.Context, cfg *config.Config, transport llm.Provider, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) (*service, error) {
	limiter, err := reliability.NewLimiter(reliability.LimiterConfig{
		ReservoirSize:   cfg.Reliability.ReservoirSize,
		RefreshInterval: cfg.Reliability.RefreshInterval,
		MaxQueueWait:    cfg.Reliability.MaxQueueWait,
		Clock:           clk,
	})
	if err != nil {
		return nil, err
	}

	breakerLogger := logger.With("component", "breaker")
	breaker, err := reliability.NewBreaker(reliability.BreakerConfig{
		WindowSize:       cfg.Reliability.WindowSize,
		MinimumCalls:     cfg.Reliability.MinimumCalls,
		FailureThreshold: cfg.Reliability.FailureThreshold,
		Cooldown:         cfg.Reliability.Cooldown,
		Clock:            clk,
		Logger:           breakerLogger,
		OnStateChange: func(from, to reliability.State) {
			m.SetBreakerState(int(to))
		},
	})
	if err != nil {
		return nil, err
	}

	invoker, err := reliability.NewInvoker(reliability.Config{
		Provider:       transport,
		Limiter:        limiter,
		Breaker:        breaker,
		MaxRetries:     cfg.Reliability.MaxRetries,
		BaseBackoff:    cfg.Reliability.BaseBackoff,
		MaxBackoff:     cfg.Reliability.MaxBackoff,
		AttemptTimeout: cfg.Reliability.AttemptTimeout,
		Clock:          clk,
		Logger:         logger.With("component", "invoker"),
		Metrics:        m,
	})
	if err != nil {
		return nil, err
	}

	var catalog *procurement.Catalog
	if cfg.Catalog.SeedPath != "" {
		catalog, err = procurement.LoadCatalog(cfg.Catalog.SeedPath)
	} else {
		catalog, err = procurement.NewCatalog(nil)
	}
	if err != nil {
		return nil, err
	}
	carts := procurement.NewCarts(catalog, clk)

	registry := toolexec.NewRegistry()
	if err := procurement.Register(registry, catalog, carts); err != nil {
		return nil, err
	}
	executor, err := toolexec.NewExecutor(toolexec.Config{
		Registry: registry,
		Clock:    clk,
		Logger:   logger.With("component", "toolexec"),
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	builder := history.NewBuilder(history.Config{
		Estimator: history.NewCharEstimator(cfg.History.MessageOverheadTokens),
		Logger:    logger.With("component", "history"),
		Metrics:   m,
	})

	store, err := conversation.Open(ctx, conversation.Config{
		Driver:            cfg.Storage.Driver,
		Path:              cfg.Storage.Path,
		RedisAddr:         cfg.Storage.RedisAddr,
		CompressThreshold: cfg.Storage.CompressThreshold,
		Logger:            logger.With("component", "store"),
	})
	if err != nil {
		return nil, err
	}

	turns, err := orchestrator.New(orchestrator.Config{
		Provider:         invoker,
		Executor:         executor,
		History:          builder,
		Store:            store,
		Snapshots:        carts,
		Model:            cfg.Provider.Model,
		MaxTokens:        cfg.Provider.MaxTokens,
		SystemPrompt:     cfg.Turn.SystemPrompt,
		TokenBudget:      cfg.History.TokenBudget,
		MaxIterations:    cfg.Turn.MaxIterations,
		ToolTimeout:      cfg.Turn.ToolTimeout,
		TurnTimeout:      cfg.Turn.TurnTimeout,
		MaxParallelTools: cfg.Turn.MaxParallelTools,
		PartialReply:     cfg.Turn.PartialReply,
		UnavailableReply: cfg.Turn.UnavailableReply,
		Clock:            clk,
		Logger:           logger.With("component", "orchestrator"),
		Metrics:          m,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	reliabilityState := invoker.Snapshot()
	logger.Info("concierge ready",
		"catalog_items", catalog.Len(),
		"breaker", reliabilityState.Breaker.String(),
		"available_slots", reliabilityState.AvailableSlots,
		"tools", len(registry.Names()),
		"storage", cfg.Storage.Driver,
		"provider", cfg.Provider.Kind,
		"model", cfg.Provider.Model,
	)

	return &service{
		orchestrator: turns,
		store:        store,
	}, nil
}

// newTransport builds the raw provider named by cfg.Provider.
func newTransport(cfg *config.Config, secrets *config.Secrets) (llm.Provider, error) {
	apiKey, err := secrets.APIKey(cfg.Provider.Kind)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(llm.ProviderOptions{
		Kind:    cfg.Provider.Kind,
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}
	return provider, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
)

// Provider call outcomes reported to metrics.
const (
	outcomeSuccess     = "success"
	outcomeCircuitOpen = "circuit_open"
	outcomeRateLimited = "rate_limited"
	outcomeExhausted   = "retries_exhausted"
	outcomeRejected    = "rejected"
	outcomeCancelled   = "cancelled"
)

// Config configures an Invoker.
type Config struct {
	// Provider is the transport being protected. Required.
	Provider llm.Provider

	// Limiter and Breaker are required. Share one of each across
	// every Invoker that talks to the same provider.
	Limiter *Limiter
	Breaker *Breaker

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseBackoff is the delay before the first retry. Each later
	// retry doubles it, up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Jitter is the randomization factor applied to each delay, in
	// [0, 1). Defaults to 0.5.
	Jitter *float64

	// AttemptTimeout bounds each physical provider call. Zero means
	// no per-attempt bound.
	AttemptTimeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Invoker implements llm.Provider with rate limiting, retries, and
// circuit breaking around another provider. Safe for concurrent use.
type Invoker struct {
	provider       llm.Provider
	limiter        *Limiter
	breaker        *Breaker
	maxRetries     int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	jitter         float64
	attemptTimeout time.Duration
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

var _ llm.Provider = (*Invoker)(nil)

// NewInvoker validates config and creates an Invoker.
func NewInvoker(config Config) (*Invoker, error) {
	if config.Provider == nil {
		return nil, errors.New("reliability: Provider is required")
	}
	if config.Limiter == nil || config.Breaker == nil {
		return nil, errors.New("reliability: Limiter and Breaker are required")
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("reliability: max retries must not be negative, got %d", config.MaxRetries)
	}
	if config.BaseBackoff <= 0 {
		return nil, fmt.Errorf("reliability: base backoff must be positive, got %s", config.BaseBackoff)
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff < config.BaseBackoff {
		maxBackoff = config.BaseBackoff
	}
	jitter := 0.5
	if config.Jitter != nil {
		jitter = *config.Jitter
	}
	if jitter < 0 || jitter >= 1 {
		return nil, fmt.Errorf("reliability: jitter must be in [0, 1), got %v", jitter)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Invoker{
		provider:       config.Provider,
		limiter:        config.Limiter,
		breaker:        config.Breaker,
		maxRetries:     config.MaxRetries,
		baseBackoff:    config.BaseBackoff,
		maxBackoff:     maxBackoff,
		jitter:         jitter,
		attemptTimeout: config.AttemptTimeout,
		clock:          clk,
		logger:         logger,
		metrics:        config.Metrics,
	}, nil
}

// Complete performs one logical provider call.
func (invoker *Invoker) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	if err := invoker.breaker.Allow(); err != nil {
		invoker.metrics.ObserveProviderCall(outcomeCircuitOpen)
		return nil, err
	}

	response, err := invoker.retry(ctx, request)

	outcome, label := invoker.classifyOutcome(ctx, err)
	invoker.breaker.Record(outcome)
	invoker.metrics.ObserveProviderCall(label)
	return response, err
}

// Snapshot describes the reliability state for diagnostics.
type Snapshot struct {
	Breaker        State
	AvailableSlots float64
}

// Snapshot returns the current breaker state and reservoir level.
func (invoker *Invoker) Snapshot() Snapshot {
	return Snapshot{
		Breaker:        invoker.breaker.State(),
		AvailableSlots: invoker.limiter.Available(),
	}
}

func (invoker *Invoker) retry(ctx context.Context, request llm.Request) (*llm.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = invoker.baseBackoff
	policy.Multiplier = 2
	policy.MaxInterval = invoker.maxBackoff
	policy.RandomizationFactor = invoker.jitter
	policy.MaxElapsedTime = 0
	policy.Clock = invoker.clock

	schedule := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(invoker.maxRetries)), ctx)

	var (
		response *llm.Response
		attempts int
	)
	operation := func() error {
		attempts++
		if err := invoker.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		invoker.metrics.ObserveProviderAttempt()
		result, err := invoker.attempt(ctx, request)
		if err == nil {
			response = result
			return nil
		}

		var providerError *llm.ProviderError
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.As(err, &providerError) && providerError.IsRateLimited():
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrRateLimited, err))
		case isTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, delay time.Duration) {
		invoker.logger.Warn("provider call failed, retrying",
			"attempt", attempts,
			"delay", delay,
			"error", err,
		)
	}

	err := backoff.RetryNotifyWithTimer(operation, schedule, notify, &clockTimer{clock: invoker.clock})
	if err != nil {
		if isTransient(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}
		return nil, err
	}
	return response, nil
}

func (invoker *Invoker) attempt(ctx context.Context, request llm.Request) (*llm.Response, error) {
	if invoker.attemptTimeout <= 0 {
		return invoker.provider.Complete(ctx, request)
	}
	attemptContext, cancel := context.WithTimeout(ctx, invoker.attemptTimeout)
	defer cancel()
	return invoker.provider.Complete(attemptContext, request)
}

// classifyOutcome maps a logical call's final error to a breaker
// outcome and a metrics label. Only transient failures that survived
// every retry count against the provider's health; a provider that
// answers with a non-transient error is reachable.
func (invoker *Invoker) classifyOutcome(ctx context.Context, err error) (Outcome, string) {
	switch {
	case err == nil:
		return OutcomeSuccess, outcomeSuccess
	case errors.Is(err, ErrRetriesExhausted):
		return OutcomeFailure, outcomeExhausted
	case errors.Is(err, ErrRateLimited):
		return OutcomeIgnored, outcomeRateLimited
	case ctx.Err() != nil:
		return OutcomeIgnored, outcomeCancelled
	default:
		return OutcomeSuccess, outcomeRejected
	}
}

// isTransient reports whether an attempt error is worth retrying:
// transient provider statuses, attempt deadlines, and transport
// errors that carry no provider status at all.
func isTransient(err error) bool {
	var providerError *llm.ProviderError
	if errors.As(err, &providerError) {
		return providerError.IsTransient()
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// clockTimer adapts clock.Clock to backoff.Timer so retry delays run
// on the injected clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (timer *clockTimer) Start(duration time.Duration) {
	if timer.timer != nil {
		timer.timer.Stop()
	}
	timer.timer = timer.clock.NewTimer(duration)
}

func (timer *clockTimer) Stop() {
	if timer.timer != nil {
		timer.timer.Stop()
	}
}

func (timer *clockTimer) C() <-chan time.Time {
	return timer.timer.C
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
	requireutil "github.com/bureau-foundation/concierge/lib/testutil"
)

// scriptedProvider returns queued results in order and repeats the
// last one once the queue is drained.
type scriptedProvider struct {
	mutex   sync.Mutex
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	response *llm.Response
	err      error
}

func (provider *scriptedProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	index := min(provider.calls, len(provider.results)-1)
	provider.calls++
	result := provider.results[index]
	return result.response, result.err
}

func (provider *scriptedProvider) callCount() int {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return provider.calls
}

func ok(text string) scriptedResult {
	return scriptedResult{response: &llm.Response{Content: text, StopReason: llm.StopReasonEndTurn}}
}

func fail(status int) scriptedResult {
	return scriptedResult{err: &llm.ProviderError{StatusCode: status, Message: "scripted"}}
}

type invokerFixture struct {
	clock    *clock.FakeClock
	provider *scriptedProvider
	invoker  *Invoker
	metrics  *metrics.Metrics
}

type fixtureOptions struct {
	maxRetries    int
	reservoirSize int
	windowSize    int
	minimumCalls  int
}

func newInvokerFixture(t *testing.T, options fixtureOptions, results ...scriptedResult) *invokerFixture {
	t.Helper()

	if options.reservoirSize == 0 {
		options.reservoirSize = 100
	}
	if options.windowSize == 0 {
		options.windowSize = 10
	}
	if options.minimumCalls == 0 {
		options.minimumCalls = options.windowSize
	}

	fake := clock.Fake(epoch)
	limiter := newTestLimiter(t, fake, options.reservoirSize, time.Minute, 0)
	breaker, err := NewBreaker(BreakerConfig{
		WindowSize:       options.windowSize,
		MinimumCalls:     options.minimumCalls,
		FailureThreshold: 0.5,
		Cooldown:         30 * time.Second,
		Clock:            fake,
	})
	if err != nil {
		t.Fatalf("NewBreaker: %v", err)
	}

	provider := &scriptedProvider{results: results}
	recorder := metrics.New(nil)
	noJitter := 0.0
	invoker, err := NewInvoker(Config{
		Provider:    provider,
		Limiter:     limiter,
		Breaker:     breaker,
		MaxRetries:  options.maxRetries,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Second,
		Jitter:      &noJitter,
		Clock:       fake,
		Metrics:     recorder,
	})
	if err != nil {
		t.Fatalf("NewInvoker: %v", err)
	}
	return &invokerFixture{clock: fake, provider: provider, invoker: invoker, metrics: recorder}
}

type completion struct {
	response *llm.Response
	err      error
}

func (fixture *invokerFixture) completeAsync(ctx context.Context) <-chan completion {
	done := make(chan completion, 1)
	go func() {
		response, err := fixture.invoker.Complete(ctx, llm.Request{Model: "test"})
		done <- completion{response, err}
	}()
	return done
}

func TestInvokerSuccessPassesThrough(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{maxRetries: 3}, ok("hello"))
	response, err := fixture.invoker.Complete(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if response.Content != "hello" {
		t.Errorf("content = %q, want hello", response.Content)
	}
	if got := testutil.ToFloat64(fixture.metrics.ProviderCalls.WithLabelValues(outcomeSuccess)); got != 1 {
		t.Errorf("success metric = %v, want 1", got)
	}
}

func TestInvokerRetriesTransientWithBackoff(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{maxRetries: 3},
		fail(503),
		scriptedResult{err: &net.OpError{Op: "dial", Err: errors.New("connection reset")}},
		ok("recovered"),
	)
	done := fixture.completeAsync(context.Background())

	// First retry after the base delay, second after twice that.
	fixture.clock.WaitForTimers(1)
	fixture.clock.Advance(100 * time.Millisecond)
	fixture.clock.WaitForTimers(1)
	fixture.clock.Advance(200 * time.Millisecond)

	result := requireutil.RequireReceive(t, done, 5*time.Second, "retried Complete")
	if result.err != nil {
		t.Fatalf("Complete: %v", result.err)
	}
	if result.response.Content != "recovered" {
		t.Errorf("content = %q, want recovered", result.response.Content)
	}
	if got := fixture.provider.callCount(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
	if got := testutil.ToFloat64(fixture.metrics.ProviderAttempts); got != 3 {
		t.Errorf("attempt metric = %v, want 3", got)
	}
}

func TestInvokerExhaustedRetries(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{maxRetries: 2}, fail(502))
	done := fixture.completeAsync(context.Background())

	fixture.clock.WaitForTimers(1)
	fixture.clock.Advance(100 * time.Millisecond)
	fixture.clock.WaitForTimers(1)
	fixture.clock.Advance(200 * time.Millisecond)

	result := requireutil.RequireReceive(t, done, 5*time.Second, "exhausted Complete")
	if !errors.Is(result.err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", result.err)
	}
	var providerError *llm.ProviderError
	if !errors.As(result.err, &providerError) || providerError.StatusCode != 502 {
		t.Errorf("error does not wrap the last provider error: %v", result.err)
	}
	if got := fixture.provider.callCount(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
}

func TestInvokerProviderRateLimitNotRetried(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{maxRetries: 3}, fail(429))
	_, err := fixture.invoker.Complete(context.Background(), llm.Request{})

	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if got := fixture.provider.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestInvokerNonTransientNotRetried(t *testing.T) {
	t.Parallel()

	for _, status := range []int{400, 401, 403, 404, 422} {
		fixture := newInvokerFixture(t, fixtureOptions{maxRetries: 3, windowSize: 1}, fail(status))
		_, err := fixture.invoker.Complete(context.Background(), llm.Request{})

		var providerError *llm.ProviderError
		if !errors.As(err, &providerError) || providerError.StatusCode != status {
			t.Errorf("status %d: error = %v, want the provider error", status, err)
		}
		if errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("status %d: reported as exhausted retries", status)
		}
		if got := fixture.provider.callCount(); got != 1 {
			t.Errorf("status %d: provider calls = %d, want 1", status, got)
		}
		// A provider that answers is healthy even when it refuses.
		if state := fixture.invoker.Snapshot().Breaker; state != StateClosed {
			t.Errorf("status %d: breaker = %v, want closed", status, state)
		}
	}
}

func TestInvokerOpenCircuitSkipsProvider(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{windowSize: 2}, fail(500))
	for range 2 {
		if _, err := fixture.invoker.Complete(context.Background(), llm.Request{}); !errors.Is(err, ErrRetriesExhausted) {
			t.Fatalf("error = %v, want ErrRetriesExhausted", err)
		}
	}
	if state := fixture.invoker.Snapshot().Breaker; state != StateOpen {
		t.Fatalf("breaker = %v, want open", state)
	}

	before := fixture.provider.callCount()
	for range 20 {
		if _, err := fixture.invoker.Complete(context.Background(), llm.Request{}); !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("error = %v, want ErrCircuitOpen", err)
		}
	}
	if got := fixture.provider.callCount(); got != before {
		t.Errorf("provider contacted while open: %d calls, want %d", got, before)
	}
	if got := testutil.ToFloat64(fixture.metrics.ProviderCalls.WithLabelValues(outcomeCircuitOpen)); got != 20 {
		t.Errorf("circuit_open metric = %v, want 20", got)
	}
}

func TestInvokerTrialClosesCircuit(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{windowSize: 2}, fail(500), fail(500), ok("back"))
	for range 2 {
		fixture.invoker.Complete(context.Background(), llm.Request{})
	}

	fixture.clock.Advance(30 * time.Second)
	response, err := fixture.invoker.Complete(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("trial call Complete: %v", err)
	}
	if response.Content != "back" {
		t.Errorf("content = %q, want back", response.Content)
	}
	if state := fixture.invoker.Snapshot().Breaker; state != StateClosed {
		t.Errorf("breaker = %v, want closed", state)
	}
}

func TestInvokerExhaustedReservoirSkipsProvider(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{reservoirSize: 1}, ok("first"))
	if _, err := fixture.invoker.Complete(context.Background(), llm.Request{}); err != nil {
		t.Fatalf("first Complete: %v", err)
	}

	_, err := fixture.invoker.Complete(context.Background(), llm.Request{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if got := fixture.provider.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
	if state := fixture.invoker.Snapshot().Breaker; state != StateClosed {
		t.Errorf("breaker = %v, want closed", state)
	}
}

func TestInvokerCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	fixture := newInvokerFixture(t, fixtureOptions{maxRetries: 5}, fail(503))
	ctx, cancel := context.WithCancel(context.Background())
	done := fixture.completeAsync(ctx)

	fixture.clock.WaitForTimers(1)
	cancel()

	result := requireutil.RequireReceive(t, done, 5*time.Second, "cancelled Complete")
	if !errors.Is(result.err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", result.err)
	}
	if got := fixture.provider.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestNewInvokerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewInvoker(Config{}); err == nil {
		t.Error("NewInvoker with no provider succeeded")
	}
}

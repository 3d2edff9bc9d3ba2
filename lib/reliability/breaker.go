// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/concierge/lib/clock"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (state State) String() string {
	switch state {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("State(%d)", int(state))
	}
}

// Outcome is the result of one admitted call as seen by the breaker.
type Outcome int

const (
	// OutcomeSuccess means the provider was reachable and answered.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the provider was unreachable or kept
	// failing transiently.
	OutcomeFailure

	// OutcomeIgnored releases the admission without recording a
	// sample, for calls that never reached a verdict (cancelled by
	// the caller, refused by the local rate limiter).
	OutcomeIgnored
)

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// WindowSize is K, the number of most recent outcomes tracked.
	WindowSize int

	// MinimumCalls is the number of samples required before the
	// failure ratio is evaluated. Defaults to 1.
	MinimumCalls int

	// FailureThreshold is the failure ratio in (0, 1) that the window
	// must exceed to open the circuit.
	FailureThreshold float64

	// Cooldown is how long the circuit stays open before admitting a
	// half-open trial call.
	Cooldown time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// OnStateChange, if set, is called after every transition with
	// the breaker's lock released.
	OnStateChange func(from, to State)
}

// Breaker is a rolling-window circuit breaker. Safe for concurrent
// use.
type Breaker struct {
	config BreakerConfig
	clock  clock.Clock
	logger *slog.Logger

	mutex sync.Mutex
	state State

	// window is a ring of the last WindowSize outcomes; true is a
	// failure.
	window   []bool
	next     int
	samples  int
	failures int

	openedAt      time.Time
	trialInFlight bool
}

// NewBreaker creates a closed Breaker.
func NewBreaker(config BreakerConfig) (*Breaker, error) {
	if config.WindowSize <= 0 {
		return nil, fmt.Errorf("reliability: window size must be positive, got %d", config.WindowSize)
	}
	// The window opens when the failure ratio exceeds the threshold,
	// which a threshold of 1 could never do.
	if config.FailureThreshold <= 0 || config.FailureThreshold >= 1 {
		return nil, fmt.Errorf("reliability: failure threshold must be in (0, 1), got %v", config.FailureThreshold)
	}
	if config.Cooldown <= 0 {
		return nil, fmt.Errorf("reliability: cooldown must be positive, got %s", config.Cooldown)
	}
	if config.MinimumCalls <= 0 {
		config.MinimumCalls = 1
	}
	if config.MinimumCalls > config.WindowSize {
		return nil, fmt.Errorf("reliability: minimum calls %d exceeds window size %d", config.MinimumCalls, config.WindowSize)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Breaker{
		config: config,
		clock:  clk,
		logger: logger,
		state:  StateClosed,
		window: make([]bool, config.WindowSize),
	}, nil
}

// Allow admits a call or returns ErrCircuitOpen. Every admitted call
// must be followed by exactly one Record.
//
// Once the cooldown has elapsed the first caller moves the circuit to
// half-open and becomes the single trial call; others are refused until
// the trial call is recorded.
func (breaker *Breaker) Allow() error {
	breaker.mutex.Lock()

	switch breaker.state {
	case StateClosed:
		breaker.mutex.Unlock()
		return nil

	case StateOpen:
		if breaker.clock.Now().Sub(breaker.openedAt) < breaker.config.Cooldown {
			breaker.mutex.Unlock()
			return ErrCircuitOpen
		}
		breaker.trialInFlight = true
		breaker.transitionLocked(StateHalfOpen)

	case StateHalfOpen:
		if breaker.trialInFlight {
			breaker.mutex.Unlock()
			return ErrCircuitOpen
		}
		breaker.trialInFlight = true
		breaker.mutex.Unlock()
		return nil
	}

	callback, from := breaker.config.OnStateChange, StateOpen
	breaker.mutex.Unlock()
	if callback != nil {
		callback(from, StateHalfOpen)
	}
	return nil
}

// Record reports the outcome of an admitted call.
func (breaker *Breaker) Record(outcome Outcome) {
	breaker.mutex.Lock()
	from := breaker.state
	to := from

	switch breaker.state {
	case StateClosed:
		if outcome == OutcomeIgnored {
			break
		}
		breaker.pushLocked(outcome == OutcomeFailure)
		if breaker.samples >= breaker.config.MinimumCalls &&
			float64(breaker.failures)/float64(breaker.samples) > breaker.config.FailureThreshold {
			breaker.openedAt = breaker.clock.Now()
			to = StateOpen
		}

	case StateHalfOpen:
		breaker.trialInFlight = false
		switch outcome {
		case OutcomeSuccess:
			breaker.resetWindowLocked()
			to = StateClosed
		case OutcomeFailure:
			breaker.openedAt = breaker.clock.Now()
			to = StateOpen
		}

	case StateOpen:
		// A call admitted before the circuit opened finished late.
		// Its outcome belongs to a window that no longer exists.
	}

	if to != from {
		breaker.transitionLocked(to)
	}
	callback := breaker.config.OnStateChange
	breaker.mutex.Unlock()

	if to != from && callback != nil {
		callback(from, to)
	}
}

// State returns the current state. A circuit whose cooldown has
// elapsed still reports open until the next Allow.
func (breaker *Breaker) State() State {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()
	return breaker.state
}

func (breaker *Breaker) pushLocked(failure bool) {
	if breaker.samples == len(breaker.window) {
		if breaker.window[breaker.next] {
			breaker.failures--
		}
	} else {
		breaker.samples++
	}
	breaker.window[breaker.next] = failure
	if failure {
		breaker.failures++
	}
	breaker.next = (breaker.next + 1) % len(breaker.window)
}

func (breaker *Breaker) resetWindowLocked() {
	clear(breaker.window)
	breaker.next = 0
	breaker.samples = 0
	breaker.failures = 0
}

func (breaker *Breaker) transitionLocked(to State) {
	from := breaker.state
	breaker.state = to
	switch to {
	case StateOpen:
		breaker.logger.Warn("circuit breaker opened",
			"from", from.String(),
			"failures", breaker.failures,
			"samples", breaker.samples,
			"cooldown", breaker.config.Cooldown,
		)
	default:
		breaker.logger.Info("circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	}
}

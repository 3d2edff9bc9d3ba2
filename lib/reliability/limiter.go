// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reliability

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/concierge/lib/clock"
)

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	// ReservoirSize is the number of calls admitted per
	// RefreshInterval. It is also the burst size.
	ReservoirSize int

	// RefreshInterval is the window over which the reservoir refills.
	RefreshInterval time.Duration

	// MaxQueueWait is the longest a call may wait for a slot. Zero
	// means a call that cannot be admitted immediately fails.
	MaxQueueWait time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// Limiter is a reservoir of call slots refilled continuously at
// ReservoirSize per RefreshInterval. Reservations are granted in
// arrival order, so queued callers are served FIFO. Safe for
// concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	clock   clock.Clock
	maxWait time.Duration
}

// NewLimiter creates a Limiter with a full reservoir.
func NewLimiter(config LimiterConfig) (*Limiter, error) {
	if config.ReservoirSize <= 0 {
		return nil, fmt.Errorf("reliability: reservoir size must be positive, got %d", config.ReservoirSize)
	}
	if config.RefreshInterval <= 0 {
		return nil, fmt.Errorf("reliability: refresh interval must be positive, got %s", config.RefreshInterval)
	}
	if config.MaxQueueWait < 0 {
		return nil, fmt.Errorf("reliability: max queue wait must not be negative, got %s", config.MaxQueueWait)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	every := config.RefreshInterval / time.Duration(config.ReservoirSize)
	limiter := rate.NewLimiter(rate.Every(every), config.ReservoirSize)
	// rate.Limiter starts with a full bucket as of its first use, so
	// anchor it to the injected clock before anyone reserves.
	limiter.SetLimitAt(clk.Now(), rate.Every(every))

	return &Limiter{
		limiter: limiter,
		clock:   clk,
		maxWait: config.MaxQueueWait,
	}, nil
}

// Wait reserves one slot, blocking until it is available. Returns
// ErrRateLimited without waiting when the slot would not be available
// within the queue-wait ceiling, and ctx.Err() if ctx ends while
// queued. In both cases the reservation is returned to the reservoir.
func (limiter *Limiter) Wait(ctx context.Context) error {
	now := limiter.clock.Now()
	reservation := limiter.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return ErrRateLimited
	}

	delay := reservation.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if delay > limiter.maxWait {
		reservation.CancelAt(now)
		return fmt.Errorf("%w: next slot in %s exceeds queue wait %s", ErrRateLimited, delay, limiter.maxWait)
	}

	timer := limiter.clock.NewTimer(delay)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		reservation.CancelAt(limiter.clock.Now())
		return ctx.Err()
	}
}

// Available returns the number of slots that could be taken right now
// without queueing. Diagnostic only.
func (limiter *Limiter) Available() float64 {
	return limiter.limiter.TokensAt(limiter.clock.Now())
}

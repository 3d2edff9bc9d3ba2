// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/codec"
	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
)

// Error codes carried by failed results.
const (
	ErrorUnknownTool      = "UnknownTool"
	ErrorInvalidArguments = "InvalidArguments"
	ErrorTimeout          = "Timeout"
	ErrorExecution        = "ExecutionFailed"
	ErrorCancelled        = "Cancelled"
)

// argumentsDigestContext is the BLAKE3 key-derivation context for
// argument digests.
const argumentsDigestContext = "concierge 2026 tool call arguments v1"

// Result is the outcome of one tool call. Exactly one Result is
// produced per call.
type Result struct {
	CallID string
	Name   string

	Success bool

	// Payload is the JSON-encoded handler result on success.
	Payload json.RawMessage

	// ErrorCode is one of the Error* constants on failure. Error is
	// the human-readable detail.
	ErrorCode string
	Error     string

	// ArgumentsDigest is the hex BLAKE3 digest of the canonical CBOR
	// encoding of the arguments.
	ArgumentsDigest string

	// Attach is copied from the operation registration.
	Attach bool

	Duration time.Duration
}

// Content renders the result as the tool message text the provider
// receives.
func (result Result) Content() string {
	if result.Success {
		return string(result.Payload)
	}
	data, _ := json.Marshal(struct {
		Error  string `json:"error"`
		Detail string `json:"detail,omitempty"`
	}{result.ErrorCode, result.Error})
	return string(data)
}

// Message converts the result into the tool message that answers its
// call.
func (result Result) Message() llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    result.Content(),
		ToolCallID: result.CallID,
		IsError:    !result.Success,
	}
}

// Config configures an Executor.
type Config struct {
	// Registry is required.
	Registry *Registry

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Executor runs tool calls. Stateless across calls and safe for
// concurrent use.
type Executor struct {
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewExecutor creates an Executor.
func NewExecutor(config Config) (*Executor, error) {
	if config.Registry == nil {
		return nil, errors.New("toolexec: Registry is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		registry: config.Registry,
		clock:    clk,
		logger:   logger,
		metrics:  config.Metrics,
	}, nil
}

// Registry returns the registry the executor dispatches to.
func (executor *Executor) Registry() *Registry {
	return executor.registry
}

type handlerOutcome struct {
	payload any
	err     error
}

// Execute validates and runs one call. A timeout of zero or less runs
// the handler without a deadline.
func (executor *Executor) Execute(ctx context.Context, scope Scope, call llm.ToolCall, timeout time.Duration) Result {
	started := executor.clock.Now()
	result := Result{
		CallID:          call.ID,
		Name:            call.Name,
		ArgumentsDigest: ArgumentsDigest(call.Arguments),
	}

	finish := func(result Result) Result {
		result.Duration = executor.clock.Now().Sub(started)
		status := "success"
		if !result.Success {
			status = result.ErrorCode
			executor.logger.Info("tool call failed",
				"tool", call.Name,
				"call_id", call.ID,
				"error_code", result.ErrorCode,
				"error", result.Error,
				"duration", result.Duration,
			)
		} else {
			executor.logger.Debug("tool call completed",
				"tool", call.Name,
				"call_id", call.ID,
				"payload_bytes", len(result.Payload),
				"duration", result.Duration,
			)
		}
		executor.metrics.ObserveToolCall(call.Name, status, result.Duration.Seconds())
		return result
	}

	operation, ok := executor.registry.Lookup(call.Name)
	if !ok {
		result.ErrorCode = ErrorUnknownTool
		result.Error = fmt.Sprintf("no operation named %q", call.Name)
		return finish(result)
	}
	result.Attach = operation.Attach

	if call.Malformed {
		result.ErrorCode = ErrorInvalidArguments
		result.Error = "arguments are not a JSON object"
		return finish(result)
	}
	if err := operation.Schema.Validate(call.Arguments); err != nil {
		result.ErrorCode = ErrorInvalidArguments
		result.Error = err.Error()
		return finish(result)
	}

	handlerContext, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- handlerOutcome{err: fmt.Errorf("operation panicked: %v", recovered)}
			}
		}()
		payload, err := operation.Handler(handlerContext, scope, Arguments(call.Arguments))
		done <- handlerOutcome{payload: payload, err: err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := executor.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case outcome := <-done:
		if outcome.err != nil {
			result.ErrorCode = ErrorExecution
			result.Error = outcome.err.Error()
			return finish(result)
		}
		payload, err := json.Marshal(outcome.payload)
		if err != nil {
			result.ErrorCode = ErrorExecution
			result.Error = fmt.Sprintf("encoding result: %v", err)
			return finish(result)
		}
		result.Success = true
		result.Payload = payload
		return finish(result)

	case <-deadline:
		result.ErrorCode = ErrorTimeout
		result.Error = fmt.Sprintf("operation did not finish within %s", timeout)
		return finish(result)

	case <-ctx.Done():
		result.ErrorCode = ErrorCancelled
		result.Error = ctx.Err().Error()
		return finish(result)
	}
}

// ArgumentsDigest returns the hex BLAKE3 digest of the canonical CBOR
// encoding of arguments. Map key order does not affect the digest.
func ArgumentsDigest(arguments map[string]any) string {
	if arguments == nil {
		arguments = map[string]any{}
	}
	encoded, err := codec.Marshal(arguments)
	if err != nil {
		return ""
	}
	hasher := blake3.NewDeriveKey(argumentsDigestContext)
	hasher.Write(encoded)
	return hex.EncodeToString(hasher.Sum(nil))
}

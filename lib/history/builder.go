// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"log/slog"
	"slices"

	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
)

// Pinned is the context included in every window regardless of the
// token budget. Empty fields are omitted.
type Pinned struct {
	Instructions string
	Summary      string
	CartSnapshot string
}

// Messages renders the pinned context as system messages in fixed
// order: instructions, summary, cart snapshot.
func (pinned Pinned) Messages() []llm.Message {
	var messages []llm.Message
	if pinned.Instructions != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: pinned.Instructions})
	}
	if pinned.Summary != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: "Summary of earlier conversation:\n" + pinned.Summary})
	}
	if pinned.CartSnapshot != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: "Current cart:\n" + pinned.CartSnapshot})
	}
	return messages
}

// Window is the result of one Build.
type Window struct {
	// Messages is pinned context, included history oldest-to-newest,
	// then the new user message.
	Messages []llm.Message

	// Included and Excluded count history messages only.
	Included int
	Excluded int

	// HistoryTokens is the estimated cost of the included history.
	HistoryTokens int

	// FixedTokens is the estimated cost of pinned context plus the
	// new user message.
	FixedTokens int
}

// Truncated reports whether any history was left out.
func (window Window) Truncated() bool {
	return window.Excluded > 0
}

// Config configures a Builder.
type Config struct {
	// Estimator defaults to NewCharEstimator(0).
	Estimator Estimator

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Builder assembles token-bounded windows. It holds no per-call state
// and is safe for concurrent use.
type Builder struct {
	estimator Estimator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewBuilder creates a Builder.
func NewBuilder(config Config) *Builder {
	estimator := config.Estimator
	if estimator == nil {
		estimator = NewCharEstimator(0)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		estimator: estimator,
		logger:    logger,
		metrics:   config.Metrics,
	}
}

// Estimator returns the estimator the builder prices messages with.
func (builder *Builder) Estimator() Estimator {
	return builder.estimator
}

// Build assembles the window for a turn. history is the persisted
// conversation in chronological order. budget is the total token
// target; pinned context and the new user message are charged first
// and the remainder goes to history.
func (builder *Builder) Build(history []llm.Message, user llm.Message, pinned Pinned, budget int) Window {
	pinnedMessages := pinned.Messages()

	fixedTokens := builder.estimator.EstimateMessage(user)
	for _, message := range pinnedMessages {
		fixedTokens += builder.estimator.EstimateMessage(message)
	}

	remaining := budget - fixedTokens
	start := len(history)
	historyTokens := 0
	for index := len(history) - 1; index >= 0; index-- {
		cost := builder.estimator.EstimateMessage(history[index])
		if cost > remaining {
			break
		}
		remaining -= cost
		historyTokens += cost
		start = index
	}

	// History must resume at a user message. A leading tool result has
	// lost its tool-call message, and a leading assistant reply has lost
	// the question it answers; some providers reject either.
	for start < len(history) && history[start].Role != llm.RoleUser {
		historyTokens -= builder.estimator.EstimateMessage(history[start])
		start++
	}

	included := history[start:]
	window := Window{
		Messages:      make([]llm.Message, 0, len(pinnedMessages)+len(included)+1),
		Included:      len(included),
		Excluded:      start,
		HistoryTokens: historyTokens,
		FixedTokens:   fixedTokens,
	}
	window.Messages = append(window.Messages, pinnedMessages...)
	window.Messages = append(window.Messages, slices.Clone(included)...)
	window.Messages = append(window.Messages, user)

	if window.Truncated() {
		builder.logger.Info("history truncated",
			"included", window.Included,
			"excluded", window.Excluded,
			"history_tokens", window.HistoryTokens,
			"fixed_tokens", window.FixedTokens,
			"budget", budget,
		)
		builder.metrics.ObserveTruncation(window.Excluded)
	}
	if fixedTokens > budget {
		builder.logger.Warn("pinned context and user message exceed token budget",
			"fixed_tokens", fixedTokens,
			"budget", budget,
		)
	}

	return window
}

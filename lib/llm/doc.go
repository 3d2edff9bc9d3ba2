// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-agnostic interface for language
// model APIs with tool-use support.
//
// The only abstraction is [Provider], a single blocking Complete call.
// Each implementation translates between the common types in this
// package and its vendor's wire format at the transport boundary, so
// callers above it (the reliability layer, the turn orchestrator) see
// one response shape: assistant text plus zero or more [ToolCall]
// values.
//
// Provider failures that carry an HTTP status are reported as
// [*ProviderError], whose classification methods ([ProviderError.IsRateLimited],
// [ProviderError.IsTransient], [ProviderError.IsAuth]) drive the
// retry and circuit-breaker policy.
//
// Current provider implementations:
//   - [OpenAI]: chat completions via github.com/sashabaranov/go-openai,
//     usable with any OpenAI-compatible endpoint
//   - [Anthropic]: Claude models via the Messages API (/v1/messages)
package llm

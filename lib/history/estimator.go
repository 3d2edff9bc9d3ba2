// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/bureau-foundation/concierge/lib/llm"
)

// Estimator estimates the token cost of messages. Implementations
// must be safe for concurrent use: one estimator serves every turn.
type Estimator interface {
	// EstimateMessage returns the estimated tokens for one message,
	// including any fixed per-message overhead.
	EstimateMessage(message llm.Message) int

	// RecordUsage calibrates against the provider's reported input
	// token count for the messages that were sent.
	RecordUsage(messages []llm.Message, actualInputTokens int64)
}

// defaultCharactersPerToken is the initial ratio before calibration.
// 4.0 is conservative for English text: BPE tokenizers typically
// average 3.5-4.5 characters per token, and overestimating triggers
// truncation slightly early rather than overflowing the context.
const defaultCharactersPerToken = 4.0

// defaultSmoothingFactor is the EMA weight of a new observation.
const defaultSmoothingFactor = 0.3

// CharEstimator estimates token counts from character counts using an
// adaptive ratio that calibrates from actual provider usage.
//
// On the first observation the default ratio is replaced by the
// observed one; later observations blend in via exponential moving
// average to smooth out variation between text-heavy and JSON-heavy
// turns. The observed ratio absorbs the provider's fixed overhead for
// tool definitions, which keeps estimates on the conservative side.
type CharEstimator struct {
	mutex              sync.Mutex
	charactersPerToken float64
	smoothingFactor    float64
	observationCount   int
	messageOverhead    int
}

// NewCharEstimator creates a CharEstimator with the default ratio of
// 4.0 characters per token. messageOverhead is added to every
// message's estimate to account for role and framing tokens.
func NewCharEstimator(messageOverhead int) *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
		messageOverhead:    max(messageOverhead, 0),
	}
}

// EstimateMessage rounds up: overestimating is the safe direction.
func (estimator *CharEstimator) EstimateMessage(message llm.Message) int {
	estimator.mutex.Lock()
	ratio := estimator.charactersPerToken
	estimator.mutex.Unlock()

	characters := messageCharCount(message)
	return estimator.messageOverhead + int(math.Ceil(float64(characters)/ratio))
}

// RecordUsage updates the ratio from a provider usage report.
// Reports with no usable signal (zero tokens, zero characters, or
// fewer tokens than the fixed overhead) are ignored.
func (estimator *CharEstimator) RecordUsage(messages []llm.Message, actualInputTokens int64) {
	characters := 0
	for _, message := range messages {
		characters += messageCharCount(message)
	}
	contentTokens := actualInputTokens - int64(estimator.messageOverhead*len(messages))
	if characters == 0 || contentTokens <= 0 {
		return
	}

	observedRatio := float64(characters) / float64(contentTokens)

	estimator.mutex.Lock()
	defer estimator.mutex.Unlock()

	estimator.observationCount++
	if estimator.observationCount == 1 {
		estimator.charactersPerToken = observedRatio
		return
	}
	estimator.charactersPerToken = estimator.smoothingFactor*observedRatio +
		(1.0-estimator.smoothingFactor)*estimator.charactersPerToken
}

// Ratio returns the current characters-per-token ratio.
func (estimator *CharEstimator) Ratio() float64 {
	estimator.mutex.Lock()
	defer estimator.mutex.Unlock()
	return estimator.charactersPerToken
}

// messageCharCount counts the characters a provider will tokenize for
// a message: text, tool call names and encoded arguments, and the
// tool call identifier of a result.
func messageCharCount(message llm.Message) int {
	count := len(message.Content) + len(message.ToolCallID)
	for _, call := range message.ToolCalls {
		count += len(call.ID) + len(call.Name)
		if len(call.Arguments) > 0 {
			encoded, err := json.Marshal(call.Arguments)
			if err == nil {
				count += len(encoded)
			}
		}
	}
	return count
}

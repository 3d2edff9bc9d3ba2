// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const openaiPrefix = "llm/openai"

// OpenAI implements [Provider] for the Chat Completions API and any
// compatible endpoint (OpenRouter, local gateways).
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI provider. An empty baseURL uses the
// library's default endpoint. A nil httpClient uses the library's
// default client.
func NewOpenAI(httpClient *http.Client, baseURL, apiKey string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &OpenAI{client: openai.NewClientWithConfig(config)}
}

// Complete sends a chat completion request and returns the first
// choice normalized to the common response shape.
func (provider *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	wireResponse, err := provider.client.CreateChatCompletion(ctx, buildOpenAIRequest(request))
	if err != nil {
		return nil, translateOpenAIError(err)
	}
	if len(wireResponse.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", openaiPrefix)
	}

	choice := wireResponse.Choices[0]
	response := &Response{
		Content:    choice.Message.Content,
		StopReason: mapOpenAIFinishReason(choice.FinishReason),
		Model:      wireResponse.Model,
		Usage: Usage{
			InputTokens:  int64(wireResponse.Usage.PromptTokens),
			OutputTokens: int64(wireResponse.Usage.CompletionTokens),
		},
	}
	for _, call := range choice.Message.ToolCalls {
		arguments, ok := decodeArguments([]byte(call.Function.Arguments))
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: arguments,
			Malformed: !ok,
		})
	}
	return response, nil
}

func buildOpenAIRequest(request Request) openai.ChatCompletionRequest {
	wireRequest := openai.ChatCompletionRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}

	for _, message := range request.Messages {
		wire := openai.ChatCompletionMessage{
			Role:       string(message.Role),
			Content:    message.Content,
			ToolCallID: message.ToolCallID,
		}
		for _, call := range message.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(encodeArguments(call.Arguments)),
				},
			})
		}
		wireRequest.Messages = append(wireRequest.Messages, wire)
	}

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	return wireRequest
}

// translateOpenAIError maps the library's HTTP error types onto
// ProviderError so classification is uniform across providers.
// Network errors pass through wrapped.
func translateOpenAIError(err error) error {
	var apiError *openai.APIError
	if errors.As(err, &apiError) {
		return &ProviderError{
			StatusCode: apiError.HTTPStatusCode,
			Type:       apiError.Type,
			Message:    apiError.Message,
		}
	}
	var requestError *openai.RequestError
	if errors.As(err, &requestError) {
		return &ProviderError{
			StatusCode: requestError.HTTPStatusCode,
			Message:    requestError.Error(),
		}
	}
	return fmt.Errorf("%s: sending request: %w", openaiPrefix, err)
}

func mapOpenAIFinishReason(reason openai.FinishReason) StopReason {
	switch reason {
	case openai.FinishReasonStop:
		return StopReasonEndTurn
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return StopReasonToolUse
	case openai.FinishReasonLength:
		return StopReasonMaxTokens
	default:
		return StopReason(reason)
	}
}

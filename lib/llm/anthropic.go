// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicPrefix         = "llm/anthropic"
)

// Anthropic implements [Provider] for the Anthropic Messages API.
type Anthropic struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewAnthropic creates an Anthropic provider. An empty baseURL uses
// the public API endpoint. A nil httpClient uses http.DefaultClient.
func NewAnthropic(httpClient *http.Client, baseURL, apiKey string) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &Anthropic{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Complete sends a request and returns the full response.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := buildAnthropicRequest(request)

	headers := http.Header{}
	headers.Set("anthropic-version", anthropicVersion)
	if provider.apiKey != "" {
		headers.Set("x-api-key", provider.apiKey)
	}

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.baseURL+"/v1/messages", wireRequest, anthropicPrefix, headers)
	if err != nil {
		return nil, err
	}

	return decodeResponse[anthropicResponse](httpResponse, anthropicPrefix)
}

// buildAnthropicRequest converts our types to Anthropic wire format.
// System messages are hoisted into the top-level system field.
// Consecutive tool results are merged into one user message, which
// the Messages API requires after an assistant tool_use turn. Leading
// messages before the first user turn are dropped.
func buildAnthropicRequest(request Request) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}

	var system []string
	for _, message := range request.Messages {
		switch message.Role {
		case RoleSystem:
			system = append(system, message.Content)
		case RoleTool:
			block := toolResultBlock(message)
			last := len(wireRequest.Messages) - 1
			if last >= 0 && wireRequest.Messages[last].Role == "user" && isToolResultMessage(wireRequest.Messages[last]) {
				wireRequest.Messages[last].Content = append(wireRequest.Messages[last].Content, block)
				continue
			}
			wireRequest.Messages = append(wireRequest.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{block},
			})
		case RoleAssistant:
			wire := anthropicMessage{Role: "assistant"}
			if message.Content != "" {
				wire.Content = append(wire.Content, anthropicContentBlock{Type: "text", Text: message.Content})
			}
			for _, call := range message.ToolCalls {
				wire.Content = append(wire.Content, anthropicContentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: encodeArguments(call.Arguments),
				})
			}
			wireRequest.Messages = append(wireRequest.Messages, wire)
		default:
			wireRequest.Messages = append(wireRequest.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: message.Content}},
			})
		}
	}
	wireRequest.System = strings.Join(system, "\n\n")

	// The Messages API requires the first message to be a user turn.
	// Assistant replies and tool results ahead of it have lost the
	// message they answer.
	first := 0
	for first < len(wireRequest.Messages) {
		message := wireRequest.Messages[first]
		if message.Role == "user" && !isToolResultMessage(message) {
			break
		}
		first++
	}
	wireRequest.Messages = wireRequest.Messages[first:]

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return wireRequest
}

func toolResultBlock(message Message) anthropicContentBlock {
	// Content is a string, but the wire format expects
	// json.RawMessage. Marshal the string to a JSON string value.
	contentJSON, _ := json.Marshal(message.Content)
	return anthropicContentBlock{
		Type:      "tool_result",
		ToolUseID: message.ToolCallID,
		Content:   contentJSON,
		IsError:   message.IsError,
	}
}

func isToolResultMessage(message anthropicMessage) bool {
	return len(message.Content) > 0 && message.Content[0].Type == "tool_result"
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (wireResponse *anthropicResponse) toResponse() *Response {
	response := &Response{
		StopReason: mapAnthropicStopReason(wireResponse.StopReason),
		Model:      wireResponse.Model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.InputTokens,
			OutputTokens: wireResponse.Usage.OutputTokens,
		},
	}

	var text []string
	for _, block := range wireResponse.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			arguments, ok := decodeArguments(block.Input)
			response.ToolCalls = append(response.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: arguments,
				Malformed: !ok,
			})
		default:
			text = append(text, fmt.Sprintf("[%s] %s", block.Type, block.Text))
		}
	}
	response.Content = strings.Join(text, "\n")
	return response
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return StopReasonEndTurn
	case "tool_use":
		return StopReasonToolUse
	case "max_tokens":
		return StopReasonMaxTokens
	default:
		return StopReason(reason)
	}
}

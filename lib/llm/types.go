// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "encoding/json"

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether role is one of the four known roles.
func (role Role) Valid() bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one entry in the sequence sent to a provider.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that request tool
	// execution.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string

	// IsError marks a RoleTool message that carries a failed result.
	IsError bool
}

// ToolCall is a provider's request to invoke a named operation.
type ToolCall struct {
	// ID is provider-assigned and unique within one response.
	ID   string
	Name string

	// Arguments is the decoded argument object. Nil when the provider
	// sent no arguments or Malformed is set.
	Arguments map[string]any

	// Malformed is set when the provider's argument payload was not a
	// JSON object.
	Malformed bool
}

// ToolDefinition describes a tool offered to the provider.
type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema json.RawMessage
}

// Request is a single completion request.
type Request struct {
	Model     string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

// StopReason explains why the provider stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a provider reply normalized to the common shape.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
	Model      string
}

// HasToolCalls reports whether the response requests tool execution.
func (response *Response) HasToolCalls() bool {
	return len(response.ToolCalls) > 0
}

// AssistantMessage converts the response into the assistant message
// that must precede its tool results in the next request.
func (response *Response) AssistantMessage() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   response.Content,
		ToolCalls: response.ToolCalls,
	}
}

// decodeArguments parses a JSON argument payload. Empty input yields
// an empty map.
func decodeArguments(raw []byte) (map[string]any, bool) {
	if len(raw) == 0 {
		return map[string]any{}, true
	}
	var arguments map[string]any
	if err := json.Unmarshal(raw, &arguments); err != nil {
		return nil, false
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	return arguments, true
}

// encodeArguments is the inverse of decodeArguments. A nil map
// encodes as an empty object.
func encodeArguments(arguments map[string]any) json.RawMessage {
	if arguments == nil {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(arguments)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/concierge/lib/codec"
	"github.com/bureau-foundation/concierge/lib/llm"
)

// DefaultCompressThreshold is the packed body size above which
// message and action bodies are zstd-compressed.
const DefaultCompressThreshold = 4096

// messageRecord is the stored body of a Message. Timestamps are Unix
// nanoseconds so they round-trip without loss.
type messageRecord struct {
	ID         string           `cbor:"id"`
	Role       string           `cbor:"role"`
	Content    string           `cbor:"content,omitempty"`
	Attachment []byte           `cbor:"attachment,omitempty"`
	ToolCalls  []toolCallRecord `cbor:"tool_calls,omitempty"`
	ToolCallID string           `cbor:"tool_call_id,omitempty"`
	IsError    bool             `cbor:"is_error,omitempty"`
	CreatedAt  int64            `cbor:"created_at"`
}

type toolCallRecord struct {
	ID        string         `cbor:"id"`
	Name      string         `cbor:"name"`
	Arguments map[string]any `cbor:"arguments,omitempty"`
	Malformed bool           `cbor:"malformed,omitempty"`
}

type actionRecord struct {
	ID              string         `cbor:"id"`
	Kind            string         `cbor:"kind"`
	Tool            string         `cbor:"tool,omitempty"`
	CallID          string         `cbor:"call_id,omitempty"`
	Arguments       map[string]any `cbor:"arguments,omitempty"`
	ArgumentsDigest string         `cbor:"arguments_digest,omitempty"`
	Success         bool           `cbor:"success,omitempty"`
	Result          []byte         `cbor:"result,omitempty"`
	ErrorCode       string         `cbor:"error_code,omitempty"`
	Error           string         `cbor:"error,omitempty"`
	Duration        int64          `cbor:"duration,omitempty"`
	Iteration       int            `cbor:"iteration,omitempty"`
	CreatedAt       int64          `cbor:"created_at"`
}

func packMessage(message Message, threshold int) ([]byte, error) {
	record := messageRecord{
		ID:         message.ID,
		Role:       string(message.Role),
		Content:    message.Content,
		Attachment: message.Attachment,
		ToolCallID: message.ToolCallID,
		IsError:    message.IsError,
		CreatedAt:  message.CreatedAt.UnixNano(),
	}
	for _, call := range message.ToolCalls {
		record.ToolCalls = append(record.ToolCalls, toolCallRecord{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Malformed: call.Malformed,
		})
	}
	body, err := codec.Pack(record, threshold)
	if err != nil {
		return nil, fmt.Errorf("conversation: packing message %s: %w", message.ID, err)
	}
	return body, nil
}

func unpackMessage(body []byte) (Message, error) {
	var record messageRecord
	if err := codec.Unpack(body, &record); err != nil {
		return Message{}, fmt.Errorf("conversation: unpacking message: %w", err)
	}
	message := Message{
		ID:         record.ID,
		Role:       llm.Role(record.Role),
		Content:    record.Content,
		Attachment: record.Attachment,
		ToolCallID: record.ToolCallID,
		IsError:    record.IsError,
		CreatedAt:  time.Unix(0, record.CreatedAt).UTC(),
	}
	for _, call := range record.ToolCalls {
		message.ToolCalls = append(message.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Malformed: call.Malformed,
		})
	}
	return message, nil
}

func packAction(action Action, threshold int) ([]byte, error) {
	body, err := codec.Pack(actionRecord{
		ID:              action.ID,
		Kind:            string(action.Kind),
		Tool:            action.Tool,
		CallID:          action.CallID,
		Arguments:       action.Arguments,
		ArgumentsDigest: action.ArgumentsDigest,
		Success:         action.Success,
		Result:          action.Result,
		ErrorCode:       action.ErrorCode,
		Error:           action.Error,
		Duration:        int64(action.Duration),
		Iteration:       action.Iteration,
		CreatedAt:       action.CreatedAt.UnixNano(),
	}, threshold)
	if err != nil {
		return nil, fmt.Errorf("conversation: packing action %s: %w", action.ID, err)
	}
	return body, nil
}

func unpackAction(body []byte) (Action, error) {
	var record actionRecord
	if err := codec.Unpack(body, &record); err != nil {
		return Action{}, fmt.Errorf("conversation: unpacking action: %w", err)
	}
	return Action{
		ID:              record.ID,
		Kind:            ActionKind(record.Kind),
		Tool:            record.Tool,
		CallID:          record.CallID,
		Arguments:       record.Arguments,
		ArgumentsDigest: record.ArgumentsDigest,
		Success:         record.Success,
		Result:          record.Result,
		ErrorCode:       record.ErrorCode,
		Error:           record.Error,
		Duration:        time.Duration(record.Duration),
		Iteration:       record.Iteration,
		CreatedAt:       time.Unix(0, record.CreatedAt).UTC(),
	}, nil
}

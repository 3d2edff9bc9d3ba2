// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/concierge/lib/llm"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation: not found")

	// ErrConflict is returned when a turn tries to create a
	// conversation whose identifier is already taken.
	ErrConflict = errors.New("conversation: already exists")
)

// Conversation is the unit of persisted chat state.
type Conversation struct {
	ID     string
	UserID string

	// Messages is the canonical turn history, oldest first.
	Messages []Message

	// Actions is the audit log, oldest first.
	Actions []Action

	Active bool

	// Summary is an optional rolling summary of older history.
	Summary string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// History converts the persisted messages to provider messages.
func (conversation *Conversation) History() []llm.Message {
	history := make([]llm.Message, len(conversation.Messages))
	for i, message := range conversation.Messages {
		history[i] = message.LLM()
	}
	return history
}

// Apply appends a committed turn. Stores call it after the write
// succeeds, so a failed write leaves the conversation untouched.
func (conversation *Conversation) Apply(turn Turn) {
	conversation.Messages = append(conversation.Messages, turn.Messages...)
	conversation.Actions = append(conversation.Actions, turn.Actions...)
	conversation.UpdatedAt = turn.At
}

// Message is one persisted utterance.
type Message struct {
	ID      string
	Role    llm.Role
	Content string

	// Attachment is structured data shown alongside the text, opaque
	// to the orchestrator (search results, a cart snapshot).
	Attachment json.RawMessage

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []llm.ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string

	IsError   bool
	CreatedAt time.Time
}

// NewMessage builds a message with a fresh identifier from a provider
// message.
func NewMessage(message llm.Message, at time.Time) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       message.Role,
		Content:    message.Content,
		ToolCalls:  message.ToolCalls,
		ToolCallID: message.ToolCallID,
		IsError:    message.IsError,
		CreatedAt:  at,
	}
}

// LLM converts the message to its provider form. Attachments are not
// sent to the provider.
func (message Message) LLM() llm.Message {
	return llm.Message{
		Role:       message.Role,
		Content:    message.Content,
		ToolCalls:  message.ToolCalls,
		ToolCallID: message.ToolCallID,
		IsError:    message.IsError,
	}
}

// ActionKind distinguishes audit entries.
type ActionKind string

const (
	ActionToolCall                ActionKind = "tool_call"
	ActionIterationBudgetExceeded ActionKind = "iteration_budget_exceeded"
	ActionTurnBudgetExceeded      ActionKind = "turn_budget_exceeded"
)

// Action is one audit log entry. Tool-call actions carry the call and
// its outcome; cutoff markers carry only Kind, Iteration and
// CreatedAt.
type Action struct {
	ID   string
	Kind ActionKind

	Tool      string
	CallID    string
	Arguments map[string]any

	// ArgumentsDigest identifies the argument set independent of key
	// order.
	ArgumentsDigest string

	Success   bool
	Result    json.RawMessage
	ErrorCode string
	Error     string
	Duration  time.Duration

	// Iteration is the provider round (1-based) that produced the
	// action.
	Iteration int

	CreatedAt time.Time
}

// Turn is everything one user turn adds to a conversation.
type Turn struct {
	ConversationID string
	UserID         string

	// Create asks the store to create the conversation. Appending to
	// an existing identifier with Create set fails with ErrConflict;
	// appending to a missing one without it fails with ErrNotFound.
	Create bool

	// Messages holds the user message, any intermediate assistant and
	// tool messages, and the final assistant message, in order.
	Messages []Message
	Actions  []Action

	At time.Time
}

func (turn Turn) validate() error {
	if turn.ConversationID == "" {
		return fmt.Errorf("conversation: turn has no conversation id")
	}
	if turn.Create && turn.UserID == "" {
		return fmt.Errorf("conversation: new conversation %s has no user id", turn.ConversationID)
	}
	if len(turn.Messages) == 0 {
		return fmt.Errorf("conversation: turn for %s has no messages", turn.ConversationID)
	}
	for i, message := range turn.Messages {
		if !message.Role.Valid() {
			return fmt.Errorf("conversation: turn message %d has invalid role %q", i, message.Role)
		}
	}
	return nil
}

// Store persists conversations. Implementations are safe for
// concurrent use.
type Store interface {
	// Load returns the conversation or ErrNotFound.
	Load(ctx context.Context, id string) (*Conversation, error)

	// AppendTurn writes every message and action of turn atomically.
	AppendTurn(ctx context.Context, turn Turn) error

	// SetSummary replaces the rolling summary.
	SetSummary(ctx context.Context, id, summary string) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, id string, active bool) error

	Close() error
}

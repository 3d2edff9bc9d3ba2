// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/conversation"
	"github.com/bureau-foundation/concierge/lib/history"
	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
	"github.com/bureau-foundation/concierge/lib/toolexec"
)

// State is a turn's position in the state machine.
type State string

const (
	StateBuildingHistory  State = "building_history"
	StateAwaitingProvider State = "awaiting_provider"
	StateExecutingTools   State = "executing_tools"
	StateFinalizing       State = "finalizing"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxIterations    = 10
	DefaultToolTimeout      = 5 * time.Second
	DefaultTokenBudget      = 3000
	DefaultMaxParallelTools = 8
	DefaultMaxTokens        = 1024
	DefaultPartialReply     = "I had to stop before finishing. Here is where things stand; ask me to continue if you need more."
)

// SnapshotSource renders a user's current cart for the pinned
// context. An empty string means nothing to pin.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (string, error)
}

// Config holds an Orchestrator's collaborators and limits.
type Config struct {
	// Provider is normally a *reliability.Invoker wrapping the real
	// transport. Required.
	Provider llm.Provider

	// Executor runs tool calls and supplies the tool definitions sent
	// with every provider request. Required.
	Executor *toolexec.Executor

	// History builds the bounded message window. Required.
	History *history.Builder

	// Store loads and persists conversations. Required.
	Store conversation.Store

	// Snapshots supplies the pinned cart. Optional.
	Snapshots SnapshotSource

	Model     string
	MaxTokens int

	// SystemPrompt is pinned at the start of every window.
	SystemPrompt string

	// TokenBudget is the history window's token target.
	TokenBudget int

	// MaxIterations caps provider calls per turn.
	MaxIterations int

	// ToolTimeout bounds each tool call.
	ToolTimeout time.Duration

	// TurnTimeout is the wall-clock budget after which the turn is
	// cut off before the next provider call. Zero disables it.
	TurnTimeout time.Duration

	// MaxParallelTools bounds concurrent tool executions per response.
	MaxParallelTools int

	// PartialReply is appended to the reply of a cut-off turn.
	PartialReply string

	// UnavailableReply overrides the user message of unavailable and
	// transport failures.
	UnavailableReply string

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Reply is the outcome of a completed turn.
type Reply struct {
	ConversationID string
	Text           string

	// Attachment is the payload of the last successful tool result
	// whose operation is marked attachable.
	Attachment json.RawMessage

	// Iterations is the number of provider calls made.
	Iterations int

	// ToolCalls is the number of tool calls executed.
	ToolCalls int

	// Cutoff is set to the marker action kind when the turn stopped
	// early.
	Cutoff conversation.ActionKind
}

// Partial reports whether the turn was cut off.
func (reply *Reply) Partial() bool {
	return reply.Cutoff != ""
}

// Orchestrator runs turns. It keeps no per-turn state between calls
// and is safe for concurrent use across conversations. Turns on the
// same conversation must be serialized by the caller.
type Orchestrator struct {
	provider  llm.Provider
	executor  *toolexec.Executor
	history   *history.Builder
	store     conversation.Store
	snapshots SnapshotSource

	model            string
	maxTokens        int
	systemPrompt     string
	tokenBudget      int
	maxIterations    int
	toolTimeout      time.Duration
	turnTimeout      time.Duration
	maxParallelTools int
	partialReply     string
	unavailableReply string

	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New validates config and applies defaults.
func New(config Config) (*Orchestrator, error) {
	switch {
	case config.Provider == nil:
		return nil, errors.New("orchestrator: Provider is required")
	case config.Executor == nil:
		return nil, errors.New("orchestrator: Executor is required")
	case config.History == nil:
		return nil, errors.New("orchestrator: History is required")
	case config.Store == nil:
		return nil, errors.New("orchestrator: Store is required")
	case config.MaxIterations < 0, config.TokenBudget < 0, config.ToolTimeout < 0,
		config.TurnTimeout < 0, config.MaxParallelTools < 0:
		return nil, errors.New("orchestrator: limits must not be negative")
	}

	orchestrator := &Orchestrator{
		provider:         config.Provider,
		executor:         config.Executor,
		history:          config.History,
		store:            config.Store,
		snapshots:        config.Snapshots,
		model:            config.Model,
		maxTokens:        withDefault(config.MaxTokens, DefaultMaxTokens),
		systemPrompt:     config.SystemPrompt,
		tokenBudget:      withDefault(config.TokenBudget, DefaultTokenBudget),
		maxIterations:    withDefault(config.MaxIterations, DefaultMaxIterations),
		toolTimeout:      withDefault(config.ToolTimeout, DefaultToolTimeout),
		turnTimeout:      config.TurnTimeout,
		maxParallelTools: withDefault(config.MaxParallelTools, DefaultMaxParallelTools),
		partialReply:     config.PartialReply,
		unavailableReply: config.UnavailableReply,
		clock:            config.Clock,
		logger:           config.Logger,
		metrics:          config.Metrics,
	}
	if orchestrator.partialReply == "" {
		orchestrator.partialReply = DefaultPartialReply
	}
	if orchestrator.clock == nil {
		orchestrator.clock = clock.Real()
	}
	if orchestrator.logger == nil {
		orchestrator.logger = slog.New(slog.DiscardHandler)
	}
	return orchestrator, nil
}

func withDefault[T int | time.Duration](value, fallback T) T {
	if value == 0 {
		return fallback
	}
	return value
}

// turn is the working state of one RunTurn call.
type turn struct {
	conversationID string
	userID         string
	create         bool
	logger         *slog.Logger
	state          State
	started        time.Time

	// working is the message sequence sent to the provider.
	working []llm.Message

	// messages and actions are what finalizing persists.
	messages []conversation.Message
	actions  []conversation.Action

	iterations int
	toolCalls  int
	attachment json.RawMessage
	lastText   string
}

// RunTurn answers text on behalf of userID in the given conversation.
// An empty conversationID starts a new conversation; an unknown one
// is created under that identifier. Failures are *TurnError.
func (orchestrator *Orchestrator) RunTurn(ctx context.Context, conversationID, userID, text string) (*Reply, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	current := &turn{
		conversationID: conversationID,
		userID:         userID,
		logger:         orchestrator.logger.With("conversation_id", conversationID, "user_id", userID),
		started:        orchestrator.clock.Now(),
	}

	reply, err := orchestrator.run(ctx, current, text)
	if err != nil {
		var turnErr *TurnError
		if !errors.As(err, &turnErr) {
			turnErr = &TurnError{Kind: KindProvider, Err: err}
		}
		turnErr.ConversationID = conversationID
		if turnErr.Kind == KindUnavailable || turnErr.Kind == KindTransport {
			turnErr.message = orchestrator.unavailableReply
		}
		current.logger.Warn("turn failed",
			"state", current.state,
			"kind", turnErr.Kind,
			"iteration", current.iterations,
			"error", turnErr.Err,
		)
		orchestrator.transition(current, StateFailed)
		orchestrator.metrics.ObserveTurn(string(turnErr.Kind), current.iterations)
		return nil, turnErr
	}

	outcome := "done"
	if reply.Partial() {
		outcome = "cutoff"
	}
	orchestrator.metrics.ObserveTurn(outcome, reply.Iterations)
	current.logger.Info("turn completed",
		"iterations", reply.Iterations,
		"tool_calls", reply.ToolCalls,
		"cutoff", reply.Cutoff,
		"duration", orchestrator.clock.Now().Sub(current.started),
	)
	return reply, nil
}

func (orchestrator *Orchestrator) run(ctx context.Context, current *turn, text string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &TurnError{Kind: KindInvalidRequest, Err: errors.New("empty message")}
	}
	if current.userID == "" {
		return nil, &TurnError{Kind: KindInvalidRequest, Err: errors.New("missing user id")}
	}

	orchestrator.transition(current, StateBuildingHistory)
	existing, err := orchestrator.load(ctx, current)
	if err != nil {
		return nil, err
	}

	userMessage := llm.Message{Role: llm.RoleUser, Content: text}
	current.messages = append(current.messages, conversation.NewMessage(userMessage, current.started))

	var pastMessages []llm.Message
	pinned := history.Pinned{
		Instructions: orchestrator.systemPrompt,
		CartSnapshot: orchestrator.cartSnapshot(ctx, current),
	}
	if existing != nil {
		pastMessages = existing.History()
		pinned.Summary = existing.Summary
	}
	window := orchestrator.history.Build(pastMessages, userMessage, pinned, orchestrator.tokenBudget)
	current.working = window.Messages

	tools := orchestrator.executor.Registry().Definitions()
	var final *llm.Response
	var cutoff conversation.ActionKind
	for {
		if current.iterations >= orchestrator.maxIterations {
			cutoff = conversation.ActionIterationBudgetExceeded
			break
		}
		if current.iterations > 0 && orchestrator.turnBudgetSpent(current) {
			cutoff = conversation.ActionTurnBudgetExceeded
			break
		}
		current.iterations++

		orchestrator.transition(current, StateAwaitingProvider)
		response, err := orchestrator.complete(ctx, current, tools)
		if err != nil {
			return nil, err
		}
		if !response.HasToolCalls() {
			final = response
			break
		}
		if err := checkCallIDs(response.ToolCalls); err != nil {
			return nil, &TurnError{Kind: KindProvider, Err: err}
		}

		orchestrator.transition(current, StateExecutingTools)
		results := orchestrator.executeAll(ctx, current, response.ToolCalls)
		orchestrator.record(current, response, results)
	}

	orchestrator.transition(current, StateFinalizing)
	reply := &Reply{
		ConversationID: current.conversationID,
		Attachment:     current.attachment,
		Iterations:     current.iterations,
		ToolCalls:      current.toolCalls,
		Cutoff:         cutoff,
	}
	if final != nil {
		reply.Text = final.Content
	} else {
		reply.Text = orchestrator.partialText(current)
		current.actions = append(current.actions, conversation.Action{
			ID:        uuid.NewString(),
			Kind:      cutoff,
			Iteration: current.iterations,
			CreatedAt: orchestrator.clock.Now(),
		})
		current.logger.Info("turn cut off",
			"reason", cutoff,
			"iterations", current.iterations,
			"tool_calls", current.toolCalls,
		)
	}

	finalMessage := conversation.NewMessage(
		llm.Message{Role: llm.RoleAssistant, Content: reply.Text},
		orchestrator.clock.Now(),
	)
	finalMessage.Attachment = current.attachment
	current.messages = append(current.messages, finalMessage)

	err = orchestrator.store.AppendTurn(ctx, conversation.Turn{
		ConversationID: current.conversationID,
		UserID:         current.userID,
		Create:         current.create,
		Messages:       current.messages,
		Actions:        current.actions,
		At:             orchestrator.clock.Now(),
	})
	if err != nil {
		return nil, &TurnError{Kind: KindPersistence, Err: err}
	}

	orchestrator.transition(current, StateDone)
	return reply, nil
}

// load fetches the conversation and checks the caller may extend it.
// A missing conversation is marked for creation and yields nil.
func (orchestrator *Orchestrator) load(ctx context.Context, current *turn) (*conversation.Conversation, error) {
	existing, err := orchestrator.store.Load(ctx, current.conversationID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		current.create = true
		return nil, nil
	case err != nil:
		return nil, &TurnError{Kind: KindPersistence, Err: fmt.Errorf("loading conversation: %w", err)}
	case existing.UserID != current.userID:
		return nil, &TurnError{Kind: KindInvalidRequest, Err: errors.New("conversation belongs to another user")}
	case !existing.Active:
		return nil, &TurnError{Kind: KindInvalidRequest, Err: errors.New("conversation is inactive")}
	}
	return existing, nil
}

func (orchestrator *Orchestrator) cartSnapshot(ctx context.Context, current *turn) string {
	if orchestrator.snapshots == nil {
		return ""
	}
	snapshot, err := orchestrator.snapshots.Snapshot(ctx, current.userID)
	if err != nil {
		current.logger.Warn("cart snapshot unavailable, continuing without it", "error", err)
		return ""
	}
	return snapshot
}

func (orchestrator *Orchestrator) turnBudgetSpent(current *turn) bool {
	if orchestrator.turnTimeout <= 0 {
		return false
	}
	return orchestrator.clock.Now().Sub(current.started) >= orchestrator.turnTimeout
}

func (orchestrator *Orchestrator) complete(ctx context.Context, current *turn, tools []llm.ToolDefinition) (*llm.Response, error) {
	request := llm.Request{
		Model:     orchestrator.model,
		Messages:  current.working,
		Tools:     tools,
		MaxTokens: orchestrator.maxTokens,
	}
	response, err := orchestrator.provider.Complete(ctx, request)
	if err != nil {
		kind := providerFailureKind(err)
		if ctx.Err() != nil && kind == KindProvider {
			kind = KindTransport
		}
		return nil, &TurnError{Kind: kind, Err: err}
	}
	orchestrator.history.Estimator().RecordUsage(current.working, response.Usage.InputTokens)
	current.logger.Debug("provider responded",
		"iteration", current.iterations,
		"stop_reason", response.StopReason,
		"tool_calls", len(response.ToolCalls),
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
	)
	return response, nil
}

// executeAll runs every call concurrently and waits for all of them.
// Results are in call order. A failing call never cancels its
// siblings: each result goes back to the provider as data.
func (orchestrator *Orchestrator) executeAll(ctx context.Context, current *turn, calls []llm.ToolCall) []toolexec.Result {
	scope := toolexec.Scope{UserID: current.userID, ConversationID: current.conversationID}
	results := make([]toolexec.Result, len(calls))

	var group errgroup.Group
	group.SetLimit(orchestrator.maxParallelTools)
	for index, call := range calls {
		group.Go(func() error {
			results[index] = orchestrator.executor.Execute(ctx, scope, call, orchestrator.toolTimeout)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// record appends the assistant tool-call message and its results to
// both the working sequence and the pending turn.
func (orchestrator *Orchestrator) record(current *turn, response *llm.Response, results []toolexec.Result) {
	now := orchestrator.clock.Now()

	assistant := response.AssistantMessage()
	current.working = append(current.working, assistant)
	current.messages = append(current.messages, conversation.NewMessage(assistant, now))
	if response.Content != "" {
		current.lastText = response.Content
	}

	for index, result := range results {
		message := result.Message()
		current.working = append(current.working, message)
		current.messages = append(current.messages, conversation.NewMessage(message, now))

		call := response.ToolCalls[index]
		current.actions = append(current.actions, conversation.Action{
			ID:              uuid.NewString(),
			Kind:            conversation.ActionToolCall,
			Tool:            call.Name,
			CallID:          call.ID,
			Arguments:       call.Arguments,
			ArgumentsDigest: result.ArgumentsDigest,
			Success:         result.Success,
			Result:          result.Payload,
			ErrorCode:       result.ErrorCode,
			Error:           result.Error,
			Duration:        result.Duration,
			Iteration:       current.iterations,
			CreatedAt:       now,
		})
		if result.Success && result.Attach {
			current.attachment = result.Payload
		}
	}
	current.toolCalls += len(results)
}

func (orchestrator *Orchestrator) partialText(current *turn) string {
	if current.lastText == "" {
		return orchestrator.partialReply
	}
	return current.lastText + "\n\n" + orchestrator.partialReply
}

func (orchestrator *Orchestrator) transition(current *turn, next State) {
	current.logger.Debug("turn state", "from", current.state, "to", next, "iteration", current.iterations)
	current.state = next
}

// checkCallIDs rejects responses whose tool calls cannot be paired
// with results one-to-one.
func checkCallIDs(calls []llm.ToolCall) error {
	seen := make(map[string]struct{}, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			return fmt.Errorf("tool call %q has no id", call.Name)
		}
		if _, duplicate := seen[call.ID]; duplicate {
			return fmt.Errorf("duplicate tool call id %q", call.ID)
		}
		seen[call.ID] = struct{}{}
	}
	return nil
}

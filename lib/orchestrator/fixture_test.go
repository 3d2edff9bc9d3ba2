// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/concierge/lib/clock"
	"github.com/bureau-foundation/concierge/lib/conversation"
	"github.com/bureau-foundation/concierge/lib/history"
	"github.com/bureau-foundation/concierge/lib/llm"
	"github.com/bureau-foundation/concierge/lib/metrics"
	"github.com/bureau-foundation/concierge/lib/orchestrator"
	"github.com/bureau-foundation/concierge/lib/procurement"
	"github.com/bureau-foundation/concierge/lib/toolexec"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const systemPrompt = "You are a procurement assistant."

// scriptedProvider answers each call with script(call, request),
// where call counts from 1. It records every request and response.
type scriptedProvider struct {
	script func(call int, request llm.Request) (*llm.Response, error)

	mutex     sync.Mutex
	requests  []llm.Request
	responses []*llm.Response
}

func (provider *scriptedProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	provider.mutex.Lock()
	provider.requests = append(provider.requests, request)
	call := len(provider.requests)
	provider.mutex.Unlock()

	response, err := provider.script(call, request)

	provider.mutex.Lock()
	provider.responses = append(provider.responses, response)
	provider.mutex.Unlock()
	return response, err
}

func (provider *scriptedProvider) callCount() int {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return len(provider.requests)
}

func (provider *scriptedProvider) request(index int) llm.Request {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return provider.requests[index]
}

// checkPairing verifies that every request after a tool-call response
// ends with exactly one tool message per call of that response, in
// call order.
func (provider *scriptedProvider) checkPairing(t *testing.T) {
	t.Helper()
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	for index := 1; index < len(provider.requests); index++ {
		previous := provider.responses[index-1]
		if previous == nil || !previous.HasToolCalls() {
			continue
		}
		messages := provider.requests[index].Messages
		calls := previous.ToolCalls
		if len(messages) < len(calls)+1 {
			t.Errorf("request %d has %d messages, too few for %d tool results", index+1, len(messages), len(calls))
			continue
		}
		tail := messages[len(messages)-len(calls):]
		assistant := messages[len(messages)-len(calls)-1]
		if assistant.Role != llm.RoleAssistant || len(assistant.ToolCalls) != len(calls) {
			t.Errorf("request %d: message before tool results = %+v, want the assistant tool-call message", index+1, assistant)
		}
		for i, call := range calls {
			if tail[i].Role != llm.RoleTool || tail[i].ToolCallID != call.ID {
				t.Errorf("request %d result %d = (%s, %q), want (tool, %q)", index+1, i, tail[i].Role, tail[i].ToolCallID, call.ID)
			}
		}
	}
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: text, StopReason: llm.StopReasonEndTurn, Usage: llm.Usage{InputTokens: 100, OutputTokens: 10}}
}

func toolResponse(calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{ToolCalls: calls, StopReason: llm.StopReasonToolUse, Usage: llm.Usage{InputTokens: 100, OutputTokens: 10}}
}

func toolCall(id, name string, arguments map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: arguments}
}

type failingStore struct {
	*conversation.MemoryStore
	err error
}

func (store *failingStore) AppendTurn(ctx context.Context, turn conversation.Turn) error {
	return store.err
}

type fixtureOptions struct {
	clock            clock.Clock
	store            conversation.Store
	provider         llm.Provider
	maxIterations    int
	toolTimeout      time.Duration
	turnTimeout      time.Duration
	maxParallelTools int
	unavailableReply string
	snapshots        orchestrator.SnapshotSource
	operations       []toolexec.Operation
}

type fixture struct {
	clock        clock.Clock
	store        conversation.Store
	carts        *procurement.Carts
	metrics      *metrics.Metrics
	orchestrator *orchestrator.Orchestrator
}

func testCatalog(t *testing.T) *procurement.Catalog {
	t.Helper()
	catalog, err := procurement.NewCatalog([]procurement.Item{
		{SKU: "PEN-BLU", Name: "Ballpoint pen, blue", Price: 1.25, Stock: 500},
		{SKU: "PEN-GEL", Name: "Gel pen, black", Price: 2.40, Stock: 200},
		{SKU: "PEN-RED", Name: "Felt tip pen, red", Price: 3.10, Stock: 80},
		{SKU: "PEN-FTN", Name: "Fountain pen", Price: 34.00, Stock: 5},
		{SKU: "PCL-12", Name: "Pencil set, 12 pack", Price: 6.00, Stock: 40},
		{SKU: "STP-STD", Name: "Stapler", Price: 12.99, Stock: 3},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func newFixture(t *testing.T, options fixtureOptions) *fixture {
	t.Helper()

	clk := options.clock
	if clk == nil {
		clk = clock.Fake(epoch)
	}
	store := options.store
	if store == nil {
		store = conversation.NewMemoryStore()
	}
	m := metrics.New(nil)

	catalog := testCatalog(t)
	carts := procurement.NewCarts(catalog, clk)
	registry := toolexec.NewRegistry()
	if err := procurement.Register(registry, catalog, carts); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, operation := range options.operations {
		if err := registry.Register(operation); err != nil {
			t.Fatalf("Register(%s): %v", operation.Name, err)
		}
	}
	executor, err := toolexec.NewExecutor(toolexec.Config{Registry: registry, Clock: clk, Metrics: m})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	var snapshots orchestrator.SnapshotSource = carts
	if options.snapshots != nil {
		snapshots = options.snapshots
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Provider:         options.provider,
		Executor:         executor,
		History:          history.NewBuilder(history.Config{Metrics: m}),
		Store:            store,
		Snapshots:        snapshots,
		Model:            "test-model",
		SystemPrompt:     systemPrompt,
		MaxIterations:    options.maxIterations,
		ToolTimeout:      options.toolTimeout,
		TurnTimeout:      options.turnTimeout,
		MaxParallelTools: options.maxParallelTools,
		UnavailableReply: options.unavailableReply,
		Clock:            clk,
		Metrics:          m,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{clock: clk, store: store, carts: carts, metrics: m, orchestrator: orch}
}

func (f *fixture) load(t *testing.T, id string) *conversation.Conversation {
	t.Helper()
	loaded, err := f.store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load(%s): %v", id, err)
	}
	return loaded
}

func roles(messages []conversation.Message) string {
	result := ""
	for i, message := range messages {
		if i > 0 {
			result += ","
		}
		result += string(message.Role)
		if len(message.ToolCalls) > 0 {
			result += fmt.Sprintf("[%d]", len(message.ToolCalls))
		}
	}
	return result
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"fmt"
	"sort"

	"github.com/bureau-foundation/concierge/lib/llm"
)

// Scope identifies who a tool call runs on behalf of.
type Scope struct {
	UserID         string
	ConversationID string
}

// Handler implements an operation. The returned payload is marshaled
// as JSON for the provider. Handlers must honor ctx: the executor
// cancels it when the call times out.
type Handler func(ctx context.Context, scope Scope, arguments Arguments) (any, error)

// Operation is one registered domain operation.
type Operation struct {
	Name        string
	Description string
	Schema      Schema

	// Attach marks operations whose successful payload should be
	// returned to the caller as the reply's structured attachment.
	Attach bool

	Handler Handler
}

// Registry maps operation names to operations. Register everything
// before the first Execute; the registry is not safe for concurrent
// registration.
type Registry struct {
	operations map[string]Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{operations: make(map[string]Operation)}
}

// Register adds an operation. Names must be unique.
func (registry *Registry) Register(operation Operation) error {
	if operation.Name == "" {
		return fmt.Errorf("toolexec: operation name is empty")
	}
	if operation.Handler == nil {
		return fmt.Errorf("toolexec: operation %q has no handler", operation.Name)
	}
	if _, exists := registry.operations[operation.Name]; exists {
		return fmt.Errorf("toolexec: operation %q already registered", operation.Name)
	}
	if err := operation.Schema.check(); err != nil {
		return fmt.Errorf("toolexec: operation %q: %w", operation.Name, err)
	}
	registry.operations[operation.Name] = operation
	return nil
}

// Lookup returns the operation registered under name.
func (registry *Registry) Lookup(name string) (Operation, bool) {
	operation, ok := registry.operations[name]
	return operation, ok
}

// Names returns the registered names in sorted order.
func (registry *Registry) Names() []string {
	names := make([]string, 0, len(registry.operations))
	for name := range registry.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns tool definitions for every operation, sorted by
// name so requests are stable across runs.
func (registry *Registry) Definitions() []llm.ToolDefinition {
	names := registry.Names()
	definitions := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		operation := registry.operations[name]
		definitions = append(definitions, llm.ToolDefinition{
			Name:        operation.Name,
			Description: operation.Description,
			InputSchema: operation.Schema.JSON(),
		})
	}
	return definitions
}

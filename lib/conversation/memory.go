// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps conversations in process memory. Loaded
// conversations are copies; mutating them does not affect the store.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

// Put stores a copy of conversation, replacing any existing one.
func (store *MemoryStore) Put(conversation *Conversation) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.conversations[conversation.ID] = clone(conversation)
}

func (store *MemoryStore) Load(ctx context.Context, id string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	conversation, ok := store.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(conversation), nil
}

func (store *MemoryStore) AppendTurn(ctx context.Context, turn Turn) error {
	if err := turn.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	existing, ok := store.conversations[turn.ConversationID]
	switch {
	case turn.Create && ok:
		return ErrConflict
	case !turn.Create && !ok:
		return ErrNotFound
	case turn.Create:
		existing = &Conversation{
			ID:        turn.ConversationID,
			UserID:    turn.UserID,
			Active:    true,
			CreatedAt: turn.At,
		}
		store.conversations[turn.ConversationID] = existing
	}
	existing.Apply(Turn{
		Messages: slices.Clone(turn.Messages),
		Actions:  slices.Clone(turn.Actions),
		At:       turn.At,
	})
	return nil
}

func (store *MemoryStore) SetSummary(ctx context.Context, id, summary string) error {
	return store.update(ctx, id, func(conversation *Conversation) {
		conversation.Summary = summary
	})
}

func (store *MemoryStore) SetActive(ctx context.Context, id string, active bool) error {
	return store.update(ctx, id, func(conversation *Conversation) {
		conversation.Active = active
	})
}

func (store *MemoryStore) Close() error { return nil }

func (store *MemoryStore) update(ctx context.Context, id string, mutate func(*Conversation)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	conversation, ok := store.conversations[id]
	if !ok {
		return ErrNotFound
	}
	mutate(conversation)
	return nil
}

func clone(conversation *Conversation) *Conversation {
	copied := *conversation
	copied.Messages = slices.Clone(conversation.Messages)
	copied.Actions = slices.Clone(conversation.Actions)
	return &copied
}

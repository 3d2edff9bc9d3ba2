// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "concierge:conversation:"

	// maxWatchRetries bounds optimistic-lock retries when another
	// writer touches the same conversation between WATCH and EXEC.
	maxWatchRetries = 3
)

// RedisConfig configures a RedisStore. Client is required.
type RedisConfig struct {
	Client redis.UniversalClient

	// CompressThreshold has the same meaning as in SQLiteConfig.
	CompressThreshold int

	Logger *slog.Logger
}

// RedisStore persists each conversation as a metadata hash plus two
// lists of packed message and action bodies.
type RedisStore struct {
	client    redis.UniversalClient
	threshold int
	logger    *slog.Logger
}

// NewRedisStore wraps a connected client. Close closes the client.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("conversation: redis client is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisStore{
		client:    config.Client,
		threshold: compressThreshold(config.CompressThreshold),
		logger:    logger,
	}, nil
}

func (store *RedisStore) Load(ctx context.Context, id string) (*Conversation, error) {
	metaKey, messagesKey, actionsKey := redisKeys(id)

	var (
		meta     *redis.MapStringStringCmd
		messages *redis.StringSliceCmd
		actions  *redis.StringSliceCmd
	)
	_, err := store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, metaKey)
		messages = pipe.LRange(ctx, messagesKey, 0, -1)
		actions = pipe.LRange(ctx, actionsKey, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: loading %s: %w", id, err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	conversation, err := conversationFromHash(id, fields)
	if err != nil {
		return nil, err
	}
	for _, body := range messages.Val() {
		message, err := unpackMessage([]byte(body))
		if err != nil {
			return nil, err
		}
		conversation.Messages = append(conversation.Messages, message)
	}
	for _, body := range actions.Val() {
		action, err := unpackAction([]byte(body))
		if err != nil {
			return nil, err
		}
		conversation.Actions = append(conversation.Actions, action)
	}
	return conversation, nil
}

func (store *RedisStore) AppendTurn(ctx context.Context, turn Turn) error {
	if err := turn.validate(); err != nil {
		return err
	}

	messageBodies := make([]any, len(turn.Messages))
	for i, message := range turn.Messages {
		body, err := packMessage(message, store.threshold)
		if err != nil {
			return err
		}
		messageBodies[i] = body
	}
	actionBodies := make([]any, len(turn.Actions))
	for i, action := range turn.Actions {
		body, err := packAction(action, store.threshold)
		if err != nil {
			return err
		}
		actionBodies[i] = body
	}

	metaKey, messagesKey, actionsKey := redisKeys(turn.ConversationID)
	at := strconv.FormatInt(turn.At.UnixNano(), 10)

	write := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, metaKey).Result()
		if err != nil {
			return err
		}
		switch {
		case turn.Create && exists > 0:
			return ErrConflict
		case !turn.Create && exists == 0:
			return ErrNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if turn.Create {
				pipe.HSet(ctx, metaKey,
					"user_id", turn.UserID,
					"active", "1",
					"summary", "",
					"created_at", at,
					"updated_at", at,
				)
			} else {
				pipe.HSet(ctx, metaKey, "updated_at", at)
			}
			pipe.RPush(ctx, messagesKey, messageBodies...)
			if len(actionBodies) > 0 {
				pipe.RPush(ctx, actionsKey, actionBodies...)
			}
			return nil
		})
		return err
	}

	if err := store.watch(ctx, write, metaKey); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("conversation: appending turn to %s: %w", turn.ConversationID, err)
	}

	store.logger.Debug("turn appended",
		"conversation_id", turn.ConversationID,
		"messages", len(turn.Messages),
		"actions", len(turn.Actions),
	)
	return nil
}

func (store *RedisStore) SetSummary(ctx context.Context, id, summary string) error {
	return store.setField(ctx, id, "summary", summary)
}

func (store *RedisStore) SetActive(ctx context.Context, id string, active bool) error {
	flag := "0"
	if active {
		flag = "1"
	}
	return store.setField(ctx, id, "active", flag)
}

func (store *RedisStore) Close() error {
	return store.client.Close()
}

func (store *RedisStore) setField(ctx context.Context, id, field, value string) error {
	metaKey, _, _ := redisKeys(id)
	err := store.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, metaKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, metaKey, field, value)
			return nil
		})
		return err
	}, metaKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("conversation: setting %s of %s: %w", field, id, err)
	}
	return err
}

// watch runs fn under WATCH on keys, retrying when EXEC aborts
// because a watched key changed.
func (store *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for range maxWatchRetries {
		err = store.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		store.logger.Debug("redis watch conflict, retrying", "keys", keys)
	}
	return err
}

func redisKeys(id string) (meta, messages, actions string) {
	meta = redisKeyPrefix + id
	return meta, meta + ":messages", meta + ":actions"
}

func conversationFromHash(id string, fields map[string]string) (*Conversation, error) {
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("conversation: %s has bad created_at: %w", id, err)
	}
	updatedAt, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("conversation: %s has bad updated_at: %w", id, err)
	}
	return &Conversation{
		ID:        id,
		UserID:    fields["user_id"],
		Active:    fields["active"] == "1",
		Summary:   fields["summary"],
		CreatedAt: time.Unix(0, createdAt).UTC(),
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/concierge/lib/sqlitepool"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	summary    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	seq             INTEGER NOT NULL,
	id              TEXT NOT NULL,
	role            TEXT NOT NULL,
	body            BLOB NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);

CREATE TABLE IF NOT EXISTS actions (
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	seq             INTEGER NOT NULL,
	id              TEXT NOT NULL,
	kind            TEXT NOT NULL,
	tool            TEXT NOT NULL DEFAULT '',
	body            BLOB NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, seq)
);

CREATE INDEX IF NOT EXISTS conversations_by_user ON conversations (user_id);
`

// SQLiteConfig configures a SQLiteStore. Path is required.
type SQLiteConfig struct {
	Path     string
	PoolSize int

	// CompressThreshold is the body size above which bodies are
	// zstd-compressed. Zero means DefaultCompressThreshold; negative
	// disables compression.
	CompressThreshold int

	Logger *slog.Logger
}

// SQLiteStore persists conversations in a SQLite database.
type SQLiteStore struct {
	pool      *sqlitepool.Pool
	threshold int
	logger    *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at config.Path.
func OpenSQLite(config SQLiteConfig) (*SQLiteStore, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Path != "" && config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("conversation: creating database directory: %w", err)
		}
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   sqliteSchema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	return &SQLiteStore{
		pool:      pool,
		threshold: compressThreshold(config.CompressThreshold),
		logger:    logger,
	}, nil
}

func (store *SQLiteStore) Load(ctx context.Context, id string) (*Conversation, error) {
	var conversation *Conversation
	err := store.pool.Read(ctx, func(conn *sqlite.Conn) (err error) {
		// A deferred read transaction gives the three queries one
		// snapshot, so a concurrent append is seen whole or not at all.
		endTransaction := sqlitex.Transaction(conn)
		defer endTransaction(&err)

		conversation, err = loadConversationRow(conn, id)
		if err != nil {
			return err
		}
		if err := loadMessages(conn, conversation); err != nil {
			return err
		}
		return loadActions(conn, conversation)
	})
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

func (store *SQLiteStore) AppendTurn(ctx context.Context, turn Turn) error {
	if err := turn.validate(); err != nil {
		return err
	}

	// Encode outside the write transaction to keep it short.
	messageBodies := make([][]byte, len(turn.Messages))
	for i, message := range turn.Messages {
		body, err := packMessage(message, store.threshold)
		if err != nil {
			return err
		}
		messageBodies[i] = body
	}
	actionBodies := make([][]byte, len(turn.Actions))
	for i, action := range turn.Actions {
		body, err := packAction(action, store.threshold)
		if err != nil {
			return err
		}
		actionBodies[i] = body
	}

	err := store.pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
		exists, err := conversationExists(conn, turn.ConversationID)
		if err != nil {
			return err
		}
		switch {
		case turn.Create && exists:
			return ErrConflict
		case !turn.Create && !exists:
			return ErrNotFound
		case turn.Create:
			err = sqlitex.Execute(conn,
				`INSERT INTO conversations (id, user_id, active, summary, created_at, updated_at)
				 VALUES (?, ?, 1, '', ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					turn.ConversationID, turn.UserID, turn.At.UnixNano(), turn.At.UnixNano(),
				}})
		default:
			err = sqlitex.Execute(conn,
				`UPDATE conversations SET updated_at = ? WHERE id = ?`,
				&sqlitex.ExecOptions{Args: []any{turn.At.UnixNano(), turn.ConversationID}})
		}
		if err != nil {
			return fmt.Errorf("conversation: writing %s: %w", turn.ConversationID, err)
		}

		messageSeq, err := nextSeq(conn, "messages", turn.ConversationID)
		if err != nil {
			return err
		}
		for i, message := range turn.Messages {
			err := sqlitex.Execute(conn,
				`INSERT INTO messages (conversation_id, seq, id, role, body, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					turn.ConversationID, messageSeq + int64(i), message.ID,
					string(message.Role), messageBodies[i], message.CreatedAt.UnixNano(),
				}})
			if err != nil {
				return fmt.Errorf("conversation: inserting message %s: %w", message.ID, err)
			}
		}

		actionSeq, err := nextSeq(conn, "actions", turn.ConversationID)
		if err != nil {
			return err
		}
		for i, action := range turn.Actions {
			err := sqlitex.Execute(conn,
				`INSERT INTO actions (conversation_id, seq, id, kind, tool, body, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					turn.ConversationID, actionSeq + int64(i), action.ID,
					string(action.Kind), action.Tool, actionBodies[i], action.CreatedAt.UnixNano(),
				}})
			if err != nil {
				return fmt.Errorf("conversation: inserting action %s: %w", action.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	store.logger.Debug("turn appended",
		"conversation_id", turn.ConversationID,
		"messages", len(turn.Messages),
		"actions", len(turn.Actions),
	)
	return nil
}

func (store *SQLiteStore) SetSummary(ctx context.Context, id, summary string) error {
	return store.updateRow(ctx, id, `UPDATE conversations SET summary = ? WHERE id = ?`, summary)
}

func (store *SQLiteStore) SetActive(ctx context.Context, id string, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	return store.updateRow(ctx, id, `UPDATE conversations SET active = ? WHERE id = ?`, flag)
}

func (store *SQLiteStore) Close() error {
	return store.pool.Close()
}

func (store *SQLiteStore) updateRow(ctx context.Context, id, query string, value any) error {
	return store.pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: []any{value, id}}); err != nil {
			return fmt.Errorf("conversation: updating %s: %w", id, err)
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func conversationExists(conn *sqlite.Conn, id string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM conversations WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("conversation: looking up %s: %w", id, err)
	}
	return exists, nil
}

// nextSeq returns the next sequence number in table for the
// conversation. table is one of the two fixed table names.
func nextSeq(conn *sqlite.Conn, table, id string) (int64, error) {
	var seq int64
	err := sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM `+table+` WHERE conversation_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				seq = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("conversation: next %s sequence for %s: %w", table, id, err)
	}
	return seq, nil
}

func loadConversationRow(conn *sqlite.Conn, id string) (*Conversation, error) {
	var conversation *Conversation
	err := sqlitex.Execute(conn,
		`SELECT user_id, active, summary, created_at, updated_at FROM conversations WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				conversation = &Conversation{
					ID:        id,
					UserID:    stmt.ColumnText(0),
					Active:    stmt.ColumnInt64(1) != 0,
					Summary:   stmt.ColumnText(2),
					CreatedAt: time.Unix(0, stmt.ColumnInt64(3)).UTC(),
					UpdatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("conversation: loading %s: %w", id, err)
	}
	if conversation == nil {
		return nil, ErrNotFound
	}
	return conversation, nil
}

func loadMessages(conn *sqlite.Conn, conversation *Conversation) error {
	err := sqlitex.Execute(conn,
		`SELECT body FROM messages WHERE conversation_id = ? ORDER BY seq`,
		&sqlitex.ExecOptions{
			Args: []any{conversation.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				message, err := unpackMessage(columnBlob(stmt, 0))
				if err != nil {
					return err
				}
				conversation.Messages = append(conversation.Messages, message)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("conversation: loading messages of %s: %w", conversation.ID, err)
	}
	return nil
}

func loadActions(conn *sqlite.Conn, conversation *Conversation) error {
	err := sqlitex.Execute(conn,
		`SELECT body FROM actions WHERE conversation_id = ? ORDER BY seq`,
		&sqlitex.ExecOptions{
			Args: []any{conversation.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				action, err := unpackAction(columnBlob(stmt, 0))
				if err != nil {
					return err
				}
				conversation.Actions = append(conversation.Actions, action)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("conversation: loading actions of %s: %w", conversation.ID, err)
	}
	return nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	blob := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, blob)
	return blob
}

func compressThreshold(configured int) int {
	switch {
	case configured == 0:
		return DefaultCompressThreshold
	case configured < 0:
		return 0
	default:
		return configured
	}
}

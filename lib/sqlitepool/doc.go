// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// durable conversation store.
//
// It wraps zombiezen.com/go/sqlite with WAL journaling, NORMAL
// synchronous mode, a busy timeout for write contention, and a schema
// script applied to every connection on first use. Connections are
// not safe for concurrent use: each goroutine takes its own and puts
// it back.
//
// Multi-statement writes go through [Pool.WithTransaction], which runs
// the callback inside an IMMEDIATE transaction and rolls back when the
// callback returns an error. The conversation store relies on this for
// all-or-nothing turn appends.
//
//	err := pool.WithTransaction(ctx, func(conn *sqlite.Conn) error {
//	    if err := insertMessages(conn, turn); err != nil {
//	        return err
//	    }
//	    return insertActions(conn, turn)
//	})
package sqlitepool

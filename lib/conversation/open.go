// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a store driver.
type Config struct {
	Driver string

	// Path is the SQLite database file.
	Path string

	// RedisAddr is host:port of the Redis server.
	RedisAddr string

	CompressThreshold int
	Logger            *slog.Logger
}

// Open constructs the store named by config.Driver. For Redis it
// pings the server before returning.
func Open(ctx context.Context, config Config) (Store, error) {
	switch config.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil

	case DriverSQLite:
		return OpenSQLite(SQLiteConfig{
			Path:              config.Path,
			CompressThreshold: config.CompressThreshold,
			Logger:            config.Logger,
		})

	case DriverRedis:
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("conversation: redis driver requires an address")
		}
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("conversation: connecting to redis at %s: %w", config.RedisAddr, err)
		}
		return NewRedisStore(RedisConfig{
			Client:            client,
			CompressThreshold: config.CompressThreshold,
			Logger:            config.Logger,
		})

	default:
		return nil, fmt.Errorf("conversation: unknown store driver %q", config.Driver)
	}
}

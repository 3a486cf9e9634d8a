// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitedb opens SQLite connection pools with droidvet's
// standard pragmas: WAL journaling so status polls never block task
// transitions, NORMAL synchronous for process-crash durability, and a
// busy timeout so concurrent writers queue instead of failing with
// SQLITE_BUSY.
//
// The package is a thin wrapper over zombiezen's sqlitex.Pool and
// exposes it directly: callers write SQL and use sqlitex helpers;
// there is no query-builder layer.
package sqlitedb

import (
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file path, created if absent. Use
	// ":memory:" with PoolSize 1 in tests.
	Path string

	// PoolSize is the number of connections. Defaults to 4; task
	// writes serialize in SQLite anyway, extra connections only
	// help concurrent status reads.
	PoolSize int

	// Logger receives open/close messages. Nil means discard.
	Logger *slog.Logger

	// Schema, if non-empty, is executed once per connection after
	// the pragmas (CREATE TABLE IF NOT EXISTS scripts are cheap and
	// idempotent).
	Schema string
}

// Open creates the pool and verifies pragmas apply on first use. The
// caller must Close the returned pool.
func Open(cfg Config) (*sqlitex.Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitedb: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepare(conn, cfg.Schema)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)
	return pool, nil
}

func prepare(conn *sqlite.Conn, schema string) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitedb: %s: %w", pragma, err)
		}
	}
	if schema != "" {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return fmt.Errorf("sqlitedb: applying schema: %w", err)
		}
	}
	return nil
}

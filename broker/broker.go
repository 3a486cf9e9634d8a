// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

// Summary is the per-task row served by the listing endpoint.
type Summary struct {
	ID      string      `json:"task_id"`
	Kind    task.Kind   `json:"type"`
	Status  task.Status `json:"status"`
	Updated time.Time   `json:"updated"`
}

// Broker owns the task lifecycle: it persists tasks, hands pending
// work to the dispatch loop, and records the terminal verdict or
// error. All state lives in SQLite; the in-memory queue is only a
// wake-up signal and losing it costs latency, not tasks.
type Broker struct {
	db     *sqlitex.Pool
	queue  chan string
	clock  clock.Clock
	logger *slog.Logger
}

// Config configures a Broker.
type Config struct {
	// DB is the connection pool. The caller opens it with Schema
	// applied.
	DB *sqlitex.Pool
	// QueueCapacity bounds the wake-up channel. A full channel never
	// blocks submission; the sweep picks up anything the channel
	// dropped.
	QueueCapacity int
	Clock         clock.Clock
	Logger        *slog.Logger
}

// New creates a Broker.
func New(cfg Config) *Broker {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Broker{
		db:     cfg.DB,
		queue:  make(chan string, cfg.QueueCapacity),
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
}

// Create validates the kind, persists a pending task, and signals the
// dispatch loop. The task id is returned to the submitter before any
// processing happens.
func (b *Broker) Create(ctx context.Context, kind, payload string) (*task.Task, error) {
	parsed, err := task.ParseKind(kind)
	if err != nil {
		return nil, err
	}

	now := b.clock.Now().UTC()
	created := &task.Task{
		ID:      uuid.NewString(),
		Kind:    parsed,
		Payload: payload,
		Status:  task.StatusPending,
		Created: now,
		Updated: now,
	}

	err = b.withConn(ctx, func(conn *sqlite.Conn) error {
		return insertTask(conn, created)
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("task created",
		"task_id", created.ID,
		"type", string(created.Kind),
	)
	b.signal(created.ID)
	return created, nil
}

// Get returns the task with the given id.
func (b *Broker) Get(ctx context.Context, id string) (*task.Task, error) {
	var loaded *task.Task
	err := b.withConn(ctx, func(conn *sqlite.Conn) error {
		row, err := selectTask(conn, id)
		if err != nil {
			return err
		}
		loaded = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return nil, task.Errorf(task.ErrNotFound, "no task with id %s", id)
	}
	return loaded, nil
}

// List returns summaries of every known task, newest first.
func (b *Broker) List(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	err := b.withConn(ctx, func(conn *sqlite.Conn) error {
		rows, err := selectSummaries(conn)
		if err != nil {
			return err
		}
		summaries = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// QueueDepth reports how many wake-up signals are buffered.
func (b *Broker) QueueDepth() int { return len(b.queue) }

// markProcessing claims a pending task. The guarded update is the
// claim: when two loop workers race on the same id, exactly one sees
// true and the other drops the signal.
func (b *Broker) markProcessing(ctx context.Context, id string) (bool, error) {
	var claimed bool
	err := b.withConn(ctx, func(conn *sqlite.Conn) error {
		moved, err := transition(conn, id,
			task.StatusPending, task.StatusProcessing,
			"", "", "", b.clock.Now().UTC())
		if err != nil {
			return err
		}
		claimed = moved
		return nil
	})
	if err != nil {
		return false, err
	}
	if claimed {
		b.logger.Info("task state changed",
			"task_id", id,
			"from", string(task.StatusPending),
			"to", string(task.StatusProcessing),
		)
	}
	return claimed, nil
}

// Complete records a verdict and moves the task to completed. Only a
// processing task can complete; anything else reports the violation.
func (b *Broker) Complete(ctx context.Context, id string, verdict *task.Verdict) error {
	encoded, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("broker: encoding verdict for task %s: %w", id, err)
	}
	return b.finish(ctx, id, task.StatusCompleted, string(encoded), "", "")
}

// Fail records a classified error and moves the task to error.
func (b *Broker) Fail(ctx context.Context, id string, taskErr *task.Error) error {
	return b.finish(ctx, id, task.StatusError, "", string(taskErr.Kind), taskErr.Message)
}

func (b *Broker) finish(ctx context.Context, id string, to task.Status, verdictJSON, errKind, errMessage string) error {
	var moved bool
	err := b.withConn(ctx, func(conn *sqlite.Conn) error {
		done, err := transition(conn, id,
			task.StatusProcessing, to,
			verdictJSON, errKind, errMessage, b.clock.Now().UTC())
		if err != nil {
			return err
		}
		moved = done
		return nil
	})
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("broker: task %s is not processing, refusing move to %s", id, to)
	}
	b.logger.Info("task state changed",
		"task_id", id,
		"from", string(task.StatusProcessing),
		"to", string(to),
	)
	return nil
}

// signal wakes the dispatch loop for a specific task. Dropping the
// signal on a full channel is fine: the sweep re-discovers pending
// rows.
func (b *Broker) signal(id string) {
	select {
	case b.queue <- id:
	default:
		b.logger.Warn("wake-up queue full, task deferred to sweep", "task_id", id)
	}
}

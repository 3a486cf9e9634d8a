// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/droidvet/droidvet/task"
)

// Schema is the task table. Verdicts persist as JSON and errors as
// kind plus message, exactly what the API serves back.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id            TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    payload       TEXT NOT NULL,
    status        TEXT NOT NULL,
    verdict       TEXT,
    error_kind    TEXT,
    error_message TEXT,
    created       INTEGER NOT NULL,
    updated       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_by_status ON tasks (status, created);
`

// insertTask writes a fresh pending task row.
func insertTask(conn *sqlite.Conn, t *task.Task) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO tasks (id, kind, payload, status, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				t.ID, string(t.Kind), t.Payload, string(t.Status),
				t.Created.Unix(), t.Updated.Unix(),
			},
		})
	if err != nil {
		return fmt.Errorf("broker: inserting task %s: %w", t.ID, err)
	}
	return nil
}

// selectTask loads one task row. Returns nil when the id is unknown.
func selectTask(conn *sqlite.Conn, id string) (*task.Task, error) {
	var loaded *task.Task
	err := sqlitex.Execute(conn,
		`SELECT id, kind, payload, status, verdict, error_kind, error_message,
		        created, updated
		 FROM tasks WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				row, err := scanTask(stmt)
				if err != nil {
					return err
				}
				loaded = row
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("broker: loading task %s: %w", id, err)
	}
	return loaded, nil
}

// selectByStatus returns ids of tasks in the given status, oldest
// first, bounded.
func selectByStatus(conn *sqlite.Conn, status task.Status, limit int) ([]string, error) {
	var ids []string
	err := sqlitex.Execute(conn,
		`SELECT id FROM tasks WHERE status = ? ORDER BY created LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(status), limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("broker: listing %s tasks: %w", status, err)
	}
	return ids, nil
}

// selectSummaries returns every task's id, kind, status, and updated
// time, newest first.
func selectSummaries(conn *sqlite.Conn) ([]Summary, error) {
	var summaries []Summary
	err := sqlitex.Execute(conn,
		`SELECT id, kind, status, updated FROM tasks ORDER BY created DESC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, Summary{
					ID:      stmt.ColumnText(0),
					Kind:    task.Kind(stmt.ColumnText(1)),
					Status:  task.Status(stmt.ColumnText(2)),
					Updated: time.Unix(stmt.ColumnInt64(3), 0).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("broker: listing tasks: %w", err)
	}
	return summaries, nil
}

// transition performs one guarded status move: the UPDATE only
// applies when the row is still in the expected prior state, so
// concurrent writers serialize per task id and a terminal row can
// never regress. Returns false when the row was not in the prior
// state.
func transition(conn *sqlite.Conn, id string, from, to task.Status, verdictJSON, errKind, errMessage string, now time.Time) (bool, error) {
	err := sqlitex.Execute(conn,
		`UPDATE tasks
		 SET status = ?, verdict = ?, error_kind = ?, error_message = ?, updated = ?
		 WHERE id = ? AND status = ?`,
		&sqlitex.ExecOptions{
			Args: []any{
				string(to), nullable(verdictJSON), nullable(errKind),
				nullable(errMessage), now.Unix(), id, string(from),
			},
		})
	if err != nil {
		return false, fmt.Errorf("broker: transitioning task %s: %w", id, err)
	}
	return conn.Changes() > 0, nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanTask materializes a task row.
func scanTask(stmt *sqlite.Stmt) (*task.Task, error) {
	loaded := &task.Task{
		ID:      stmt.ColumnText(0),
		Kind:    task.Kind(stmt.ColumnText(1)),
		Payload: stmt.ColumnText(2),
		Status:  task.Status(stmt.ColumnText(3)),
		Created: time.Unix(stmt.ColumnInt64(7), 0).UTC(),
		Updated: time.Unix(stmt.ColumnInt64(8), 0).UTC(),
	}

	if verdictJSON := stmt.ColumnText(4); verdictJSON != "" {
		var verdict task.Verdict
		if err := json.Unmarshal([]byte(verdictJSON), &verdict); err != nil {
			return nil, fmt.Errorf("decoding verdict of task %s: %w", loaded.ID, err)
		}
		loaded.Verdict = &verdict
	}
	if errKind := stmt.ColumnText(5); errKind != "" {
		loaded.Error = &task.Error{
			Kind:    task.ErrorKind(errKind),
			Message: stmt.ColumnText(6),
		}
	}
	return loaded, nil
}

// withConn borrows a pool connection for fn.
func (b *Broker) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := b.db.Take(ctx)
	if err != nil {
		return fmt.Errorf("broker: taking connection: %w", err)
	}
	defer b.db.Put(conn)
	return fn(conn)
}

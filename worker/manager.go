// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/droidvet/droidvet/task"
)

// Manager selects the worker for a task's kind and invokes it behind
// a fault boundary: whatever happens inside a worker, the caller
// receives either a verdict or a classified error, never a raw panic
// or an unclassified failure.
type Manager struct {
	text   Worker
	link   Worker
	visual Worker
	logger *slog.Logger
}

// NewManager creates a manager over the three worker implementations.
func NewManager(text, link, visual Worker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Manager{text: text, link: link, visual: visual, logger: logger}
}

// Dispatch runs the matching worker for the task. Exactly one of the
// return values is non-nil.
func (m *Manager) Dispatch(ctx context.Context, t *task.Task) (*task.Verdict, *task.Error) {
	selected := m.workerFor(t.Kind)
	if selected == nil {
		// Unreachable for broker-created tasks; kept for direct
		// callers.
		return nil, task.Errorf(task.ErrInvalidTaskType, "no worker for kind %q", t.Kind)
	}

	if err := selected.Validate(t.Payload); err != nil {
		m.logger.Info("task payload rejected",
			"task_id", t.ID,
			"worker", selected.Name(),
			"error", err,
		)
		return nil, task.Errorf(task.ErrValidation, "%v", err)
	}

	verdict, err := m.process(ctx, selected, t)
	if err != nil {
		classified := task.AsError(err)
		if classified == nil {
			classified = task.Errorf(task.ErrWorkerFault, "%v", err)
		}
		m.logger.Error("worker failed",
			"task_id", t.ID,
			"worker", selected.Name(),
			"kind", string(classified.Kind),
			"error", classified.Message,
		)
		return nil, classified
	}

	verdict.Worker = selected.Name()
	return verdict, nil
}

// workerFor is the closed dispatch: file and app both run the visual
// worker, and adding a kind is a code change here, not configuration.
func (m *Manager) workerFor(kind task.Kind) Worker {
	switch kind {
	case task.KindText:
		return m.text
	case task.KindLink:
		return m.link
	case task.KindFile, task.KindApp:
		return m.visual
	}
	return nil
}

// process invokes the worker with panic containment. A panicking
// worker must not take down the dispatch loop; it becomes a
// worker_fault on the task.
func (m *Manager) process(ctx context.Context, selected Worker, t *task.Task) (verdict *task.Verdict, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.logger.Error("worker panicked",
				"task_id", t.ID,
				"worker", selected.Name(),
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			verdict = nil
			err = task.Errorf(task.ErrWorkerFault, "worker panic: %v", recovered)
		}
	}()

	verdict, err = selected.Process(ctx, t)
	if err == nil && verdict == nil {
		err = task.NewError(task.ErrWorkerFault, "worker returned neither verdict nor error")
	}
	return verdict, err
}

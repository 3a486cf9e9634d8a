// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"time"
)

// Kind identifies the category of artifact a task analyzes. The set
// is closed: adding a kind means adding a worker implementation and a
// dispatch arm, not a configuration entry.
type Kind string

const (
	// KindText is a free-form message (SMS, chat paste).
	KindText Kind = "text"
	// KindLink is a single URL.
	KindLink Kind = "link"
	// KindFile is an arbitrary file reference.
	KindFile Kind = "file"
	// KindApp is an installable application package (APK path).
	KindApp Kind = "app"
)

// ParseKind validates a wire-format task type string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindText, KindLink, KindFile, KindApp:
		return Kind(s), nil
	}
	return "", NewError(ErrInvalidTaskType, fmt.Sprintf("unknown task type %q", s))
}

// Status is the lifecycle state of a task. Transitions are monotonic:
// pending → processing → {completed, error}. Nothing ever moves a task
// backward, and terminal states never change.
type Status string

const (
	// StatusPending means the task is accepted and queued but no
	// worker has picked it up.
	StatusPending Status = "pending"
	// StatusProcessing means a worker invocation owns the task.
	StatusProcessing Status = "processing"
	// StatusCompleted means a verdict is attached.
	StatusCompleted Status = "completed"
	// StatusError means a classified error is attached.
	StatusError Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic lifecycle.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusError
	}
	return false
}

// Task is one analysis request. The broker owns every Task: workers
// receive a copy, produce a Verdict or an Error, and never mutate
// lifecycle fields themselves.
type Task struct {
	// ID is the unique task identifier (UUID).
	ID string `json:"task_id"`

	// Kind selects the worker that will process the task.
	Kind Kind `json:"type"`

	// Payload is the opaque content reference: message text for
	// text, URL for link, filesystem path for file and app.
	Payload string `json:"payload"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Verdict is set when Status is completed. Immutable once
	// attached.
	Verdict *Verdict `json:"verdict,omitempty"`

	// Error is set when Status is error.
	Error *Error `json:"error,omitempty"`

	// Created is when the task was accepted.
	Created time.Time `json:"created"`

	// Updated is when the task last changed state.
	Updated time.Time `json:"updated"`
}

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"errors"
	"fmt"
)

// ErrorKind classifies task failures so callers can branch on error
// kind programmatically. Every terminal task error persists as a kind
// plus a message, never a stack trace or an unstructured string.
type ErrorKind string

const (
	// ErrInvalidTaskType: the requested task type is not one of the
	// enumerated kinds. Rejected at creation, never queued.
	ErrInvalidTaskType ErrorKind = "invalid_task_type"

	// ErrNotFound: no task (or session) with the given id exists.
	ErrNotFound ErrorKind = "not_found"

	// ErrValidation: the task payload is malformed for its kind.
	// Not retried; the provider is never invoked.
	ErrValidation ErrorKind = "validation"

	// ErrProviderRejected: an external provider rejected the input
	// semantically (4xx). Fatal, surfaced immediately.
	ErrProviderRejected ErrorKind = "provider_rejected"

	// ErrProviderUnavailable: transient provider failure persisted
	// through retry exhaustion. Worker policy decides whether to
	// degrade to a partial verdict or fail the task.
	ErrProviderUnavailable ErrorKind = "provider_unavailable"

	// ErrConnection: a sandbox endpoint was unreachable. Retried by
	// endpoint re-selection, bounded.
	ErrConnection ErrorKind = "connection"

	// ErrInstall: the artifact failed to install on the device. The
	// artifact is the problem, not the endpoint; never retried by
	// re-selection.
	ErrInstall ErrorKind = "install"

	// ErrRun: the installed artifact failed to launch.
	ErrRun ErrorKind = "run"

	// ErrPackageDetection: the before/after package diff did not
	// yield exactly one new package. Ambiguous install outcome;
	// fatal.
	ErrPackageDetection ErrorKind = "package_detection"

	// ErrProvisioningExhausted: infrastructure automation produced
	// no usable endpoints. Fatal at acquire time.
	ErrProvisioningExhausted ErrorKind = "provisioning_exhausted"

	// ErrUnknownSession: no sandbox session is bound to the given
	// session id.
	ErrUnknownSession ErrorKind = "unknown_session"

	// ErrWorkerFault: an unanticipated failure inside a worker,
	// caught at the manager boundary.
	ErrWorkerFault ErrorKind = "worker_fault"
)

// Error is a classified task failure. It is both the persisted form
// (kind + message on the task row) and a regular Go error that flows
// through call stacks wrapped with %w.
type Error struct {
	// Kind is the machine-readable classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable detail.
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a classified *Error from an error chain. Returns
// nil if the chain contains no *Error.
func AsError(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return nil
}

// KindOf returns the classification of err, or ErrWorkerFault if the
// chain carries no classified error. This is the manager-boundary
// guarantee: whatever a worker leaks, the broker receives a kind.
func KindOf(err error) ErrorKind {
	if classified := AsError(err); classified != nil {
		return classified.Kind
	}
	return ErrWorkerFault
}

// IsKind reports whether err's chain carries a classified error of
// the given kind.
func IsKind(err error, kind ErrorKind) bool {
	classified := AsError(err)
	return classified != nil && classified.Kind == kind
}

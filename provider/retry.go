// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

// callWithRetry invokes fn up to maxAttempts times with exponential
// backoff (1s, 2s, 4s, ...) between attempts, retrying only transient
// failures. Permanent failures map to a provider_rejected classified
// error immediately; exhausting the attempts maps the last transient
// failure to provider_unavailable.
//
// The context bounds the whole sequence: cancellation during backoff
// returns ctx.Err wrapped as provider_unavailable, since from the
// worker's perspective the provider was never reached in time.
func callWithRetry(ctx context.Context, clk clock.Clock, logger *slog.Logger, operation string, maxAttempts int, fn func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return task.Errorf(task.ErrProviderUnavailable,
					"%s: cancelled during backoff: %v", operation, ctx.Err())
			case <-clk.After(backoff):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return task.Errorf(task.ErrProviderRejected, "%s: %v", operation, err)
		}

		logger.Warn("transient provider failure",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"error", err,
		)
	}

	return task.Errorf(task.ErrProviderUnavailable,
		"%s: %d attempts failed: %v", operation, maxAttempts, lastErr)
}

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
)

// HTTPError is returned when a provider responds with a non-200
// status. The status code drives the transient/fatal split: 429 and
// 5xx are worth retrying, other 4xx mean the provider rejected the
// input and retrying is pointless.
type HTTPError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the (truncated) response body for diagnostics.
	Body string
}

func (err *HTTPError) Error() string {
	return fmt.Sprintf("provider: HTTP %d: %s", err.StatusCode, err.Body)
}

// isTransient classifies an error from a provider call. Connection
// failures, timeouts, 429, and 5xx are transient; other HTTP statuses
// are permanent rejections.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		return false
	}

	// Anything that never produced an HTTP status (refused
	// connections, timeouts, resets, truncated bodies) is
	// transient.
	return true
}

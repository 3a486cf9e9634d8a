// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"regexp"

	"github.com/droidvet/droidvet/task"
)

// Worker analyzes one category of artifact. Implementations are a
// closed set, one per task kind group, selected by the Manager's
// dispatch switch, never by dynamic lookup.
type Worker interface {
	// Name identifies the worker in verdicts and logs.
	Name() string

	// Validate checks the payload before any provider is invoked.
	// A non-nil error means the task fails with a validation
	// classified error and Process is never called.
	Validate(payload string) error

	// Process produces a verdict for a validated payload. Errors
	// must be classified (*task.Error somewhere in the chain);
	// anything else becomes a worker_fault at the manager boundary.
	Process(ctx context.Context, t *task.Task) (*task.Verdict, error)
}

// urlPattern finds http(s) URLs embedded in free-form text. Trailing
// punctuation is handled by the extractor, not the pattern.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

// extractURLs returns the URLs found in text, in order, trimmed of
// trailing sentence punctuation.
func extractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, match := range matches {
		for len(match) > 0 {
			last := match[len(match)-1]
			if last == '.' || last == ',' || last == ';' || last == '!' || last == '?' {
				match = match[:len(match)-1]
				continue
			}
			break
		}
		if match != "" {
			urls = append(urls, match)
		}
	}
	return urls
}

// riskFromClassification maps a provider label onto the verdict
// scale. Unknown labels stay low: the provider contract is
// high/low, and inventing risk from a malformed label would let a
// confused provider mark everything malicious.
func riskFromClassification(label string) task.RiskLevel {
	if label == "high" {
		return task.RiskHigh
	}
	return task.RiskLow
}

// degradable reports whether an analysis error allows falling back to
// a static-only partial verdict: the providers or the sandbox fleet
// were unavailable, rather than the artifact itself failing analysis.
func degradable(err error) bool {
	switch task.KindOf(err) {
	case task.ErrProviderUnavailable, task.ErrProvisioningExhausted, task.ErrConnection:
		return true
	}
	return false
}

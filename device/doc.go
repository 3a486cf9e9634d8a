// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package device drives one sandbox endpoint through the fixed
// dynamic-analysis protocol: connect, snapshot installed packages,
// install the artifact, diff for the new package identity, launch
// with synthetic input, and capture a screenshot plus event trail.
//
// The retry contract is deliberately narrow. Only the connect step is
// retried, by re-selecting a different endpoint up to a bound.
// Install, launch, and diff failures are properties of the artifact
// or the run, and a fresh endpoint would fail the same way. A caller
// that wants another end-to-end attempt re-invokes Run, which
// acquires a fresh lease.
package device

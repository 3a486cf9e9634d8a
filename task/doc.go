// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package task defines the data model shared across the triage core:
// the Task lifecycle, the Verdict evidence structure, and the
// classified error taxonomy.
//
// The package is deliberately free of behavior beyond validation and
// aggregation. Ownership rules live with the components: the broker
// owns Task rows and their transitions, workers own verdict
// construction, and nothing outside package task constructs error
// kinds ad hoc.
package task

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package devicepool allocates ephemeral sandbox instances on demand.
//
// The Pool tracks known endpoints and hands out exclusive leases; the
// AutomationProvisioner creates instances by driving the external
// infrastructure-automation tool and reading its file-based handoff.
// The two are deliberately decoupled: a burst of tasks hitting an
// empty pool coalesces into a single provisioning round, and waiters
// that the round cannot satisfy fail fast with a classified
// provisioning_exhausted error instead of queuing more automation
// runs. Retrying after a cooldown is the caller's decision.
package devicepool

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker owns the task lifecycle from submission to terminal
// verdict.
//
// Tasks move pending to processing to exactly one of completed or
// error, enforced in SQL: every status change is a guarded UPDATE
// conditioned on the prior state, so a terminal task can never change
// again no matter how the loop workers race. The in-memory queue is a
// wake-up signal only; the periodic sweep re-discovers any pending
// row whose signal was dropped or lost to a restart.
package broker

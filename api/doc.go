// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP surface: task submission and retrieval,
// interactive session access, and liveness. Handlers translate the
// classified error taxonomy into HTTP statuses and otherwise stay
// thin; policy lives in the broker and the session manager.
package api

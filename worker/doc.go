// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker implements the analysis workers and their dispatch
// boundary.
//
// Each worker owns the policy for its artifact category, including
// what to do when external capability is missing: the link and text
// workers fall back to static heuristics when the providers are down,
// the visual worker falls back when no sandbox can be provisioned,
// and all fallbacks are flagged partial on the verdict rather than
// silently passing off degraded analysis as complete.
package worker

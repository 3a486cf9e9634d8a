// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package task

// RiskLevel is the binary classification produced by analysis. The
// upstream inference and reputation providers only ever commit to
// high or low; anything the system cannot classify stays low with a
// low confidence score rather than inventing a middle band.
type RiskLevel string

const (
	// RiskLow means no strong malicious signal was found.
	RiskLow RiskLevel = "low"
	// RiskHigh means at least one strong malicious signal was found.
	RiskHigh RiskLevel = "high"
)

// Finding is one piece of supporting evidence inside a verdict: a
// single check, its weight in the aggregate, and its own risk call.
type Finding struct {
	// Check identifies the check that produced this finding
	// (e.g. "domain_reputation", "dynamic_run", "llm_trust").
	Check string `json:"check"`

	// Risk is this check's individual classification.
	Risk RiskLevel `json:"risk"`

	// Confidence is this check's confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Weight is the check's share of the aggregate score. Weights
	// across a worker's findings sum to 1.
	Weight float64 `json:"weight"`

	// Detail is a short human-readable explanation.
	Detail string `json:"detail,omitempty"`
}

// Verdict is the structured result of a completed analysis. Once the
// broker attaches a Verdict to a task it is never modified.
type Verdict struct {
	// Risk is the aggregate classification.
	Risk RiskLevel `json:"risk"`

	// Confidence is the aggregate confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Findings is the supporting evidence, one entry per check.
	Findings []Finding `json:"findings"`

	// Worker names the worker that produced the verdict.
	Worker string `json:"worker"`

	// Partial is true when dynamic or provider-backed analysis was
	// unavailable and the verdict rests on static signal only.
	Partial bool `json:"partial,omitempty"`

	// SessionID links to the sandbox session for dynamic analyses,
	// for interactive (VNC) follow-up. Empty for static verdicts.
	SessionID string `json:"session_id,omitempty"`

	// ScreenshotRef is the artifact-store reference of the captured
	// screenshot for dynamic analyses.
	ScreenshotRef string `json:"screenshot_ref,omitempty"`
}

// Aggregate computes the weighted aggregate risk and confidence from
// a set of findings. Risk is high if any finding with weight above
// the noise floor reports high; confidence is the weight-normalized
// sum of the contributing findings' confidence values.
func Aggregate(findings []Finding) (RiskLevel, float64) {
	risk := RiskLow
	var confidence, totalWeight float64
	for _, finding := range findings {
		totalWeight += finding.Weight
		confidence += finding.Weight * finding.Confidence
		if finding.Risk == RiskHigh && finding.Weight >= 0.05 {
			risk = RiskHigh
		}
	}
	if totalWeight > 0 {
		confidence /= totalWeight
	}
	return risk, confidence
}

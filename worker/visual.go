// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/droidvet/droidvet/provider"
	"github.com/droidvet/droidvet/task"
)

// VisualWorker handles the file and app kinds: it executes the
// artifact in a disposable sandbox through the gateway's dynamic
// runner, then asks the LLM to interpret the recorded event trail.
//
// Failure policy follows the artifact/infrastructure split: install,
// launch, and package-detection failures are the artifact's fault and
// fail the task; an unreachable or exhausted sandbox fleet degrades
// to a static-only partial verdict so the task still completes.
type VisualWorker struct {
	gateway *provider.Gateway
	logger  *slog.Logger
}

// NewVisualWorker creates the visual worker.
func NewVisualWorker(gateway *provider.Gateway, logger *slog.Logger) *VisualWorker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &VisualWorker{gateway: gateway, logger: logger}
}

// Name implements Worker.
func (w *VisualWorker) Name() string { return "visual" }

// Validate requires a non-empty artifact reference.
func (w *VisualWorker) Validate(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("missing or empty artifact reference")
	}
	return nil
}

// Process implements Worker.
func (w *VisualWorker) Process(ctx context.Context, t *task.Task) (*task.Verdict, error) {
	result, err := w.gateway.RunDynamic(ctx, t.ID, t.Payload)
	if err != nil {
		if degradable(err) {
			w.logger.Warn("sandbox fleet unavailable, degrading to static analysis",
				"task_id", t.ID, "error", err)
			return staticArtifactVerdict(t.Payload), nil
		}
		// InstallError, RunError, PackageDetectionError: the
		// artifact failed dynamic analysis; the task fails with the
		// classified kind.
		return nil, err
	}

	findings := []task.Finding{
		{
			Check:      "dynamic_run",
			Risk:       task.RiskLow,
			Confidence: 0.6,
			Weight:     0.5,
			Detail: fmt.Sprintf("installed and launched as %s, %d events recorded",
				result.Package, len(result.Events)),
		},
	}

	partial := false
	classification, err := w.gateway.InferText(ctx, trailPrompt(result.Package, result.Events))
	if err != nil {
		if !degradable(err) {
			return nil, err
		}
		// The run itself succeeded; only the interpretation is
		// missing. Keep the dynamic evidence and mark partial.
		partial = true
		findings[0].Weight = 1.0
	} else {
		findings = append(findings, task.Finding{
			Check:      "llm_trail_analysis",
			Risk:       riskFromClassification(classification.Classification),
			Confidence: classification.Confidence,
			Weight:     0.5,
			Detail:     "LLM interpretation of the session event trail",
		})
	}

	risk, confidence := task.Aggregate(findings)
	return &task.Verdict{
		Risk:          risk,
		Confidence:    confidence,
		Findings:      findings,
		Partial:       partial,
		SessionID:     result.SessionID,
		ScreenshotRef: string(result.ScreenshotRef),
	}, nil
}

func trailPrompt(packageName string, events []string) string {
	return fmt.Sprintf("An Android package %s was installed and driven in a "+
		"sandbox. Classify its behavior as high or low risk.\nEvent trail:\n%s",
		packageName, strings.Join(events, "\n"))
}

// staticArtifactVerdict is the degraded path when no sandbox can be
// had: file-name heuristics only, explicitly partial.
func staticArtifactVerdict(artifactRef string) *task.Verdict {
	finding := task.Finding{
		Check:      "static_artifact",
		Risk:       task.RiskLow,
		Confidence: 0.2,
		Weight:     1.0,
		Detail:     "dynamic analysis unavailable, file-name heuristics only",
	}

	name := strings.ToLower(filepath.Base(artifactRef))
	switch {
	case strings.Count(name, ".") >= 2:
		// Double extensions (invoice.pdf.apk) are a classic
		// disguise.
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.5
		finding.Detail = "double file extension"
	case strings.Contains(name, "update") || strings.Contains(name, "install"):
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.4
		finding.Detail = "installer-lure file name"
	}

	return &task.Verdict{
		Risk:       finding.Risk,
		Confidence: finding.Confidence,
		Findings:   []task.Finding{finding},
		Partial:    true,
	}
}

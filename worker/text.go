// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/droidvet/droidvet/provider"
	"github.com/droidvet/droidvet/task"
)

// TextWorker analyzes a free-form message: overall trust via the LLM,
// then a reputation check for every URL found in the message, folded
// in as weighted findings.
type TextWorker struct {
	gateway *provider.Gateway
	logger  *slog.Logger
}

// NewTextWorker creates the text worker.
func NewTextWorker(gateway *provider.Gateway, logger *slog.Logger) *TextWorker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &TextWorker{gateway: gateway, logger: logger}
}

// Name implements Worker.
func (w *TextWorker) Name() string { return "text" }

// Validate requires a non-empty message.
func (w *TextWorker) Validate(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("missing or empty message")
	}
	return nil
}

// Process implements Worker.
func (w *TextWorker) Process(ctx context.Context, t *task.Task) (*task.Verdict, error) {
	message := t.Payload
	urls := extractURLs(message)

	// Trust analysis carries 0.4; link identification 0.1; the
	// per-URL reputation checks split the remaining 0.5.
	classification, err := w.gateway.InferText(ctx, trustPrompt(message))
	if err != nil {
		if degradable(err) {
			w.logger.Warn("inference provider unavailable, degrading to static analysis",
				"task_id", t.ID, "error", err)
			return staticTextVerdict(message, urls), nil
		}
		return nil, err
	}

	findings := []task.Finding{
		{
			Check:      "llm_message_trust",
			Risk:       riskFromClassification(classification.Classification),
			Confidence: classification.Confidence,
			Weight:     0.4,
			Detail:     "LLM trust analysis of the full message",
		},
		linkIdentificationFinding(urls),
	}

	if len(urls) > 0 {
		perLink := 0.5 / float64(len(urls))
		partial := false
		for _, target := range urls {
			reputation, err := w.gateway.CheckDomain(ctx, target)
			if err != nil {
				if degradable(err) {
					static := staticLinkFinding(target)
					static.Weight = perLink
					findings = append(findings, static)
					partial = true
					continue
				}
				return nil, err
			}
			finding := reputationFinding(reputation, perLink)
			finding.Detail = "reputation of " + target
			findings = append(findings, finding)
		}
		risk, confidence := task.Aggregate(findings)
		return &task.Verdict{
			Risk:       risk,
			Confidence: confidence,
			Findings:   findings,
			Partial:    partial,
		}, nil
	}

	risk, confidence := task.Aggregate(findings)
	return &task.Verdict{Risk: risk, Confidence: confidence, Findings: findings}, nil
}

func trustPrompt(message string) string {
	return "Analyze the following message for phishing or scam signals. " +
		"Answer high or low.\nMessage:\n" + message
}

// linkIdentificationFinding records how many URLs the message embeds.
func linkIdentificationFinding(urls []string) task.Finding {
	finding := task.Finding{
		Check:      "link_identification",
		Risk:       task.RiskLow,
		Confidence: 0.7,
		Weight:     0.1,
		Detail:     "no links found in message",
	}
	if len(urls) > 0 {
		finding.Confidence = 0.6
		finding.Detail = fmt.Sprintf("%d link(s) found in message", len(urls))
	}
	return finding
}

// staticTextVerdict is the degraded path: keyword and URL-shape
// heuristics only, explicitly partial.
func staticTextVerdict(message string, urls []string) *task.Verdict {
	findings := []task.Finding{staticKeywordFinding(message)}
	if len(urls) > 0 {
		perLink := 0.5 / float64(len(urls))
		for _, target := range urls {
			static := staticLinkFinding(target)
			static.Weight = perLink
			findings = append(findings, static)
		}
		findings[0].Weight = 0.5
	}

	risk, confidence := task.Aggregate(findings)
	return &task.Verdict{
		Risk:       risk,
		Confidence: confidence,
		Findings:   findings,
		Partial:    true,
	}
}

// lureKeywords are the stock urgency phrases of credential lures.
var lureKeywords = []string{
	"verify your account", "password expire", "urgent", "suspended",
	"click here", "confirm your identity", "prize", "winner",
}

// staticKeywordFinding scans the message for lure phrasing.
func staticKeywordFinding(message string) task.Finding {
	finding := task.Finding{
		Check:      "static_keywords",
		Risk:       task.RiskLow,
		Confidence: 0.3,
		Weight:     1.0,
		Detail:     "keyword heuristics",
	}
	lowered := strings.ToLower(message)
	for _, keyword := range lureKeywords {
		if strings.Contains(lowered, keyword) {
			finding.Risk = task.RiskHigh
			finding.Confidence = 0.5
			finding.Detail = fmt.Sprintf("lure phrasing %q present", keyword)
			break
		}
	}
	return finding
}

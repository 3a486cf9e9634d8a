// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"github.com/droidvet/droidvet/provider"
	"github.com/droidvet/droidvet/task"
)

// LinkWorker analyzes a single URL: domain reputation first, LLM
// classification of the URL shape second. When both providers are
// unreachable it degrades to the static URL heuristics and flags the
// verdict partial.
type LinkWorker struct {
	gateway *provider.Gateway
	logger  *slog.Logger
}

// NewLinkWorker creates the link worker.
func NewLinkWorker(gateway *provider.Gateway, logger *slog.Logger) *LinkWorker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &LinkWorker{gateway: gateway, logger: logger}
}

// Name implements Worker.
func (w *LinkWorker) Name() string { return "link" }

// Validate requires a parseable absolute http(s) URL.
func (w *LinkWorker) Validate(payload string) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return fmt.Errorf("missing or empty url")
	}
	parsed, err := url.Parse(payload)
	if err != nil {
		return fmt.Errorf("unparseable url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// Process implements Worker.
func (w *LinkWorker) Process(ctx context.Context, t *task.Task) (*task.Verdict, error) {
	target := strings.TrimSpace(t.Payload)
	var findings []task.Finding

	reputation, err := w.gateway.CheckDomain(ctx, target)
	if err != nil {
		if degradable(err) {
			w.logger.Warn("reputation provider unavailable, degrading to static analysis",
				"task_id", t.ID, "error", err)
			return staticLinkVerdict(target), nil
		}
		return nil, err
	}
	findings = append(findings, reputationFinding(reputation, 0.6))

	classification, err := w.gateway.InferText(ctx, linkPrompt(target))
	if err != nil {
		if degradable(err) {
			// Reputation answered; fold in the static shape check
			// instead of the LLM and mark the verdict partial.
			static := staticLinkFinding(target)
			static.Weight = 0.4
			findings = append(findings, static)
			risk, confidence := task.Aggregate(findings)
			return &task.Verdict{
				Risk:       risk,
				Confidence: confidence,
				Findings:   findings,
				Partial:    true,
			}, nil
		}
		return nil, err
	}
	findings = append(findings, task.Finding{
		Check:      "llm_url_shape",
		Risk:       riskFromClassification(classification.Classification),
		Confidence: classification.Confidence,
		Weight:     0.4,
		Detail:     "LLM classification of the URL",
	})

	risk, confidence := task.Aggregate(findings)
	return &task.Verdict{Risk: risk, Confidence: confidence, Findings: findings}, nil
}

// linkPrompt is the inference prompt for URL-shape classification.
func linkPrompt(target string) string {
	return "Classify the following URL as a phishing/malware risk. " +
		"Answer high or low.\nURL: " + target
}

// reputationFinding converts a provider reputation into evidence.
func reputationFinding(reputation *provider.Reputation, weight float64) task.Finding {
	finding := task.Finding{
		Check:      "domain_reputation",
		Risk:       task.RiskLow,
		Confidence: reputation.Score,
		Weight:     weight,
		Detail:     "domain reputation lookup",
	}
	if !reputation.Safe {
		finding.Risk = task.RiskHigh
		finding.Detail = "domain flagged unsafe by reputation provider"
	}
	return finding
}

// staticLinkVerdict is the fully degraded path: heuristics only,
// explicitly partial.
func staticLinkVerdict(target string) *task.Verdict {
	finding := staticLinkFinding(target)
	finding.Weight = 1.0
	return &task.Verdict{
		Risk:       finding.Risk,
		Confidence: finding.Confidence,
		Findings:   []task.Finding{finding},
		Partial:    true,
	}
}

// staticLinkFinding inspects the URL shape without any network call:
// IP-literal hosts, credentials-in-URL, punycode, and deep subdomain
// chains are the classic lure shapes.
func staticLinkFinding(target string) task.Finding {
	finding := task.Finding{
		Check:      "static_url_shape",
		Risk:       task.RiskLow,
		Confidence: 0.3,
		Weight:     1.0,
		Detail:     "static URL shape heuristics",
	}

	parsed, err := url.Parse(target)
	if err != nil {
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.5
		finding.Detail = "URL does not parse"
		return finding
	}

	host := parsed.Hostname()
	switch {
	case net.ParseIP(host) != nil:
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.7
		finding.Detail = "IP-literal host"
	case parsed.User != nil:
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.6
		finding.Detail = "credentials embedded in URL"
	case strings.Contains(host, "xn--"):
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.6
		finding.Detail = "punycode host"
	case strings.Count(host, ".") >= 4:
		finding.Risk = task.RiskHigh
		finding.Confidence = 0.5
		finding.Detail = "unusually deep subdomain chain"
	}
	return finding
}

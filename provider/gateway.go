// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider is the gateway to every external capability the
// workers call: LLM inference, domain reputation, and dynamic
// execution in the sandbox pool.
//
// The gateway applies one uniform policy to the two HTTP providers:
// bounded retry with exponential backoff for transient connectivity
// failures only, immediate classified surfacing for semantic
// rejections. What to do after retry exhaustion, degrading to a
// partial static verdict or failing the task, is worker policy, not
// gateway policy; the gateway only guarantees the error kind.
//
// Dynamic execution carries no gateway-level retry at all: the device
// session has its own narrow retry contract (endpoint re-selection on
// connect failure) and everything past connect is non-retryable by
// design.
package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/droidvet/droidvet/device"
	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

// DynamicRunner executes an artifact in a sandbox. Implemented by
// device.Manager; faked in worker tests.
type DynamicRunner interface {
	Run(ctx context.Context, taskID, artifactRef string) (*device.Result, error)
}

// Gateway fronts all external capabilities for the workers.
type Gateway struct {
	llm        *llmClient
	reputation *reputationClient
	dynamic    DynamicRunner

	clock       clock.Clock
	logger      *slog.Logger
	maxAttempts int
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// InferenceURL is the LLM provider base URL.
	InferenceURL string

	// ReputationURL is the domain-reputation provider base URL.
	ReputationURL string

	// Timeout bounds each individual HTTP call. Default 20s.
	Timeout time.Duration

	// MaxAttempts is the total tries per call (first plus retries).
	// Default 3.
	MaxAttempts int

	// Dynamic executes sandbox runs. May be nil when dynamic
	// analysis is disabled; RunDynamic then fails classified.
	Dynamic DynamicRunner

	// Logger receives retry warnings. Nil means discard.
	Logger *slog.Logger
}

// Option configures optional Gateway dependencies.
type Option func(*Gateway)

// WithClock overrides the backoff clock (tests).
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithHTTPClient overrides the HTTP client used for both providers
// (tests, custom transports).
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.llm.httpClient = client
		g.reputation.httpClient = client
	}
}

// NewGateway creates a provider gateway.
func NewGateway(cfg GatewayConfig, opts ...Option) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	httpClient := &http.Client{Timeout: timeout}
	gateway := &Gateway{
		llm:         &llmClient{baseURL: cfg.InferenceURL, httpClient: httpClient},
		reputation:  &reputationClient{baseURL: cfg.ReputationURL, httpClient: httpClient},
		dynamic:     cfg.Dynamic,
		clock:       clock.Real(),
		logger:      logger,
		maxAttempts: maxAttempts,
	}
	for _, opt := range opts {
		opt(gateway)
	}
	return gateway
}

// InferText classifies a prompt through the LLM provider. Errors are
// classified provider_rejected or provider_unavailable.
func (g *Gateway) InferText(ctx context.Context, prompt string) (*Classification, error) {
	var classification *Classification
	err := callWithRetry(ctx, g.clock, g.logger, "infer_text", g.maxAttempts,
		func(ctx context.Context) error {
			result, err := g.llm.infer(ctx, prompt)
			if err != nil {
				return err
			}
			classification = result
			return nil
		})
	if err != nil {
		return nil, err
	}
	return classification, nil
}

// CheckDomain queries the reputation provider for a URL. Errors are
// classified provider_rejected or provider_unavailable.
func (g *Gateway) CheckDomain(ctx context.Context, url string) (*Reputation, error) {
	var reputation *Reputation
	err := callWithRetry(ctx, g.clock, g.logger, "check_domain", g.maxAttempts,
		func(ctx context.Context) error {
			result, err := g.reputation.check(ctx, url)
			if err != nil {
				return err
			}
			reputation = result
			return nil
		})
	if err != nil {
		return nil, err
	}
	return reputation, nil
}

// RunDynamic executes the artifact in a sandbox and returns the
// session result. Errors arrive already classified from the device
// and pool layers (connection, install, run, package_detection,
// provisioning_exhausted).
func (g *Gateway) RunDynamic(ctx context.Context, taskID, artifactRef string) (*device.Result, error) {
	if g.dynamic == nil {
		// Configured off. Same kind as an empty pool so worker
		// degradation policy needs no extra case.
		return nil, task.NewError(task.ErrProvisioningExhausted,
			"dynamic analysis is disabled")
	}
	return g.dynamic.Run(ctx, taskID, artifactRef)
}

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/droidvet/droidvet/artifact"
	"github.com/droidvet/droidvet/devicepool"
	"github.com/droidvet/droidvet/task"
)

// Result is the outcome of one dynamic-analysis session: the captured
// artifacts plus the session id for later interactive lookup.
type Result struct {
	// SessionID identifies the bound session for VNC and control
	// follow-up.
	SessionID string

	// Package is the detected identity of the installed artifact.
	Package string

	// ScreenshotRef is the artifact-store reference of the PNG
	// capture.
	ScreenshotRef artifact.Ref

	// EventTrailRef is the artifact-store reference of the recorded
	// event trail.
	EventTrailRef artifact.Ref

	// Events is the synthetic event trail, in order.
	Events []string
}

// binding ties a session id to the endpoint that served it and the
// package that ran. The endpoint reference survives Release: it is a
// weak reference for address formatting, not a lease.
type binding struct {
	endpoint *devicepool.Endpoint
	pkg      string
}

// Manager drives sandboxed dynamic analysis: it leases endpoints from
// the pool, runs the fixed install/diff/launch/capture protocol over
// the bridge, and tracks session bindings for interactive follow-up.
//
// Config fields are read-only after construction; the sessions map is
// the only mutable state and has its own lock.
type Manager struct {
	pool      *devicepool.Pool
	bridge    Bridge
	artifacts *artifact.Store
	logger    *slog.Logger

	// connectRetries is how many additional endpoints are tried
	// after the first connect failure. Only step 1 (connect) is
	// retried this way; later protocol steps surface immediately.
	connectRetries int

	vncTemplate string
	vncPort     int

	mu       sync.Mutex
	sessions map[string]binding
	pkgCache map[string]string // artifact payload -> package name
}

// ManagerConfig configures a session Manager.
type ManagerConfig struct {
	Pool      *devicepool.Pool
	Bridge    Bridge
	Artifacts *artifact.Store
	Logger    *slog.Logger

	// ConnectRetries defaults to 2 additional attempts.
	ConnectRetries int

	// VNCURLTemplate defaults to "vnc://{host}:{port}".
	VNCURLTemplate string

	// VNCPort defaults to 5900.
	VNCPort int
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	template := cfg.VNCURLTemplate
	if template == "" {
		template = "vnc://{host}:{port}"
	}
	port := cfg.VNCPort
	if port <= 0 {
		port = 5900
	}
	retries := cfg.ConnectRetries
	if retries < 0 {
		retries = 0
	}
	return &Manager{
		pool:           cfg.Pool,
		bridge:         cfg.Bridge,
		artifacts:      cfg.Artifacts,
		logger:         logger,
		connectRetries: retries,
		vncTemplate:    template,
		vncPort:        port,
		sessions:       make(map[string]binding),
		pkgCache:       make(map[string]string),
	}
}

// Run executes the full dynamic-analysis protocol for one artifact:
// acquire and connect (with bounded endpoint re-selection), snapshot,
// install, diff, launch, capture. The leased endpoint is always
// released before Run returns, with an outcome reflecting what the
// session left behind.
//
// Errors are classified: connection failures exhaust retries before
// surfacing; install, run, and package-detection failures surface
// immediately because re-selecting an endpoint cannot fix them.
func (m *Manager) Run(ctx context.Context, taskID, artifactRef string) (*Result, error) {
	endpoint, err := m.connectEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	m.logger.Info("sandbox session starting",
		"task_id", taskID,
		"endpoint", endpoint.URI,
	)

	result, outcome, err := m.drive(ctx, taskID, endpoint, artifactRef)
	m.pool.Release(endpoint, outcome)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[result.SessionID] = binding{endpoint: endpoint, pkg: result.Package}
	m.mu.Unlock()

	m.logger.Info("sandbox session complete",
		"task_id", taskID,
		"session_id", result.SessionID,
		"package", result.Package,
	)
	return result, nil
}

// connectEndpoint acquires and connects an endpoint, re-selecting on
// connect failure up to the retry bound. A failed connect retires the
// endpoint: a dead bridge endpoint almost never recovers within a
// task's lifetime, and retiring it steers provisioning toward fresh
// capacity.
func (m *Manager) connectEndpoint(ctx context.Context) (*devicepool.Endpoint, error) {
	attempts := m.connectRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		endpoint, err := m.pool.Acquire(ctx)
		if err != nil {
			// Provisioning exhaustion is fatal at this layer; the
			// worker decides whether to degrade or fail the task.
			return nil, err
		}

		if err := m.bridge.Connect(ctx, endpoint.HostPort()); err != nil {
			m.logger.Warn("endpoint connect failed",
				"endpoint", endpoint.URI,
				"attempt", attempt+1,
				"error", err,
			)
			m.pool.Release(endpoint, devicepool.OutcomeFaulty)
			lastErr = err
			continue
		}
		return endpoint, nil
	}
	return nil, task.Errorf(task.ErrConnection,
		"no endpoint reachable after %d attempts: %v", attempts, lastErr)
}

// drive runs protocol steps 2-7 against a connected endpoint and
// decides the release outcome: reusable on success and on install
// failures (the artifact is the problem), faulty when launch or the
// package diff left the device in an unknown state.
func (m *Manager) drive(ctx context.Context, taskID string, endpoint *devicepool.Endpoint, artifactRef string) (*Result, devicepool.Outcome, error) {
	hostPort := endpoint.HostPort()
	events := []string{"connect:" + hostPort}

	before, err := m.bridge.ListPackages(ctx, hostPort)
	if err != nil {
		return nil, devicepool.OutcomeFaulty, err
	}

	if err := m.bridge.Install(ctx, hostPort, artifactRef); err != nil {
		// The endpoint is fine; the artifact would fail anywhere.
		return nil, devicepool.OutcomeReusable, err
	}
	events = append(events, "install")

	after, err := m.bridge.ListPackages(ctx, hostPort)
	if err != nil {
		return nil, devicepool.OutcomeFaulty, err
	}

	packageName, err := DetectNewPackage(before, after)
	if err != nil {
		if cached, ok := m.cachedPackage(artifactRef); ok && task.IsKind(err, task.ErrPackageDetection) && len(after) == len(before) {
			// Re-analysis of an artifact already installed on this
			// device: the diff is empty but the identity is known.
			packageName = cached
		} else {
			return nil, devicepool.OutcomeFaulty, err
		}
	}
	m.cachePackage(artifactRef, packageName)
	events = append(events, "detect:"+packageName)

	if err := m.bridge.Launch(ctx, hostPort, packageName); err != nil {
		return nil, devicepool.OutcomeFaulty, err
	}
	events = append(events, "launch:"+packageName)

	screenshot, err := m.bridge.Screenshot(ctx, hostPort)
	if err != nil {
		return nil, devicepool.OutcomeFaulty, err
	}
	events = append(events, "screenshot")

	screenshotRef, err := m.artifacts.Put(artifact.KindScreenshot, screenshot)
	if err != nil {
		return nil, devicepool.OutcomeReusable, fmt.Errorf("device: storing screenshot: %w", err)
	}

	trail, err := cbor.Marshal(events)
	if err != nil {
		return nil, devicepool.OutcomeReusable, fmt.Errorf("device: encoding event trail: %w", err)
	}
	trailRef, err := m.artifacts.Put(artifact.KindEventTrail, trail)
	if err != nil {
		return nil, devicepool.OutcomeReusable, fmt.Errorf("device: storing event trail: %w", err)
	}

	return &Result{
		SessionID:     uuid.NewString(),
		Package:       packageName,
		ScreenshotRef: screenshotRef,
		EventTrailRef: trailRef,
		Events:        events,
	}, devicepool.OutcomeReusable, nil
}

// ResolveInteractiveURL formats the remote-viewing address for a
// bound session. Fails with an unknown_session classified error when
// the id is not bound.
func (m *Manager) ResolveInteractiveURL(sessionID string) (string, error) {
	m.mu.Lock()
	bound, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return "", task.Errorf(task.ErrUnknownSession, "no session %s", sessionID)
	}

	url := strings.ReplaceAll(m.vncTemplate, "{host}", bound.endpoint.Host())
	url = strings.ReplaceAll(url, "{port}", strconv.Itoa(m.vncPort))
	return url, nil
}

func (m *Manager) cachedPackage(artifactRef string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkg, ok := m.pkgCache[artifactRef]
	return pkg, ok
}

func (m *Manager) cachePackage(artifactRef, pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkgCache[artifactRef] = pkg
}

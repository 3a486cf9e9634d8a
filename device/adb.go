// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

// commandRunner executes one bridge binary invocation and returns its
// combined output. Split out so ADBBridge's protocol logic (output
// parsing, fallbacks, boot polling) is testable without a device.
type commandRunner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// execRunner runs the adb binary with a per-command timeout.
type execRunner struct {
	path    string
	timeout time.Duration
}

func (r *execRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.path, args...)
	output, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return output, fmt.Errorf("device: %s %s: %w: %s", r.path, args[0], err, stderr)
	}
	return output, nil
}

// ADBBridge implements Bridge over the adb command-line protocol.
type ADBBridge struct {
	runner commandRunner
	clock  clock.Clock
	logger *slog.Logger

	// fallbackActivity is launched via `am start` when monkey fails
	// to inject events. Game-engine packages frequently export only
	// this activity.
	fallbackActivity string

	// bootAttempts and bootInterval bound the post-connect wait for
	// sys.boot_completed.
	bootAttempts int
	bootInterval time.Duration
}

// ADBConfig configures an ADBBridge.
type ADBConfig struct {
	// Path is the adb executable. Default "adb".
	Path string

	// CommandTimeout bounds each adb invocation. Default 60s.
	CommandTimeout time.Duration

	// FallbackActivity is the activity started when monkey cannot
	// launch the package. Default the Unity player activity.
	FallbackActivity string

	// Clock drives the boot-completion poll. Default real clock.
	Clock clock.Clock

	// Logger receives per-command debug output. Nil means discard.
	Logger *slog.Logger
}

// NewADBBridge creates the production adb-backed bridge.
func NewADBBridge(cfg ADBConfig) *ADBBridge {
	path := cfg.Path
	if path == "" {
		path = "adb"
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	bridge := &ADBBridge{
		runner:           &execRunner{path: path, timeout: timeout},
		clock:            cfg.Clock,
		logger:           cfg.Logger,
		fallbackActivity: cfg.FallbackActivity,
		bootAttempts:     10,
		bootInterval:     5 * time.Second,
	}
	if bridge.clock == nil {
		bridge.clock = clock.Real()
	}
	if bridge.logger == nil {
		bridge.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	if bridge.fallbackActivity == "" {
		bridge.fallbackActivity = "com.unity3d.player.UnityPlayerActivity"
	}
	return bridge
}

// Connect dials the endpoint and waits for boot completion. Any
// failure is a connection classified error, and the caller re-selects
// a different endpoint.
func (b *ADBBridge) Connect(ctx context.Context, hostPort string) error {
	output, err := b.runner.Run(ctx, "connect", hostPort)
	if err != nil {
		return task.Errorf(task.ErrConnection, "adb connect %s: %v", hostPort, err)
	}
	text := strings.ToLower(string(output))
	if strings.Contains(text, "failed") || strings.Contains(text, "unable") {
		return task.Errorf(task.ErrConnection, "adb connect %s: %s", hostPort, strings.TrimSpace(string(output)))
	}

	return b.awaitBoot(ctx, hostPort)
}

// awaitBoot polls sys.boot_completed until the device reports 1.
func (b *ADBBridge) awaitBoot(ctx context.Context, hostPort string) error {
	for attempt := 0; attempt < b.bootAttempts; attempt++ {
		output, err := b.runner.Run(ctx, "-s", hostPort, "shell", "getprop", "sys.boot_completed")
		if err == nil && strings.TrimSpace(string(output)) == "1" {
			return nil
		}
		b.logger.Debug("device not booted yet",
			"host_port", hostPort,
			"attempt", attempt+1,
		)
		select {
		case <-ctx.Done():
			return task.Errorf(task.ErrConnection, "waiting for %s to boot: %v", hostPort, ctx.Err())
		case <-b.clock.After(b.bootInterval):
		}
	}
	return task.Errorf(task.ErrConnection, "device %s not booted after %d checks", hostPort, b.bootAttempts)
}

// ListPackages returns the raw `pm list packages -f` lines.
func (b *ADBBridge) ListPackages(ctx context.Context, hostPort string) ([]string, error) {
	output, err := b.runner.Run(ctx, "-s", hostPort, "shell", "pm", "list", "packages", "-f")
	if err != nil {
		return nil, task.Errorf(task.ErrConnection, "listing packages on %s: %v", hostPort, err)
	}
	var lines []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Install pushes the artifact. adb reports success inside stdout, not
// via exit code, so the output is checked for the Success marker.
func (b *ADBBridge) Install(ctx context.Context, hostPort, artifactPath string) error {
	output, err := b.runner.Run(ctx, "-s", hostPort, "install", artifactPath)
	if err != nil {
		return task.Errorf(task.ErrInstall, "installing %s on %s: %v", artifactPath, hostPort, err)
	}
	if !strings.Contains(string(output), "Success") {
		return task.Errorf(task.ErrInstall, "installing %s on %s: %s",
			artifactPath, hostPort, strings.TrimSpace(string(output)))
	}
	return nil
}

// Launch starts the package with one monkey event burst; if monkey
// reports no injected events, falls back to starting the configured
// activity directly.
func (b *ADBBridge) Launch(ctx context.Context, hostPort, packageName string) error {
	output, err := b.runner.Run(ctx, "-s", hostPort, "shell", "monkey", "-v", "-p", packageName, "1")
	if err == nil && strings.Contains(strings.ToLower(string(output)), "injecting event") {
		return nil
	}

	b.logger.Debug("monkey launch failed, trying am start",
		"host_port", hostPort,
		"package", packageName,
	)
	component := packageName + "/" + b.fallbackActivity
	output, err = b.runner.Run(ctx, "-s", hostPort, "shell", "am", "start", "-n", component)
	if err != nil {
		return task.Errorf(task.ErrRun, "launching %s on %s: %v", packageName, hostPort, err)
	}
	if !strings.Contains(string(output), "Starting:") {
		return task.Errorf(task.ErrRun, "launching %s on %s: %s",
			packageName, hostPort, strings.TrimSpace(string(output)))
	}
	return nil
}

// Screenshot captures the screen as raw PNG bytes via exec-out.
func (b *ADBBridge) Screenshot(ctx context.Context, hostPort string) ([]byte, error) {
	output, err := b.runner.Run(ctx, "-s", hostPort, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, task.Errorf(task.ErrRun, "capturing screenshot on %s: %v", hostPort, err)
	}
	if len(output) == 0 {
		return nil, task.Errorf(task.ErrRun, "empty screenshot from %s", hostPort)
	}
	return output, nil
}

// Input sends one raw input command.
func (b *ADBBridge) Input(ctx context.Context, hostPort string, args ...string) error {
	full := append([]string{"-s", hostPort, "shell"}, args...)
	if _, err := b.runner.Run(ctx, full...); err != nil {
		return task.Errorf(task.ErrRun, "input on %s: %v", hostPort, err)
	}
	return nil
}

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package devicepool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/droidvet/droidvet/lib/clock"
)

// AutomationProvisioner drives the external infrastructure-automation
// tool (terraform) to create sandbox instances. The contract is a
// file-based handoff: the automation writes a JSON document mapping
// resource class to endpoint URIs, and the provisioner polls that
// document after the invocation completes.
//
// The stale document is removed before invocation so the poll can
// only observe endpoints that postdate this round.
type AutomationProvisioner struct {
	// Binary is the automation executable, typically "terraform".
	Binary string

	// Dir is the automation working directory, passed via -chdir.
	Dir string

	// InstancesFile is the handoff document path.
	InstancesFile string

	// ResourceClass is the handoff key to read. Default "emulator".
	ResourceClass string

	// Timeout bounds one provisioning round end to end.
	Timeout time.Duration

	// Clock drives the handoff poll. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives invocation progress. Nil means discard.
	Logger *slog.Logger
}

// handoff is the automation's output document:
//
//	{"emulator": ["http://emulator1:5555"], "sandbox": [...]}
type handoff map[string][]string

// Provision runs the automation and blocks until the handoff document
// lists at least one endpoint for the resource class, or the round
// deadline elapses. The desired instance count is passed to the
// automation through its variable mechanism (TF_VAR_emulator_count).
func (p *AutomationProvisioner) Provision(ctx context.Context, count int) ([]string, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.Real()
	}
	class := p.ResourceClass
	if class == "" {
		class = "emulator"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.Remove(p.InstancesFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("devicepool: removing stale handoff %s: %w", p.InstancesFile, err)
	}

	env := append(os.Environ(), fmt.Sprintf("TF_VAR_%s_count=%d", class, count))

	logger.Info("provisioning sandbox instances",
		"class", class,
		"count", count,
		"dir", p.Dir,
	)

	if err := p.run(ctx, env, "init", "-input=false", "-no-color"); err != nil {
		return nil, err
	}
	if err := p.run(ctx, env, "apply", "-auto-approve", "-input=false", "-no-color"); err != nil {
		return nil, err
	}

	// The automation has reported completion; the handoff document
	// may lag by a moment (the writer is a provisioner-side resource,
	// not the apply process itself). Poll with backoff instead of a
	// flat sleep.
	uris, err := p.awaitHandoff(ctx, clk, class)
	if err != nil {
		return nil, err
	}

	logger.Info("provisioning complete", "class", class, "endpoints", len(uris))
	return uris, nil
}

// run executes one automation command in the working directory.
func (p *AutomationProvisioner) run(ctx context.Context, env []string, args ...string) error {
	full := append([]string{"-chdir=" + p.Dir}, args...)
	cmd := exec.CommandContext(ctx, p.Binary, full...)
	cmd.Env = env

	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if len(detail) > 512 {
			detail = detail[len(detail)-512:]
		}
		return fmt.Errorf("devicepool: %s %s: %w: %s", p.Binary, args[0], err, detail)
	}
	return nil
}

// awaitHandoff polls the handoff document until it lists endpoints
// for the resource class or ctx expires. The poll interval starts at
// 500ms and doubles to a 5s ceiling.
func (p *AutomationProvisioner) awaitHandoff(ctx context.Context, clk clock.Clock, class string) ([]string, error) {
	interval := 500 * time.Millisecond
	const maxInterval = 5 * time.Second

	for {
		uris, err := readHandoff(p.InstancesFile, class)
		if err == nil && len(uris) > 0 {
			return uris, nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("devicepool: handoff %s never became readable: %w", p.InstancesFile, err)
			}
			return nil, fmt.Errorf("devicepool: handoff %s listed no %q endpoints before deadline", p.InstancesFile, class)
		case <-clk.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// readHandoff parses the handoff document and returns the endpoint
// list for the resource class.
func readHandoff(path, class string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc handoff
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing handoff: %w", err)
	}
	return doc[class], nil
}

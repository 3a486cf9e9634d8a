// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

// scriptRunner answers adb invocations from a respond function and
// records every call.
type scriptRunner struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(args []string) ([]byte, error)
}

func (r *scriptRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
	return r.respond(args)
}

func (r *scriptRunner) commandLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, len(r.calls))
	for i, call := range r.calls {
		lines[i] = strings.Join(call, " ")
	}
	return lines
}

func testBridge(runner commandRunner, clk clock.Clock) *ADBBridge {
	return &ADBBridge{
		runner:           runner,
		clock:            clk,
		logger:           slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)})),
		fallbackActivity: "com.unity3d.player.UnityPlayerActivity",
		bootAttempts:     3,
		bootInterval:     time.Second,
	}
}

func TestConnectSuccess(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		switch args[0] {
		case "connect":
			return []byte("connected to emulator1:5555\n"), nil
		case "-s":
			return []byte("1\n"), nil // getprop sys.boot_completed
		}
		return nil, fmt.Errorf("unexpected command %v", args)
	}}

	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))
	if err := bridge.Connect(context.Background(), "emulator1:5555"); err != nil {
		t.Fatal(err)
	}
}

func TestConnectFailureOutput(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		return []byte("failed to connect to emulator1:5555\n"), nil
	}}

	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))
	err := bridge.Connect(context.Background(), "emulator1:5555")
	if !task.IsKind(err, task.ErrConnection) {
		t.Fatalf("error = %v, want connection", err)
	}
}

func TestConnectWaitsForBoot(t *testing.T) {
	var bootChecks int
	var mu sync.Mutex
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		if args[0] == "connect" {
			return []byte("connected to emulator1:5555\n"), nil
		}
		mu.Lock()
		bootChecks++
		checks := bootChecks
		mu.Unlock()
		if checks < 2 {
			return []byte("\n"), nil // still booting
		}
		return []byte("1\n"), nil
	}}

	fakeClock := clock.Fake(time.Unix(0, 0))
	bridge := testBridge(runner, fakeClock)

	done := make(chan error, 1)
	go func() {
		done <- bridge.Connect(context.Background(), "emulator1:5555")
	}()

	fakeClock.WaitForWaiters(1)
	fakeClock.Advance(time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect never returned")
	}
}

func TestBootTimeout(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		if args[0] == "connect" {
			return []byte("connected to emulator1:5555\n"), nil
		}
		return []byte("0\n"), nil
	}}

	fakeClock := clock.Fake(time.Unix(0, 0))
	bridge := testBridge(runner, fakeClock)

	done := make(chan error, 1)
	go func() {
		done <- bridge.Connect(context.Background(), "emulator1:5555")
	}()

	for i := 0; i < bridge.bootAttempts; i++ {
		fakeClock.WaitForWaiters(1)
		fakeClock.Advance(time.Second)
	}

	select {
	case err := <-done:
		if !task.IsKind(err, task.ErrConnection) {
			t.Fatalf("error = %v, want connection", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Connect never returned")
	}
}

func TestInstallParsesSuccessMarker(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		return []byte("Performing Streamed Install\nSuccess\n"), nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	if err := bridge.Install(context.Background(), "emulator1:5555", "/tmp/sample.apk"); err != nil {
		t.Fatal(err)
	}
}

func TestInstallFailure(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		return []byte("Failure [INSTALL_PARSE_FAILED_NOT_APK]\n"), nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	err := bridge.Install(context.Background(), "emulator1:5555", "/tmp/sample.apk")
	if !task.IsKind(err, task.ErrInstall) {
		t.Fatalf("error = %v, want install", err)
	}
}

func TestLaunchViaMonkey(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		return []byte(":Monkey: seed=0 count=1\n:Injecting event #0\nEvents injected: 1\n"), nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	if err := bridge.Launch(context.Background(), "emulator1:5555", "com.evil.lure"); err != nil {
		t.Fatal(err)
	}
	if len(runner.commandLines()) != 1 {
		t.Fatalf("commands = %v, want monkey only", runner.commandLines())
	}
}

func TestLaunchFallsBackToActivityStart(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "monkey") {
			return []byte("** No activities found to run, monkey aborted.\n"), nil
		}
		return []byte("Starting: Intent { cmp=com.evil.lure/com.unity3d.player.UnityPlayerActivity }\n"), nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	if err := bridge.Launch(context.Background(), "emulator1:5555", "com.evil.lure"); err != nil {
		t.Fatal(err)
	}

	commands := runner.commandLines()
	if len(commands) != 2 {
		t.Fatalf("commands = %v", commands)
	}
	if !strings.Contains(commands[1], "am start -n com.evil.lure/com.unity3d.player.UnityPlayerActivity") {
		t.Fatalf("fallback command = %q", commands[1])
	}
}

func TestLaunchFailsWhenBothPathsFail(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		joined := strings.Join(args, " ")
		if strings.Contains(joined, "monkey") {
			return []byte("** No activities found to run, monkey aborted.\n"), nil
		}
		return []byte("Error: Activity class does not exist.\n"), nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	err := bridge.Launch(context.Background(), "emulator1:5555", "com.evil.lure")
	if !task.IsKind(err, task.ErrRun) {
		t.Fatalf("error = %v, want run", err)
	}
}

func TestScreenshotRejectsEmptyCapture(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		return nil, nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	_, err := bridge.Screenshot(context.Background(), "emulator1:5555")
	if !task.IsKind(err, task.ErrRun) {
		t.Fatalf("error = %v, want run", err)
	}
}

func TestListPackagesSplitsLines(t *testing.T) {
	runner := &scriptRunner{respond: func(args []string) ([]byte, error) {
		return []byte(listingLine("com.android.settings") + "\n" + listingLine("com.android.systemui") + "\n\n"), nil
	}}
	bridge := testBridge(runner, clock.Fake(time.Unix(0, 0)))

	lines, err := bridge.ListPackages(context.Background(), "emulator1:5555")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
}

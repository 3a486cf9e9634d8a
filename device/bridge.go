// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "context"

// Bridge is the device-bridge protocol a sandbox endpoint speaks.
// The production implementation shells out to adb; tests substitute a
// fake. Keeping the protocol behind an interface is what lets the
// session driver's retry and diff logic run under test without a
// device in sight.
//
// All methods take the endpoint's host:port explicitly; a Bridge has
// no session state of its own.
type Bridge interface {
	// Connect establishes the bridge connection and waits for the
	// device to report boot completion. Failures here are the only
	// ones worth re-selecting an endpoint for.
	Connect(ctx context.Context, hostPort string) error

	// ListPackages enumerates installed packages as raw listing
	// lines (the `pm list packages -f` format).
	ListPackages(ctx context.Context, hostPort string) ([]string, error)

	// Install pushes the artifact onto the device.
	Install(ctx context.Context, hostPort, artifactPath string) error

	// Launch triggers automated interaction against the package:
	// synthetic monkey events first, activity-start fallback second.
	Launch(ctx context.Context, hostPort, packageName string) error

	// Screenshot captures the current screen as raw PNG bytes.
	Screenshot(ctx context.Context, hostPort string) ([]byte, error)

	// Input sends one raw input command (tap, swipe, text,
	// keyevent) to the device.
	Input(ctx context.Context, hostPort string, args ...string) error
}

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"strconv"

	"github.com/droidvet/droidvet/task"
)

// ControlRequest is one interactive action against a bound session.
type ControlRequest struct {
	// Action is one of: screenshot, tap, swipe, type, back, home.
	Action string `json:"action"`

	// X, Y are the tap coordinates, and the swipe start.
	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	// X2, Y2 are the swipe end coordinates.
	X2 int `json:"x2,omitempty"`
	Y2 int `json:"y2,omitempty"`

	// Text is the input for the type action.
	Text string `json:"text,omitempty"`
}

// ControlResult is the action outcome. Screenshot is only set for the
// screenshot action.
type ControlResult struct {
	// Detail is a short confirmation string.
	Detail string `json:"detail"`

	// Screenshot is raw PNG bytes for the screenshot action.
	Screenshot []byte `json:"screenshot,omitempty"`
}

// Control performs an interactive action against the device that
// served a session. The session binding is a weak reference: if the
// endpoint was since torn down, the bridge command fails and the
// error surfaces classified.
func (m *Manager) Control(ctx context.Context, sessionID string, request ControlRequest) (*ControlResult, error) {
	m.mu.Lock()
	bound, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, task.Errorf(task.ErrUnknownSession, "no session %s", sessionID)
	}
	hostPort := bound.endpoint.HostPort()

	switch request.Action {
	case "screenshot":
		data, err := m.bridge.Screenshot(ctx, hostPort)
		if err != nil {
			return nil, err
		}
		return &ControlResult{Detail: "screenshot captured", Screenshot: data}, nil

	case "tap":
		err := m.bridge.Input(ctx, hostPort, "input", "tap",
			strconv.Itoa(request.X), strconv.Itoa(request.Y))
		if err != nil {
			return nil, err
		}
		return &ControlResult{Detail: "tap done"}, nil

	case "swipe":
		err := m.bridge.Input(ctx, hostPort, "input", "swipe",
			strconv.Itoa(request.X), strconv.Itoa(request.Y),
			strconv.Itoa(request.X2), strconv.Itoa(request.Y2), "500")
		if err != nil {
			return nil, err
		}
		return &ControlResult{Detail: "swipe done"}, nil

	case "type":
		if request.Text == "" {
			return nil, task.NewError(task.ErrValidation, "type action requires text")
		}
		err := m.bridge.Input(ctx, hostPort, "input", "text", escapeInputText(request.Text))
		if err != nil {
			return nil, err
		}
		return &ControlResult{Detail: "text typed"}, nil

	case "back":
		if err := m.bridge.Input(ctx, hostPort, "input", "keyevent", "4"); err != nil {
			return nil, err
		}
		return &ControlResult{Detail: "back done"}, nil

	case "home":
		err := m.bridge.Input(ctx, hostPort,
			"am", "start", "-a", "android.intent.action.MAIN",
			"-c", "android.intent.category.HOME")
		if err != nil {
			return nil, err
		}
		return &ControlResult{Detail: "home done"}, nil
	}

	return nil, task.Errorf(task.ErrValidation, "unknown control action %q", request.Action)
}

// escapeInputText rewrites characters the `input text` command cannot
// carry literally. Spaces become %s per the input tool's convention.
func escapeInputText(text string) string {
	escaped := make([]rune, 0, len(text))
	for _, r := range text {
		if r == ' ' {
			escaped = append(escaped, '%', 's')
			continue
		}
		escaped = append(escaped, r)
	}
	return string(escaped)
}

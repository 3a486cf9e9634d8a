// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/droidvet/droidvet/device"
	"github.com/droidvet/droidvet/provider"
	"github.com/droidvet/droidvet/task"
)

// providerScript drives the httptest provider pair behind a gateway.
// Empty response strings make the endpoint answer 500, which with
// MaxAttempts 1 surfaces immediately as provider_unavailable.
type providerScript struct {
	inference  string
	reputation string
}

func scriptedGateway(t *testing.T, script providerScript, dynamic provider.DynamicRunner) *provider.Gateway {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body string
		switch {
		case strings.HasPrefix(r.URL.Path, "/inference"):
			body = script.inference
		case strings.HasPrefix(r.URL.Path, "/domain/check"):
			body = script.reputation
		}
		if body == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return provider.NewGateway(provider.GatewayConfig{
		InferenceURL:  server.URL,
		ReputationURL: server.URL,
		MaxAttempts:   1,
		Dynamic:       dynamic,
	})
}

// fakeRunner is a canned DynamicRunner.
type fakeRunner struct {
	result *device.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, taskID, artifactRef string) (*device.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTask(kind task.Kind, payload string) *task.Task {
	return &task.Task{
		ID:      "task-under-test",
		Kind:    kind,
		Payload: payload,
		Status:  task.StatusProcessing,
	}
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"no links here", nil},
		{"visit http://example.com today", []string{"http://example.com"}},
		{"go to https://a.example/path.", []string{"https://a.example/path"}},
		{
			"two: http://one.example, and https://two.example!",
			[]string{"http://one.example", "https://two.example"},
		},
		{"quoted \"http://q.example\" link", []string{"http://q.example"}},
	}

	for _, test := range tests {
		got := extractURLs(test.text)
		if len(got) != len(test.want) {
			t.Errorf("extractURLs(%q) = %v, want %v", test.text, got, test.want)
			continue
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("extractURLs(%q)[%d] = %q, want %q", test.text, i, got[i], test.want[i])
			}
		}
	}
}

func TestDegradable(t *testing.T) {
	degradableKinds := []task.ErrorKind{
		task.ErrProviderUnavailable, task.ErrProvisioningExhausted, task.ErrConnection,
	}
	for _, kind := range degradableKinds {
		if !degradable(task.NewError(kind, "x")) {
			t.Errorf("%s should be degradable", kind)
		}
	}
	fatalKinds := []task.ErrorKind{
		task.ErrProviderRejected, task.ErrInstall, task.ErrRun, task.ErrPackageDetection,
	}
	for _, kind := range fatalKinds {
		if degradable(task.NewError(kind, "x")) {
			t.Errorf("%s should not be degradable", kind)
		}
	}
}

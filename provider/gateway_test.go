// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

func TestInferTextRetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"classification": "high", "confidence": 0.92}`))
	}))
	defer server.Close()

	fakeClock := clock.Fake(time.Unix(0, 0))
	gateway := NewGateway(GatewayConfig{
		InferenceURL:  server.URL,
		ReputationURL: server.URL,
		MaxAttempts:   3,
	}, WithClock(fakeClock))

	type result struct {
		classification *Classification
		err            error
	}
	done := make(chan result, 1)
	go func() {
		classification, err := gateway.InferText(context.Background(), "classify this")
		done <- result{classification, err}
	}()

	// Two failures, so two backoff waits: 1s then 2s.
	fakeClock.WaitForWaiters(1)
	fakeClock.Advance(time.Second)
	fakeClock.WaitForWaiters(1)
	fakeClock.Advance(2 * time.Second)

	select {
	case got := <-done:
		if got.err != nil {
			t.Fatal(got.err)
		}
		if got.classification.Classification != "high" || got.classification.Confidence != 0.92 {
			t.Fatalf("classification = %+v", got.classification)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("InferText never returned")
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d", attempts.Load())
	}
}

func TestInferTextRejectionIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "prompt too long", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	gateway := NewGateway(GatewayConfig{
		InferenceURL:  server.URL,
		ReputationURL: server.URL,
		MaxAttempts:   3,
	}, WithClock(clock.Fake(time.Unix(0, 0))))

	_, err := gateway.InferText(context.Background(), "classify this")
	if !task.IsKind(err, task.ErrProviderRejected) {
		t.Fatalf("error = %v, want provider_rejected", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("attempts = %d, semantic rejection must not retry", attempts.Load())
	}
}

func TestInferTextExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fakeClock := clock.Fake(time.Unix(0, 0))
	gateway := NewGateway(GatewayConfig{
		InferenceURL:  server.URL,
		ReputationURL: server.URL,
		MaxAttempts:   3,
	}, WithClock(fakeClock))

	done := make(chan error, 1)
	go func() {
		_, err := gateway.InferText(context.Background(), "classify this")
		done <- err
	}()

	fakeClock.WaitForWaiters(1)
	fakeClock.Advance(time.Second)
	fakeClock.WaitForWaiters(1)
	fakeClock.Advance(2 * time.Second)

	select {
	case err := <-done:
		if !task.IsKind(err, task.ErrProviderUnavailable) {
			t.Fatalf("error = %v, want provider_unavailable", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("InferText never returned")
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d", attempts.Load())
	}
}

func TestCheckDomain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/domain/check" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("url"); got != "http://phish.example/login" {
			t.Errorf("url parameter = %q", got)
		}
		w.Write([]byte(`{"safe": false, "score": 0.97}`))
	}))
	defer server.Close()

	gateway := NewGateway(GatewayConfig{
		InferenceURL:  server.URL,
		ReputationURL: server.URL,
	})

	reputation, err := gateway.CheckDomain(context.Background(), "http://phish.example/login")
	if err != nil {
		t.Fatal(err)
	}
	if reputation.Safe || reputation.Score != 0.97 {
		t.Fatalf("reputation = %+v", reputation)
	}
}

func TestCheckDomainConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening

	fakeClock := clock.Fake(time.Unix(0, 0))
	gateway := NewGateway(GatewayConfig{
		InferenceURL:  server.URL,
		ReputationURL: server.URL,
		MaxAttempts:   2,
	}, WithClock(fakeClock))

	done := make(chan error, 1)
	go func() {
		_, err := gateway.CheckDomain(context.Background(), "http://example.com")
		done <- err
	}()

	fakeClock.WaitForWaiters(1)
	fakeClock.Advance(time.Second)

	select {
	case err := <-done:
		if !task.IsKind(err, task.ErrProviderUnavailable) {
			t.Fatalf("error = %v, want provider_unavailable", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("CheckDomain never returned")
	}
}

func TestRunDynamicDisabled(t *testing.T) {
	gateway := NewGateway(GatewayConfig{
		InferenceURL:  "http://unused",
		ReputationURL: "http://unused",
	})

	_, err := gateway.RunDynamic(context.Background(), "task-1", "/tmp/sample.apk")
	if !task.IsKind(err, task.ErrProvisioningExhausted) {
		t.Fatalf("error = %v, want provisioning_exhausted", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&HTTPError{StatusCode: 400}, false},
		{&HTTPError{StatusCode: 404}, false},
		{&HTTPError{StatusCode: 422}, false},
		{&HTTPError{StatusCode: 429}, true},
		{&HTTPError{StatusCode: 500}, true},
		{&HTTPError{StatusCode: 503}, true},
		{context.DeadlineExceeded, true},
	}
	for _, test := range tests {
		if got := isTransient(test.err); got != test.want {
			t.Errorf("isTransient(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}

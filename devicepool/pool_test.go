// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package devicepool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/droidvet/droidvet/task"
)

// fakeProvisioner returns canned endpoint batches and counts calls.
type fakeProvisioner struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	err     error

	// block, when non-nil, holds Provision until closed.
	block chan struct{}
	// started receives one value per Provision invocation.
	started chan struct{}
}

func (f *fakeProvisioner) Provision(ctx context.Context, count int) ([]string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if call > len(f.batches) {
		return nil, nil
	}
	return f.batches[call-1], nil
}

func (f *fakeProvisioner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestAcquirePrefersAvailableEndpoints(t *testing.T) {
	provisioner := &fakeProvisioner{}
	pool := New(provisioner, 1, nil)
	pool.AddEndpoints([]string{"http://emulator1:5555", "http://emulator2:5555"})

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// FIFO: oldest endpoint leases first.
	if first.URI != "http://emulator1:5555" || second.URI != "http://emulator2:5555" {
		t.Fatalf("lease order %s, %s", first.URI, second.URI)
	}
	if provisioner.callCount() != 0 {
		t.Fatalf("provisioned %d times with endpoints available", provisioner.callCount())
	}
}

func TestAcquireProvisionsWhenEmpty(t *testing.T) {
	provisioner := &fakeProvisioner{batches: [][]string{
		{"http://emulator1:5555", "http://emulator2:5555"},
	}}
	pool := New(provisioner, 2, nil)

	endpoint, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if endpoint.URI != "http://emulator1:5555" {
		t.Fatalf("leased %s", endpoint.URI)
	}
	if provisioner.callCount() != 1 {
		t.Fatalf("provision calls = %d", provisioner.callCount())
	}

	// The second instance from the round is still available.
	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if provisioner.callCount() != 1 {
		t.Fatalf("provision calls = %d after draining the round", provisioner.callCount())
	}
}

func TestConcurrentBurstProvisionsOnce(t *testing.T) {
	provisioner := &fakeProvisioner{
		batches: [][]string{{"http://emulator1:5555", "http://emulator2:5555"}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	pool := New(provisioner, 2, nil)

	const waiters = 4
	results := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := pool.Acquire(context.Background())
			results <- err
		}()
	}

	// Hold the round open until every waiter is parked behind it.
	<-provisioner.started
	time.Sleep(100 * time.Millisecond)
	close(provisioner.block)

	var leased, exhausted int
	for i := 0; i < waiters; i++ {
		err := <-results
		switch {
		case err == nil:
			leased++
		case task.IsKind(err, task.ErrProvisioningExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if provisioner.callCount() != 1 {
		t.Fatalf("provision calls = %d, want exactly 1 for the burst", provisioner.callCount())
	}
	if leased != 2 || exhausted != 2 {
		t.Fatalf("leased=%d exhausted=%d, want 2/2", leased, exhausted)
	}
}

func TestReleaseReusableReturnsEndpoint(t *testing.T) {
	provisioner := &fakeProvisioner{}
	pool := New(provisioner, 1, nil)
	pool.AddEndpoints([]string{"http://emulator1:5555"})

	endpoint, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pool.Release(endpoint, OutcomeReusable)

	again, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.URI != endpoint.URI {
		t.Fatalf("re-acquire leased %s", again.URI)
	}
	if provisioner.callCount() != 0 {
		t.Fatal("release did not return the endpoint to the pool")
	}
}

func TestReleaseFaultyRetiresEndpoint(t *testing.T) {
	provisioner := &fakeProvisioner{batches: [][]string{{"http://emulator2:5555"}}}
	pool := New(provisioner, 1, nil)
	pool.AddEndpoints([]string{"http://emulator1:5555"})

	endpoint, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pool.Release(endpoint, OutcomeFaulty)

	if stats := pool.Stats(); stats.Available != 0 || stats.Leased != 0 {
		t.Fatalf("stats after retire = %+v", stats)
	}

	// The retired endpoint never comes back; the next acquire
	// provisions fresh capacity.
	replacement, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if replacement.URI != "http://emulator2:5555" {
		t.Fatalf("leased %s", replacement.URI)
	}
}

func TestDoubleReleaseIsHarmless(t *testing.T) {
	pool := New(&fakeProvisioner{}, 1, nil)
	pool.AddEndpoints([]string{"http://emulator1:5555"})

	endpoint, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pool.Release(endpoint, OutcomeReusable)
	pool.Release(endpoint, OutcomeReusable)

	if stats := pool.Stats(); stats.Available != 1 {
		t.Fatalf("double release duplicated the endpoint: %+v", stats)
	}
}

func TestAcquireFailsWhenProvisioningFails(t *testing.T) {
	provisioner := &fakeProvisioner{err: fmt.Errorf("terraform apply: exit status 1")}
	pool := New(provisioner, 1, nil)

	_, err := pool.Acquire(context.Background())
	if !task.IsKind(err, task.ErrProvisioningExhausted) {
		t.Fatalf("error = %v, want provisioning_exhausted", err)
	}
}

func TestAcquireFailsWhenRoundProducesNothing(t *testing.T) {
	pool := New(&fakeProvisioner{}, 1, nil)

	_, err := pool.Acquire(context.Background())
	if !task.IsKind(err, task.ErrProvisioningExhausted) {
		t.Fatalf("error = %v, want provisioning_exhausted", err)
	}
}

func TestAddEndpointsIgnoresKnownURIs(t *testing.T) {
	pool := New(&fakeProvisioner{}, 1, nil)
	pool.AddEndpoints([]string{"http://emulator1:5555"})

	endpoint, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// A seed reload must not clobber the live lease.
	pool.AddEndpoints([]string{"http://emulator1:5555"})
	if stats := pool.Stats(); stats.Available != 0 || stats.Leased != 1 {
		t.Fatalf("stats after re-add = %+v", stats)
	}
	pool.Release(endpoint, OutcomeReusable)
}

func TestEndpointHostPort(t *testing.T) {
	tests := []struct {
		uri      string
		hostPort string
		host     string
	}{
		{"http://emulator1:5555", "emulator1:5555", "emulator1"},
		{"tcp://10.0.0.7:5555", "10.0.0.7:5555", "10.0.0.7"},
		{"emulator1:5555", "emulator1:5555", "emulator1:5555"},
	}
	for _, test := range tests {
		endpoint := &Endpoint{URI: test.uri}
		if got := endpoint.HostPort(); got != test.hostPort {
			t.Errorf("HostPort(%q) = %q, want %q", test.uri, got, test.hostPort)
		}
		if got := endpoint.Host(); got != test.host {
			t.Errorf("Host(%q) = %q, want %q", test.uri, got, test.host)
		}
	}
}

// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package devicepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/droidvet/droidvet/lib/clock"
	"github.com/droidvet/droidvet/task"
)

// State is an endpoint's position in its lifecycle:
// Unknown → Provisioning → Available → Leased → (Available | Retired).
// The pool only ever holds Available and Leased entries; Provisioning
// is the window inside Acquire while a round is in flight, and Retired
// endpoints are removed.
type State string

const (
	// StateAvailable means the endpoint can be leased.
	StateAvailable State = "available"
	// StateLeased means exactly one in-flight session owns the
	// endpoint.
	StateLeased State = "leased"
)

// Outcome tells Release what the session left behind.
type Outcome int

const (
	// OutcomeReusable returns the endpoint to the pool.
	OutcomeReusable Outcome = iota
	// OutcomeFaulty retires the endpoint: its state is unknown or
	// corrupted and it becomes eligible for infrastructure teardown.
	OutcomeFaulty
)

// Endpoint is the pool's record of one live sandbox instance. It is a
// weak reference: the pool tracks the instance but never assumes
// exclusive control of the underlying infrastructure resource.
type Endpoint struct {
	// URI is the endpoint as reported by the automation handoff,
	// e.g. "http://emulator1:5555".
	URI string

	// Created is when the pool first learned of the endpoint.
	Created time.Time
}

// HostPort strips the URI scheme, returning the host:port the device
// bridge dials.
func (e *Endpoint) HostPort() string {
	if parsed, err := url.Parse(e.URI); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return e.URI
}

// Host returns just the host component, for remote-viewing URLs.
func (e *Endpoint) Host() string {
	if parsed, err := url.Parse(e.URI); err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	return e.URI
}

// Provisioner creates sandbox instances on demand. Provision blocks
// until the automation reports completion and returns the full
// endpoint URI list from the handoff document.
type Provisioner interface {
	Provision(ctx context.Context, count int) ([]string, error)
}

// Pool tracks sandbox endpoints and enforces the leasing invariant:
// an endpoint is leased to at most one in-flight session at a time.
// It is the only mutable state shared across concurrent workers, so
// everything in it is guarded by one mutex with short critical
// sections; provisioning happens outside it under its own
// single-in-flight guard.
type Pool struct {
	provisioner Provisioner
	clock       clock.Clock
	logger      *slog.Logger
	desired     int

	mu        sync.Mutex
	entries   map[string]*entry
	available []string // URIs in StateAvailable, FIFO

	// provisionMu serializes provisioning rounds so a burst of
	// acquisitions against an empty pool triggers one automation
	// run, not one per task. generation counts completed rounds:
	// an acquirer that observed the pool empty before a round it
	// did not start completed does not start another.
	provisionMu sync.Mutex
	generation  uint64
}

type entry struct {
	endpoint *Endpoint
	state    State
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the pool's clock (tests).
func WithClock(c clock.Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// New creates a pool backed by the given provisioner. desired is how
// many instances one provisioning round requests.
func New(provisioner Provisioner, desired int, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	if desired <= 0 {
		desired = 1
	}
	pool := &Pool{
		provisioner: provisioner,
		clock:       clock.Real(),
		logger:      logger,
		desired:     desired,
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

// Acquire returns a leased endpoint, provisioning if the pool has no
// available entries. Two concurrent acquisitions never return the
// same endpoint. Fails with a provisioning_exhausted classified error
// when automation completes without producing a leasable endpoint;
// the caller may retry the whole acquire after a cooldown.
func (p *Pool) Acquire(ctx context.Context) (*Endpoint, error) {
	if endpoint := p.tryLease(); endpoint != nil {
		return endpoint, nil
	}

	observed := p.currentGeneration()

	p.provisionMu.Lock()
	defer p.provisionMu.Unlock()

	// A round may have completed while we waited for the guard; its
	// endpoints are first-come-first-served among the coalesced
	// waiters.
	if endpoint := p.tryLease(); endpoint != nil {
		return endpoint, nil
	}

	// If a round completed after we observed the empty pool and
	// there is still nothing to lease, the round came up short.
	// Fail rather than hammer the automation once per waiter.
	if p.currentGeneration() != observed {
		return nil, task.NewError(task.ErrProvisioningExhausted,
			"provisioning round produced no leasable endpoints")
	}

	p.logger.Info("pool empty, provisioning", "desired", p.desired)
	uris, err := p.provisioner.Provision(ctx, p.desired)

	p.mu.Lock()
	p.generation++
	p.mu.Unlock()

	if err != nil {
		return nil, task.Errorf(task.ErrProvisioningExhausted,
			"provisioning failed: %v", err)
	}
	p.addEndpoints(uris)

	if endpoint := p.tryLease(); endpoint != nil {
		return endpoint, nil
	}
	return nil, task.NewError(task.ErrProvisioningExhausted,
		"automation reported no endpoints")
}

// Release returns a leased endpoint to the pool (OutcomeReusable) or
// retires it (OutcomeFaulty). Releasing an endpoint the pool does not
// hold as leased is a no-op: the session may race a retirement.
func (p *Pool) Release(endpoint *Endpoint, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ent, ok := p.entries[endpoint.URI]
	if !ok || ent.state != StateLeased {
		return
	}

	switch outcome {
	case OutcomeReusable:
		ent.state = StateAvailable
		p.available = append(p.available, endpoint.URI)
		p.logger.Debug("endpoint released", "uri", endpoint.URI)
	case OutcomeFaulty:
		delete(p.entries, endpoint.URI)
		p.logger.Warn("endpoint retired", "uri", endpoint.URI)
	}
}

// AddEndpoints registers externally known endpoints (seed file,
// operator action) as available. Already-known URIs are ignored so a
// reload never clobbers a live lease.
func (p *Pool) AddEndpoints(uris []string) {
	p.addEndpoints(uris)
}

// Stats is a point-in-time pool summary for health reporting.
type Stats struct {
	Available int `json:"available"`
	Leased    int `json:"leased"`
}

// Stats returns the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stats Stats
	for _, ent := range p.entries {
		switch ent.state {
		case StateAvailable:
			stats.Available++
		case StateLeased:
			stats.Leased++
		}
	}
	return stats
}

// tryLease atomically moves the oldest available endpoint to leased.
func (p *Pool) tryLease() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.available) > 0 {
		uri := p.available[0]
		p.available = p.available[1:]
		ent, ok := p.entries[uri]
		if !ok || ent.state != StateAvailable {
			// Stale queue entry from a retire/re-add cycle.
			continue
		}
		ent.state = StateLeased
		p.logger.Debug("endpoint leased", "uri", uri)
		return ent.endpoint
	}
	return nil
}

func (p *Pool) currentGeneration() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *Pool) addEndpoints(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, uri := range uris {
		if uri == "" {
			continue
		}
		if _, exists := p.entries[uri]; exists {
			continue
		}
		p.entries[uri] = &entry{
			endpoint: &Endpoint{URI: uri, Created: p.clock.Now()},
			state:    StateAvailable,
		}
		p.available = append(p.available, uri)
		added++
	}
	if added > 0 {
		p.logger.Info("endpoints registered", "count", added)
	}
}

// String implements fmt.Stringer for log lines.
func (s Stats) String() string {
	return fmt.Sprintf("available=%d leased=%d", s.Available, s.Leased)
}

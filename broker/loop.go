// Copyright 2026 The Droidvet Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/droidvet/droidvet/task"
)

// Dispatcher is the worker-side boundary the loop hands claimed tasks
// to. Exactly one of the return values is non-nil.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *task.Task) (*task.Verdict, *task.Error)
}

// sweepLimit bounds how many pending ids a single sweep re-enqueues.
const sweepLimit = 256

// Run drives the dispatch loop until ctx is cancelled: workers
// concurrent consumers of the wake-up channel, plus a sweeper that
// periodically re-enqueues pending rows. The sweep covers both
// signals dropped on a full channel and tasks left pending by a
// previous process.
func (b *Broker) Run(ctx context.Context, dispatcher Dispatcher, workers int, sweepInterval time.Duration) error {
	if workers <= 0 {
		workers = 1
	}

	var group sync.WaitGroup
	for i := 0; i < workers; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			b.consume(ctx, dispatcher)
		}()
	}

	group.Add(1)
	go func() {
		defer group.Done()
		b.sweep(ctx, sweepInterval)
	}()

	// Recover tasks stranded by an earlier shutdown before steady
	// state.
	b.enqueuePending(ctx)

	<-ctx.Done()
	group.Wait()
	return ctx.Err()
}

func (b *Broker) consume(ctx context.Context, dispatcher Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-b.queue:
			b.processOne(ctx, dispatcher, id)
		}
	}
}

// processOne claims and dispatches a single task. A lost claim means
// another consumer (or an earlier sweep duplicate) owns the id.
func (b *Broker) processOne(ctx context.Context, dispatcher Dispatcher, id string) {
	claimed, err := b.markProcessing(ctx, id)
	if err != nil {
		b.logger.Error("claiming task failed", "task_id", id, "error", err)
		return
	}
	if !claimed {
		return
	}

	claimedTask, err := b.Get(ctx, id)
	if err != nil {
		b.logger.Error("loading claimed task failed", "task_id", id, "error", err)
		return
	}

	verdict, taskErr := dispatcher.Dispatch(ctx, claimedTask)
	if taskErr != nil {
		if err := b.Fail(ctx, id, taskErr); err != nil {
			b.logger.Error("recording task error failed", "task_id", id, "error", err)
		}
		return
	}
	if err := b.Complete(ctx, id, verdict); err != nil {
		b.logger.Error("recording verdict failed", "task_id", id, "error", err)
	}
}

func (b *Broker) sweep(ctx context.Context, interval time.Duration) {
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.enqueuePending(ctx)
		}
	}
}

// enqueuePending pushes every pending row back onto the wake-up
// channel. Duplicates are harmless: the markProcessing guard makes
// the second claim a no-op.
func (b *Broker) enqueuePending(ctx context.Context) {
	var ids []string
	err := b.withConn(ctx, func(conn *sqlite.Conn) error {
		pending, err := selectByStatus(conn, task.StatusPending, sweepLimit)
		if err != nil {
			return err
		}
		ids = pending
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error("pending sweep failed", "error", err)
		}
		return
	}
	for _, id := range ids {
		b.signal(id)
	}
}

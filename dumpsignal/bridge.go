// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package dumpsignal records out-of-band requests for a live report.
//
// A request only sets a flag. The report itself is produced later by the
// hook at a point where the aggregation state is consistent.
package dumpsignal // import "go.opentelemetry.io/luaprof/dumpsignal"

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Bridge holds at most one pending dump request. Repeated requests before
// the pending one is taken coalesce.
type Bridge struct {
	pending atomic.Bool
}

// Request marks a dump as pending.
func (b *Bridge) Request() {
	b.pending.Store(true)
}

// Pending reports whether a dump is pending without clearing the request.
func (b *Bridge) Pending() bool {
	return b.pending.Load()
}

// Take clears a pending request and reports whether there was one.
func (b *Bridge) Take() bool {
	return b.pending.Load() && b.pending.CompareAndSwap(true, false)
}

// Notify turns delivery of any of sigs into a dump request until ctx is
// canceled. The returned function stops the delivery and waits until it has
// ended.
func (b *Bridge) Notify(ctx context.Context, sigs ...os.Signal) func() {
	// A buffer of one is enough: requests coalesce anyway.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	return b.run(ctx, func(ctx context.Context) {
		defer signal.Stop(ch)
		for {
			select {
			case sig := <-ch:
				log.Debugf("Received %v, requesting live report", sig)
				b.Request()
			case <-ctx.Done():
				return
			}
		}
	})
}

// StartPeriodic requests a dump every interval until ctx is canceled. The
// returned function stops the requests and waits until they have ended.
func (b *Bridge) StartPeriodic(ctx context.Context, interval time.Duration) func() {
	ticker := time.NewTicker(interval)

	return b.run(ctx, func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Request()
			case <-ctx.Done():
				return
			}
		}
	})
}

// run starts loop in a goroutine with a context derived from ctx.
func (b *Bridge) run(ctx context.Context, loop func(context.Context)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package hook turns the call and return events of the runtime into per call
// site statistics.
//
// Time is attributed per site: a return adds the time since the last event
// of the same site if that event was a call. Nested calls of other sites do
// not reset this interval, so the result is not a call stack aware self time.
package hook // import "go.opentelemetry.io/luaprof/hook"

import (
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/luaprof/aggregation"
	"go.opentelemetry.io/luaprof/callsite"
	"go.opentelemetry.io/luaprof/dumpsignal"
	"go.opentelemetry.io/luaprof/metrics"
)

// Clock returns the current time in microseconds.
type Clock func() int64

// MonotonicClock returns a Clock counting microseconds since its creation.
func MonotonicClock() Clock {
	start := time.Now()
	return func() int64 {
		return time.Since(start).Microseconds()
	}
}

// Dumper renders a report of the aggregated statistics.
type Dumper interface {
	Render(destructive bool) error
}

// Machine consumes hook events. OnEvent runs on every call and return of the
// profiled program and must stay cheap.
type Machine struct {
	table    *aggregation.Table
	requests *dumpsignal.Bridge
	dumper   Dumper
	now      Clock
	trace    bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the monotonic clock.
func WithClock(c Clock) Option {
	return func(m *Machine) {
		m.now = c
	}
}

// WithTracing logs every event at Info level.
func WithTracing(enabled bool) Option {
	return func(m *Machine) {
		m.trace = enabled
	}
}

// New returns a Machine that records into table and services the dump
// requests of requests with dumper.
func New(table *aggregation.Table, requests *dumpsignal.Bridge, dumper Dumper,
	opts ...Option) *Machine {
	m := &Machine{
		table:    table,
		requests: requests,
		dumper:   dumper,
		now:      MonotonicClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// serviceDump renders a live report if one was requested.
func (m *Machine) serviceDump() {
	if !m.requests.Take() {
		return
	}
	if err := m.dumper.Render(false); err != nil {
		log.Errorf("Failed to render live report: %v", err)
	}
}

// OnEvent records one event for site. site and its strings are not retained
// after OnEvent returns.
//
// Events of native functions are not timed. They are a safe point to render
// a pending live report, as native code can not re-enter the hook in a way
// that disturbs the state of a site.
func (m *Machine) OnEvent(kind EventKind, site *Descriptor) {
	if site.IsNative() {
		metrics.Inc(metrics.IDNativeEvents)
		m.serviceDump()
		return
	}

	// Read the clock first so a live report is not charged to this event.
	now := m.now()
	m.serviceDump()

	key := callsite.Encode(site.Source, site.Name, site.What, site.LineDefined)

	var created bool
	switch kind {
	case Call:
		created = m.table.ObserveCall(key, now)
	case Return, TailReturn:
		created = m.table.ObserveReturn(key, now)
	default:
		log.Fatalf("Invalid hook event %d for %v", kind, key)
		return
	}

	metrics.Inc(metrics.IDHookEvents)
	if created {
		metrics.Inc(metrics.IDNewSites)
	}
	if m.tracing() {
		m.logf("%4s: [%v] %v at %d", site.What, key, kind, now)
	}
}

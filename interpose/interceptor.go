// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package interpose wires the profiler into the lifecycle of runtime
// instances.
//
// The symbol interposition itself lives in the preload shim. It hands every
// construction and teardown of a runtime instance to an Interceptor, which
// calls the genuine entry points through a Library.
package interpose // import "go.opentelemetry.io/luaprof/interpose"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/luaprof/aggregation"
	"go.opentelemetry.io/luaprof/dumpsignal"
	"go.opentelemetry.io/luaprof/hook"
	"go.opentelemetry.io/luaprof/metrics"
	"go.opentelemetry.io/luaprof/report"
)

var (
	// ErrMissingSymbol is returned by an Opener if the library lacks one of
	// the lifecycle entry points.
	ErrMissingSymbol = errors.New("missing symbol")

	// ErrReservedSignal is returned if the dump signal can not be received
	// through os/signal because the Go runtime keeps it for itself.
	ErrReservedSignal = errors.New("signal is reserved by the Go runtime")
)

// State is an opaque handle of a runtime instance.
type State uintptr

// Library exposes the genuine lifecycle entry points of the runtime.
type Library interface {
	// NewState constructs a runtime instance. It returns 0 on failure.
	NewState() State
	// Close tears a runtime instance down.
	Close(State)
	// SetHook makes the runtime deliver call and return events of the
	// instance to Interceptor.OnEvent.
	SetHook(State)
}

// SignalWatcher is implemented by a Library that catches the dump signal in
// native code. The Library then calls Interceptor.RequestDump from the hook
// thread once the signal arrived.
type SignalWatcher interface {
	WatchSignal(sig syscall.Signal) error
}

// Opener resolves the Library at path.
type Opener func(path string) (Library, error)

// profiler is the state that exists once the first runtime instance was seen.
type profiler struct {
	lib      Library
	sink     io.Writer
	table    *aggregation.Table
	requests *dumpsignal.Bridge
	reporter *report.Reporter
	machine  *hook.Machine
}

// Interceptor handles construction and teardown of runtime instances. All
// runtime instances of a process share one aggregation table.
type Interceptor struct {
	ctx  context.Context
	open Opener
	opts []hook.Option

	init   func() (*profiler, error)
	loaded atomic.Pointer[profiler]
}

// New returns an Interceptor that resolves its Library with open on first
// use. Background work, like signal delivery, stops when ctx is canceled.
func New(ctx context.Context, open Opener, opts ...hook.Option) *Interceptor {
	i := &Interceptor{
		ctx:  ctx,
		open: open,
		opts: opts,
	}
	i.init = sync.OnceValues(i.setup)
	return i
}

func (i *Interceptor) setup() (*profiler, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return nil, err
	}

	lib, err := i.open(cfg.Library)
	if err != nil {
		return nil, fmt.Errorf("failed to patch library calls: %w", err)
	}

	p := &profiler{
		lib:      lib,
		sink:     openSink(cfg.LogFile),
		table:    aggregation.NewTable(),
		requests: &dumpsignal.Bridge{},
	}

	if cfg.MetricsFile != "" {
		if err = exportMetrics(cfg.MetricsFile); err != nil {
			log.Warnf("Not exporting metrics: %v", err)
		}
	}

	var reportOpts []report.Option
	if cfg.PprofPrefix != "" {
		reportOpts = append(reportOpts, report.WithPprofPrefix(cfg.PprofPrefix))
	}
	p.reporter = report.New(p.sink, p.table, reportOpts...)

	hookOpts := append([]hook.Option{hook.WithTracing(cfg.Debug)}, i.opts...)
	p.machine = hook.New(p.table, p.requests, p.reporter, hookOpts...)

	if err = i.watchSignal(p, cfg.Signal); err != nil {
		return nil, err
	}
	if cfg.Interval > 0 {
		p.requests.StartPeriodic(i.ctx, cfg.Interval)
	}

	log.Debugf("Profiling %s, reports go to %q on %v", cfg.Library, cfg.LogFile, cfg.Signal)
	i.loaded.Store(p)
	return p, nil
}

// watchSignal turns sig into dump requests, natively if the library supports
// it and through os/signal otherwise.
func (i *Interceptor) watchSignal(p *profiler, sig syscall.Signal) error {
	if w, ok := p.lib.(SignalWatcher); ok {
		if err := w.WatchSignal(sig); err != nil {
			return fmt.Errorf("failed to install %v handler: %w", sig, err)
		}
		return nil
	}
	if sig == unix.SIGPROF {
		return fmt.Errorf("%v: %w, choose another %s_SIGNAL", sig, ErrReservedSignal,
			EnvPrefix)
	}
	p.requests.Notify(i.ctx, sig)
	return nil
}

func exportMetrics(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if err = metrics.Export(f); err != nil {
		_ = f.Close()
		return err
	}
	return nil
}

// openSink opens path for appending. An empty or unusable path falls back to
// stderr.
func openSink(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		log.Warnf("Failed to open log file, reporting to stderr: %v", err)
		return os.Stderr
	}
	return f
}

// mustInit initializes the profiler on first use and terminates the process
// if that is not possible.
func (i *Interceptor) mustInit() *profiler {
	p, err := i.init()
	if err != nil {
		log.Fatalf("%v", err)
		return nil
	}
	return p
}

// NewState constructs a runtime instance with the genuine library and
// installs the hook into it.
func (i *Interceptor) NewState() State {
	p := i.mustInit()
	if p == nil {
		return 0
	}

	s := p.lib.NewState()
	if s == 0 {
		log.Warnf("Runtime instance construction failed, not profiling it")
		return 0
	}
	p.lib.SetHook(s)
	metrics.Inc(metrics.IDRuntimeInstances)
	p.reporter.Notice("Lua profiling library loaded.")
	return s
}

// Close tears the runtime instance down with the genuine library and then
// renders a destructive report.
func (i *Interceptor) Close(s State) {
	p := i.mustInit()
	if p == nil {
		return
	}

	p.lib.Close(s)
	p.reporter.Notice("Lua closed, stats follow.")
	if err := p.reporter.Render(true); err != nil {
		log.Errorf("Failed to render report: %v", err)
	}
}

// OnEvent is called by the runtime for every call and return. Events that
// arrive before the first runtime instance was constructed are dropped.
func (i *Interceptor) OnEvent(kind hook.EventKind, site *hook.Descriptor) {
	if p := i.loaded.Load(); p != nil {
		p.machine.OnEvent(kind, site)
	}
}

// RequestDump requests a live report at the next safe point. It is safe to
// call from any thread, but not from a signal handler.
func (i *Interceptor) RequestDump() {
	if p := i.loaded.Load(); p != nil {
		p.requests.Request()
	}
}

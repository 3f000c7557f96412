// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package report renders the aggregated call site statistics.
//
// A report is one block in the sink:
//
//	============================== Stats (pid 12345) ==============================
//	  ncalls   tottime  percall file:lineno(function)
//	     123     0.456    0.004 path/to/file.lua:10(myFunc)
//	   45/40     0.012    0.000 path/to/file.lua:3(otherFunc)
//	============================ Stats End (pid 12345) ============================
//
// Times are in milliseconds. The call count is shown as calls/returns when
// the two differ.
package report // import "go.opentelemetry.io/luaprof/report"

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/google/pprof/profile"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/luaprof/aggregation"
	"go.opentelemetry.io/luaprof/metrics"
)

const (
	headerLine = "  ncalls   tottime  percall file:lineno(function)\n"
	bannerFmt  = "============================== Stats (pid %5d) ==============================\n"
	footerFmt  = "============================ Stats End (pid %5d) ============================\n"
)

// Reporter writes reports of a table to a sink.
type Reporter struct {
	// mu serializes reports and notices of this process.
	mu    sync.Mutex
	sink  io.Writer
	table *aggregation.Table
	pid   int

	// pprofPrefix, if set, makes destructive reports also write a pprof
	// profile to <pprofPrefix>.<pid>.pb.gz.
	pprofPrefix string
	// drained accumulates the entries of all destructive reports, as every
	// runtime instance drains its own sites.
	drained *profile.Profile
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithPprofPrefix enables the pprof export on destructive reports.
func WithPprofPrefix(prefix string) Option {
	return func(r *Reporter) {
		r.pprofPrefix = prefix
	}
}

// WithPID overrides the process ID shown in the banners.
func WithPID(pid int) Option {
	return func(r *Reporter) {
		r.pid = pid
	}
}

// New returns a Reporter for table that writes to sink.
func New(sink io.Writer, table *aggregation.Table, opts ...Option) *Reporter {
	r := &Reporter{
		sink:  sink,
		table: table,
		pid:   unix.Getpid(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notice writes a single ":: "-prefixed line to the sink.
func (r *Reporter) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.sink, ":: "+msg+"\n"); err != nil {
		log.Debugf("Failed to write notice: %v", err)
	}
}

// Render writes a report of the table. A destructive report also removes the
// reported entries from the table.
func (r *Reporter) Render(destructive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []aggregation.Entry
	if destructive {
		entries = r.table.Drain()
		metrics.Inc(metrics.IDFinalDumps)
	} else {
		entries = r.table.Snapshot()
		metrics.Inc(metrics.IDLiveDumps)
	}
	metrics.Add(metrics.IDReportedSites, int64(len(entries)))
	defer metrics.Flush(context.Background())

	unlock, err := lockSink(r.sink)
	if err != nil {
		// Not every sink supports locks, e.g. some pipes and terminals.
		log.Debugf("Rendering report without lock: %v", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Debugf("Failed to release report lock: %v", err)
		}
	}()

	if err = WriteEntries(r.sink, r.pid, entries); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if destructive && r.pprofPrefix != "" {
		if err = r.writePprofFile(entries); err != nil {
			return err
		}
	}
	return nil
}

// writePprofFile merges entries into the profile of the earlier destructive
// reports and rewrites the profile file. r.mu must be held.
func (r *Reporter) writePprofFile(entries []aggregation.Entry) error {
	p, err := BuildProfile(entries)
	if err != nil {
		return err
	}
	if r.drained != nil {
		if p, err = profile.Merge([]*profile.Profile{r.drained, p}); err != nil {
			return fmt.Errorf("failed to merge pprof profile: %w", err)
		}
	}
	r.drained = p

	path := fmt.Sprintf("%s.%d.pb.gz", r.pprofPrefix, r.pid)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pprof file: %w", err)
	}
	if err = writeProfile(f, p); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write pprof file %s: %w", path, err)
	}
	return f.Close()
}

// WriteEntries writes one report block for entries, in the given order.
func WriteEntries(w io.Writer, pid int, entries []aggregation.Entry) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, bannerFmt, pid)
	bw.WriteString(headerLine)
	for i := range entries {
		writeRow(bw, &entries[i])
	}
	fmt.Fprintf(bw, footerFmt, pid)

	// bufio.Writer keeps the first error, Flush returns it.
	return bw.Flush()
}

func writeRow(w io.Writer, e *aggregation.Entry) {
	s := &e.Stats
	tottime := float64(s.TimeMicros) / 1000
	percall := 0.0
	if s.Calls > 0 {
		percall = tottime / float64(s.Calls)
	}

	var ncalls string
	if s.Balanced() {
		ncalls = strconv.FormatUint(s.Calls, 10)
	} else {
		ncalls = strconv.FormatUint(s.Calls, 10) + "/" + strconv.FormatUint(s.Returns, 10)
	}
	fmt.Fprintf(w, "%8s %9.3f %8.3f %s\n", ncalls, tottime, percall, e.Key.String())
}

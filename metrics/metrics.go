// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics counts what the profiler itself does.
//
// Counting happens on the hook path, so values are kept in atomics and only
// forwarded to the OTel meter by Flush, which runs at dump time. Without
// Export the counters go to the global meter provider.
package metrics // import "go.opentelemetry.io/luaprof/metrics"

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"go.opentelemetry.io/luaprof/vc"
)

// MetricID is the type for metric IDs.
type MetricID int

// Below are the different metric IDs that we currently implement.
const (
	// Number of call and return events that were timed.
	IDHookEvents MetricID = iota
	// Number of events from native call sites, which are not timed.
	IDNativeEvents
	// Number of call sites added to the aggregation table.
	IDNewSites
	// Number of non-destructive dumps (signal or interval triggered).
	IDLiveDumps
	// Number of destructive dumps at runtime teardown.
	IDFinalDumps
	// Number of runtime instances the hook was installed into.
	IDRuntimeInstances
	// Number of site rows written by all reports.
	IDReportedSites

	IDMax
)

type definition struct {
	name        string
	description string
}

var (
	definitions = [IDMax]definition{
		IDHookEvents:       {"luaprof.hook.events", "Timed call and return events"},
		IDNativeEvents:     {"luaprof.hook.native_events", "Events from native call sites"},
		IDNewSites:         {"luaprof.table.new_sites", "Call sites added to the table"},
		IDLiveDumps:        {"luaprof.report.live_dumps", "Non-destructive reports"},
		IDFinalDumps:       {"luaprof.report.final_dumps", "Destructive reports"},
		IDRuntimeInstances: {"luaprof.runtime.instances", "Runtime instances with the hook"},
		IDReportedSites:    {"luaprof.report.sites", "Site rows written by reports"},
	}

	values [IDMax]atomic.Int64

	// mutex serializes Flush and Export and protects the variables below.
	mutex    sync.Mutex
	flushed  [IDMax]int64
	counters [IDMax]metric.Int64Counter

	// reader and exporter are set by Export.
	reader   *sdkmetric.ManualReader
	exporter sdkmetric.Exporter
)

const instrumentationName = "go.opentelemetry.io/luaprof"

func init() {
	setMeter(otel.Meter(instrumentationName,
		metric.WithInstrumentationVersion(vc.Version())))
}

// setMeter creates the counters on meter. mutex must be held outside of init.
func setMeter(meter metric.Meter) {
	for id, def := range definitions {
		counter, err := meter.Int64Counter(def.name,
			metric.WithDescription(def.description),
			metric.WithUnit("1"))
		if err != nil {
			log.Errorf("Creating Int64Counter: %v", err)
			counters[id] = nil
			continue
		}
		counters[id] = counter
	}
}

// Export makes every Flush write the totals of all counters to w, one JSON
// document per Flush.
func Export(w io.Writer) error {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	mutex.Lock()
	defer mutex.Unlock()

	reader = sdkmetric.NewManualReader()
	exporter = exp
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	setMeter(provider.Meter(instrumentationName,
		metric.WithInstrumentationVersion(vc.Version())))

	// The new counters start at zero and receive the full totals.
	flushed = [IDMax]int64{}
	return nil
}

// Add adds value to the metric with the given ID.
func Add(id MetricID, value int64) {
	values[id].Add(value)
}

// Inc increments the metric with the given ID by one.
func Inc(id MetricID) {
	values[id].Add(1)
}

// Value returns the current value of the metric with the given ID.
func Value(id MetricID) int64 {
	return values[id].Load()
}

// Name returns the exported name of the metric with the given ID.
func Name(id MetricID) string {
	return definitions[id].name
}

// Flush forwards everything counted since the previous Flush to the OTel
// counters and, after Export, writes them out.
func Flush(ctx context.Context) {
	mutex.Lock()
	defer mutex.Unlock()

	for id := range IDMax {
		current := values[id].Load()
		delta := current - flushed[id]
		if delta == 0 {
			continue
		}
		flushed[id] = current
		if counters[id] != nil {
			counters[id].Add(ctx, delta)
		}
	}

	if reader == nil {
		return
	}
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		log.Warnf("Failed to collect metrics: %v", err)
		return
	}
	if err := exporter.Export(ctx, &rm); err != nil {
		log.Warnf("Failed to export metrics: %v", err)
	}
}

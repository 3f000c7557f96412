// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package report // import "go.opentelemetry.io/luaprof/report"

import (
	"fmt"
	"io"
	"time"

	"github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"

	"go.opentelemetry.io/luaprof/aggregation"
)

// WritePprof writes entries as a gzip compressed pprof profile.
func WritePprof(w io.Writer, entries []aggregation.Entry) error {
	p, err := BuildProfile(entries)
	if err != nil {
		return err
	}
	return writeProfile(w, p)
}

// BuildProfile converts entries into a pprof profile. Every call site becomes
// one function, one location and one sample carrying the call count, the
// return count and the accumulated time.
func BuildProfile(entries []aggregation.Entry) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "calls", Unit: "count"},
			{Type: "returns", Unit: "count"},
			{Type: "time", Unit: "microseconds"},
		},
		DefaultSampleType: "time",
		PeriodType:        &profile.ValueType{Type: "time", Unit: "microseconds"},
		Period:            1,
		TimeNanos:         time.Now().UnixNano(),
	}

	for i := range entries {
		e := &entries[i]
		id := uint64(i + 1)
		line := int64(e.Key.Line())
		fn := &profile.Function{
			ID:         id,
			Name:       e.Key.Name(),
			SystemName: e.Key.Name(),
			Filename:   e.Key.File(),
			StartLine:  line,
		}
		loc := &profile.Location{
			ID:   id,
			Line: []profile.Line{{Function: fn, Line: line}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value: []int64{
				int64(e.Stats.Calls),
				int64(e.Stats.Returns),
				e.Stats.TimeMicros,
			},
		})
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return p, nil
}

func writeProfile(w io.Writer, p *profile.Profile) error {
	gz := gzip.NewWriter(w)
	if err := p.WriteUncompressed(gz); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePprof(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePprof(&buf, newTable().Snapshot()))

	p, err := profile.Parse(&buf)
	require.NoError(t, err)

	require.Len(t, p.SampleType, 3)
	assert.Equal(t, "time", p.SampleType[2].Type)
	assert.Equal(t, "microseconds", p.SampleType[2].Unit)

	got := make(map[string][]int64)
	for _, s := range p.Sample {
		require.Len(t, s.Location, 1)
		require.Len(t, s.Location[0].Line, 1)
		fn := s.Location[0].Line[0].Function
		got[fn.Filename+":"+fn.Name] = s.Value
	}
	assert.Equal(t, map[string][]int64{
		"a.lua:fa": {2, 2, 1100},
		"b.lua:fb": {2, 0, 0},
	}, got)
}

func TestWritePprofEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePprof(&buf, nil))

	p, err := profile.Parse(&buf)
	require.NoError(t, err)
	assert.Empty(t, p.Sample)
}

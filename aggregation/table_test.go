// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package aggregation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/luaprof/callsite"
)

var (
	siteA = callsite.Encode("a.lua", "fa", "Lua", 1)
	siteB = callsite.Encode("b.lua", "fb", "Lua", 2)
	siteC = callsite.Encode("c.lua", "", "main", 0)
)

func keys(entries []Entry) []callsite.Key {
	out := make([]callsite.Key, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	return out
}

func TestTableFindOrCreate(t *testing.T) {
	tbl := NewTable()
	a := tbl.FindOrCreate(siteA)
	require.NotNil(t, a)
	assert.Zero(t, a.Calls)

	a.ObserveCall(10)
	assert.Same(t, a, tbl.FindOrCreate(siteA))
	assert.Equal(t, uint64(1), tbl.FindOrCreate(siteA).Calls)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableObserve(t *testing.T) {
	tbl := NewTable()
	assert.True(t, tbl.ObserveCall(siteA, 1000))
	assert.False(t, tbl.ObserveReturn(siteA, 1500))
	assert.False(t, tbl.ObserveCall(siteA, 2000))
	assert.False(t, tbl.ObserveReturn(siteA, 2600))

	entries := tbl.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(2), entries[0].Stats.Calls)
	assert.Equal(t, uint64(2), entries[0].Stats.Returns)
	assert.Equal(t, int64(1100), entries[0].Stats.TimeMicros)
}

func TestTableSortAscending(t *testing.T) {
	tbl := NewTable()
	// siteB: 300us, siteA: 100us, siteC: 100us (created after siteA).
	tbl.ObserveCall(siteB, 0)
	tbl.ObserveReturn(siteB, 300)
	tbl.ObserveCall(siteA, 0)
	tbl.ObserveReturn(siteA, 100)
	tbl.ObserveCall(siteC, 0)
	tbl.ObserveReturn(siteC, 100)

	assert.Equal(t, []callsite.Key{siteA, siteC, siteB}, keys(tbl.Snapshot()))
}

func TestTableSnapshotKeepsEntries(t *testing.T) {
	tbl := NewTable()
	tbl.ObserveCall(siteA, 0)
	tbl.ObserveReturn(siteA, 10)

	first := tbl.Snapshot()
	second := tbl.Snapshot()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, tbl.Len())

	tbl.ObserveCall(siteA, 20)
	tbl.ObserveReturn(siteA, 25)
	stats := tbl.Snapshot()[0].Stats
	assert.Equal(t, uint64(2), stats.Calls)
	assert.Equal(t, int64(15), stats.TimeMicros)
}

func TestTableDrain(t *testing.T) {
	tbl := NewTable()
	tbl.ObserveCall(siteA, 0)
	tbl.ObserveReturn(siteA, 10)
	tbl.ObserveCall(siteB, 0)

	drained := tbl.Drain()
	assert.Len(t, drained, 2)
	assert.Zero(t, tbl.Len())
	assert.Empty(t, tbl.Snapshot())

	// A drained site starts over from zero.
	assert.True(t, tbl.ObserveReturn(siteA, 50))
	stats := tbl.Snapshot()[0].Stats
	assert.Zero(t, stats.Calls)
	assert.Equal(t, uint64(1), stats.Returns)
	assert.Zero(t, stats.TimeMicros)
}

func TestTableRemove(t *testing.T) {
	tbl := NewTable()
	tbl.ObserveCall(siteA, 0)
	assert.True(t, tbl.Remove(siteA))
	assert.False(t, tbl.Remove(siteA))
	assert.Zero(t, tbl.Len())
}

func TestTableIterateCreationOrder(t *testing.T) {
	tbl := NewTable()
	tbl.ObserveCall(siteC, 0)
	tbl.ObserveCall(siteA, 0)
	tbl.ObserveCall(siteB, 0)

	var got []callsite.Key
	for k, stats := range tbl.Iterate() {
		assert.Equal(t, uint64(1), stats.Calls)
		got = append(got, k)
	}
	assert.Equal(t, []callsite.Key{siteC, siteA, siteB}, got)

	n := 0
	for range tbl.Iterate() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestTableConcurrentObserve(t *testing.T) {
	tbl := NewTable()
	sites := []callsite.Key{siteA, siteB, siteC}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 1000 {
				k := sites[i%len(sites)]
				tbl.ObserveCall(k, int64(i))
				tbl.ObserveReturn(k, int64(i+1))
			}
		}()
	}
	wg.Wait()

	var calls, returns uint64
	for _, e := range tbl.Snapshot() {
		calls += e.Stats.Calls
		returns += e.Stats.Returns
		assert.True(t, e.Stats.Balanced())
	}
	assert.Equal(t, uint64(8000), calls)
	assert.Equal(t, uint64(8000), returns)
}

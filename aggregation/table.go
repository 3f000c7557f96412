// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package aggregation keeps the per call site statistics of the profiler.
//
// The table is sharded by the key hash. Each shard is a swiss map guarded by
// its own mutex, so several runtime threads may report events concurrently.
package aggregation // import "go.opentelemetry.io/luaprof/aggregation"

import (
	"cmp"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dolthub/swiss"

	"go.opentelemetry.io/luaprof/callsite"
)

const (
	numShards = 16
	// initialShardSize is the number of sites a shard holds before it grows.
	initialShardSize = 64
)

// Entry is a copy of the statistics of one site taken out of the table.
type Entry struct {
	Key   callsite.Key
	Stats SiteStats
}

type shard struct {
	mu    sync.Mutex
	sites *swiss.Map[callsite.Key, *SiteStats]
}

// Table maps call site keys to their statistics.
type Table struct {
	shards [numShards]shard
	seq    atomic.Uint64
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].sites = swiss.NewMap[callsite.Key, *SiteStats](initialShardSize)
	}
	return t
}

func (t *Table) shardFor(key *callsite.Key) *shard {
	return &t.shards[key.Hash()%numShards]
}

// findOrCreate must be called with s.mu held.
func (t *Table) findOrCreate(s *shard, key callsite.Key) (stats *SiteStats, created bool) {
	if stats, ok := s.sites.Get(key); ok {
		return stats, false
	}
	stats = &SiteStats{seq: t.seq.Add(1)}
	s.sites.Put(key, stats)
	return stats, true
}

// FindOrCreate returns the statistics for key, creating a zeroed entry if the
// key was not seen before. The returned pointer is not protected by the table
// lock and must only be mutated by a single thread.
func (t *Table) FindOrCreate(key callsite.Key) *SiteStats {
	s := t.shardFor(&key)
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, _ := t.findOrCreate(s, key)
	return stats
}

// ObserveCall records a call of key at now. It reports whether a new entry
// was created.
func (t *Table) ObserveCall(key callsite.Key, now int64) bool {
	s := t.shardFor(&key)
	s.mu.Lock()
	stats, created := t.findOrCreate(s, key)
	stats.ObserveCall(now)
	s.mu.Unlock()
	return created
}

// ObserveReturn records a return of key at now. It reports whether a new
// entry was created.
func (t *Table) ObserveReturn(key callsite.Key, now int64) bool {
	s := t.shardFor(&key)
	s.mu.Lock()
	stats, created := t.findOrCreate(s, key)
	stats.ObserveReturn(now)
	s.mu.Unlock()
	return created
}

// Remove deletes key from the table and reports whether it was present.
func (t *Table) Remove(key callsite.Key) bool {
	s := t.shardFor(&key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sites.Delete(key)
}

// Len returns the number of sites in the table.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += s.sites.Count()
		s.mu.Unlock()
	}
	return n
}

// collect copies the entries of all shards. If drain is set the shards are
// emptied while their lock is held.
func (t *Table) collect(drain bool) []Entry {
	var entries []Entry
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		s.sites.Iter(func(k callsite.Key, v *SiteStats) bool {
			entries = append(entries, Entry{Key: k, Stats: *v})
			return false
		})
		if drain {
			s.sites.Clear()
		}
		s.mu.Unlock()
	}
	return entries
}

// Iterate yields a copy of every entry in creation order. The table is not
// locked while the caller consumes the sequence.
func (t *Table) Iterate() iter.Seq2[callsite.Key, SiteStats] {
	entries := t.collect(false)
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Stats.seq, b.Stats.seq)
	})
	return func(yield func(callsite.Key, SiteStats) bool) {
		for i := range entries {
			if !yield(entries[i].Key, entries[i].Stats) {
				return
			}
		}
	}
}

// Snapshot returns all entries sorted by accumulated time and leaves the
// table untouched.
func (t *Table) Snapshot() []Entry {
	entries := t.collect(false)
	SortByAccumulatedTime(entries)
	return entries
}

// Drain returns all entries sorted by accumulated time and removes them from
// the table. Later events for the same sites start from zero.
func (t *Table) Drain() []Entry {
	entries := t.collect(true)
	SortByAccumulatedTime(entries)
	return entries
}

// SortByAccumulatedTime orders entries ascending by accumulated time. Entries
// with equal time keep their creation order.
func SortByAccumulatedTime(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.Stats.TimeMicros, b.Stats.TimeMicros); c != 0 {
			return c
		}
		return cmp.Compare(a.Stats.seq, b.Stats.seq)
	})
}

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package aggregation // import "go.opentelemetry.io/luaprof/aggregation"

// SiteState is the per-site state that decides whether the next event closes
// a timed interval.
type SiteState uint8

const (
	// Idle: no event seen yet, or the last event was a return.
	Idle SiteState = iota
	// AwaitingReturn: the last event was a call; the next return closes an interval.
	AwaitingReturn
)

func (s SiteState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingReturn:
		return "awaiting-return"
	default:
		return "unknown"
	}
}

// SiteStats holds the counters of a single call site.
type SiteStats struct {
	// Calls and Returns only ever increase. They differ while frames of the
	// site are still active.
	Calls   uint64
	Returns uint64
	// TimeMicros is the exclusive time: the sum of the intervals between a
	// call of this site and the directly following return of this site.
	TimeMicros int64
	// LastEventMicros is the timestamp of the most recent event.
	LastEventMicros int64
	State           SiteState

	// seq orders entries by creation for stable sorting.
	seq uint64
}

// ObserveCall records a call event at now.
func (s *SiteStats) ObserveCall(now int64) {
	s.Calls++
	s.State = AwaitingReturn
	s.LastEventMicros = now
}

// ObserveReturn records a return (or tail return) event at now. The time since
// the last event is accounted only if that event was a call of this site.
// Clock steps backwards are accounted as zero.
func (s *SiteStats) ObserveReturn(now int64) {
	s.Returns++
	if s.State == AwaitingReturn {
		if d := now - s.LastEventMicros; d > 0 {
			s.TimeMicros += d
		}
	}
	s.State = Idle
	s.LastEventMicros = now
}

// Balanced reports whether every observed call has returned.
func (s *SiteStats) Balanced() bool {
	return s.Calls == s.Returns
}

package rx

import (
	"sync"
	"sync/atomic"
	"time"
)

// StreamState is the lifecycle phase of a stream.
type StreamState int32

const (
	// StreamContextPending means data has arrived but no context packet
	// has been seen yet; tuning metadata is unknown.
	StreamContextPending StreamState = iota

	// StreamActive means at least one context update has been merged.
	StreamActive
)

func (s StreamState) String() string {
	switch s {
	case StreamContextPending:
		return "context-pending"
	case StreamActive:
		return "active"
	}
	return "unknown"
}

// streamStats holds per-stream counters. They are written by the ingest
// goroutine and read concurrently by observers, hence the atomics.
type streamStats struct {
	state atomic.Int32

	packets           atomic.Uint64
	samples           atomic.Uint64
	contextUpdates    atomic.Uint64
	wireLost          atomic.Uint64
	lateDrops         atomic.Uint64
	backpressureDrops atomic.Uint64
	sizeMismatches    atomic.Uint64
	truncatedContexts atomic.Uint64

	lastArrival atomic.Int64 // unix nanoseconds
}

// StreamStats is a point-in-time copy of one stream's counters.
type StreamStats struct {
	State StreamState

	Packets           uint64
	Samples           uint64
	ContextUpdates    uint64
	WireLost          uint64
	LateDrops         uint64
	BackpressureDrops uint64
	SizeMismatches    uint64
	TruncatedContexts uint64

	LastArrival time.Time
}

func (s *streamStats) snapshot() StreamStats {
	out := StreamStats{
		State:             StreamState(s.state.Load()),
		Packets:           s.packets.Load(),
		Samples:           s.samples.Load(),
		ContextUpdates:    s.contextUpdates.Load(),
		WireLost:          s.wireLost.Load(),
		LateDrops:         s.lateDrops.Load(),
		BackpressureDrops: s.backpressureDrops.Load(),
		SizeMismatches:    s.sizeMismatches.Load(),
		TruncatedContexts: s.truncatedContexts.Load(),
	}
	if ns := s.lastArrival.Load(); ns != 0 {
		out.LastArrival = time.Unix(0, ns)
	}
	return out
}

// statsTable maps stream ids to their counters. Entries are only added
// by the ingest goroutine; the lock covers map shape for readers.
type statsTable struct {
	mu      sync.RWMutex
	streams map[uint32]*streamStats
}

func newStatsTable() *statsTable {
	return &statsTable{streams: make(map[uint32]*streamStats)}
}

func (t *statsTable) get(streamID uint32) *streamStats {
	t.mu.RLock()
	s, ok := t.streams[streamID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.streams[streamID]; ok {
		return s
	}
	s = &streamStats{}
	t.streams[streamID] = s
	return s
}

func (t *statsTable) snapshot() map[uint32]StreamStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint32]StreamStats, len(t.streams))
	for id, s := range t.streams {
		out[id] = s.snapshot()
	}
	return out
}

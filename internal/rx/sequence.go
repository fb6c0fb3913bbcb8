// Package rx assembles the receive pipeline for VITA 49 streams:
// per-stream sequence accounting, context aggregation, timestamp
// reordering and the ingest loop that ties them to a datagram source.
package rx

// counterModulus is the range of the header packet counter.
const counterModulus = 16

// SequenceMonitor tracks the modulo-16 packet counter independently for
// every stream and derives wire loss from counter gaps. Gaps of fifteen
// or more consecutive packets alias into the counter range and cannot
// be told apart from smaller ones.
//
// SequenceMonitor is not safe for concurrent use; it belongs to the
// ingest goroutine.
type SequenceMonitor struct {
	last map[uint32]uint8
}

// NewSequenceMonitor returns an empty monitor.
func NewSequenceMonitor() *SequenceMonitor {
	return &SequenceMonitor{last: make(map[uint32]uint8)}
}

// Observe records the counter of an arrived packet and returns how many
// packets were lost since the previous observation for the stream. The
// first observation of a stream establishes its baseline and reports
// zero loss regardless of the counter value.
func (m *SequenceMonitor) Observe(streamID uint32, counter uint8) int {
	counter %= counterModulus

	last, seen := m.last[streamID]
	m.last[streamID] = counter
	if !seen {
		return 0
	}

	expected := (last + 1) % counterModulus
	return int((counter - expected) % counterModulus)
}

// Reset forgets the baseline for a stream. The next observation starts
// a fresh sequence with zero reported loss.
func (m *SequenceMonitor) Reset(streamID uint32) {
	delete(m.last, streamID)
}

package rx

import (
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

// Snapshot is the accumulated tuning state of a stream. Valid carries
// the union of every indicator bit merged so far; a field is only
// meaningful when its bit is set there.
type Snapshot struct {
	vrt.ContextFields

	// Valid accumulates the indicator bits of all merged updates.
	Valid uint32

	// Updated is the arrival time of the last merged update.
	Updated time.Time
}

// Has reports whether a field has ever been populated for the stream.
func (s *Snapshot) Has(bit uint32) bool { return s.Valid&bit != 0 }

// ContextTrack keeps the latest context snapshot per stream. Updates
// merge field-wise: a packet carrying only a subset of fields overwrites
// those fields and leaves the rest of the snapshot untouched.
//
// ContextTrack is not safe for concurrent use; it belongs to the ingest
// goroutine.
type ContextTrack struct {
	streams map[uint32]*Snapshot
	now     func() time.Time
}

// NewContextTrack returns an empty track.
func NewContextTrack() *ContextTrack {
	return &ContextTrack{
		streams: make(map[uint32]*Snapshot),
		now:     time.Now,
	}
}

// Update merges a decoded context payload into the stream snapshot,
// creating the stream entry on first sight.
func (t *ContextTrack) Update(streamID uint32, f vrt.ContextFields) {
	s, ok := t.streams[streamID]
	if !ok {
		s = &Snapshot{}
		t.streams[streamID] = s
	}

	if f.Has(vrt.IndBandwidth) {
		s.Bandwidth = f.Bandwidth
	}
	if f.Has(vrt.IndIFReference) {
		s.IFReference = f.IFReference
	}
	if f.Has(vrt.IndRFReference) {
		s.RFReference = f.RFReference
	}
	if f.Has(vrt.IndRFOffset) {
		s.RFOffset = f.RFOffset
	}
	if f.Has(vrt.IndIFBandOffset) {
		s.IFBandOffset = f.IFBandOffset
	}
	if f.Has(vrt.IndRefLevel) {
		s.RefLevel = f.RefLevel
	}
	if f.Has(vrt.IndGain) {
		s.Gain1, s.Gain2 = f.Gain1, f.Gain2
	}
	if f.Has(vrt.IndSampleRate) {
		s.SampleRate = f.SampleRate
	}
	if f.Has(vrt.IndTimestampAdj) {
		s.TimestampAdj = f.TimestampAdj
	}
	if f.Has(vrt.IndTimestampCal) {
		s.TimestampCal = f.TimestampCal
	}
	if f.Has(vrt.IndDeviceID) {
		s.DeviceOUI, s.DeviceCode = f.DeviceOUI, f.DeviceCode
	}
	if f.Has(vrt.IndStateEvent) {
		s.State = f.State
	}

	s.Valid |= f.Indicator
	s.Indicator = s.Valid
	s.Updated = t.now()
}

// Snapshot returns a copy of the stream's accumulated state and whether
// any context has been seen for it.
func (t *ContextTrack) Snapshot(streamID uint32) (Snapshot, bool) {
	s, ok := t.streams[streamID]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// Streams returns the ids of all streams with known context.
func (t *ContextTrack) Streams() []uint32 {
	ids := make([]uint32, 0, len(t.streams))
	for id := range t.streams {
		ids = append(ids, id)
	}
	return ids
}

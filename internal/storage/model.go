package storage

import (
	"encoding/binary"
	"time"
)

// Session describes one capture run.
type Session struct {
	ID         int64
	UUID       string
	StartTime  time.Time
	ListenAddr string
	Config     *string
}

// StreamInfo is the persisted context of one stream within a session.
// Pointer fields are nil when the corresponding context field was never
// received; ContextValid carries the raw indicator union.
type StreamInfo struct {
	StreamID     uint32
	FirstSeen    time.Time
	UpdatedAt    time.Time
	ContextValid uint32

	RFReference *float64
	Bandwidth   *float64
	SampleRate  *float64
	RefLevel    *float64
	Gain1       *float64
	Gain2       *float64
}

// PacketRecord is one stored data packet, joined with the stream
// context that applies to it.
type PacketRecord struct {
	StreamID    uint32
	Seconds     uint32
	Picoseconds uint64
	SampleCount int
	Lost        int64
	Flushed     bool

	// IQ is the interleaved big-endian signed 16-bit payload as
	// captured on the wire.
	IQ []byte

	RFReference *float64
	SampleRate  *float64
}

// Time converts the packet timestamp to wall clock time, assuming a
// UTC-referenced integer part and picosecond fractions.
func (r *PacketRecord) Time() time.Time {
	return time.Unix(int64(r.Seconds), int64(r.Picoseconds/1000)).UTC()
}

// Samples decodes the stored payload into complex samples normalised
// to [-1, 1).
func (r *PacketRecord) Samples() []complex64 {
	out := make([]complex64, 0, len(r.IQ)/4)
	for i := 0; i+3 < len(r.IQ); i += 4 {
		re := int16(binary.BigEndian.Uint16(r.IQ[i:]))
		im := int16(binary.BigEndian.Uint16(r.IQ[i+2:]))
		out = append(out, complex(float32(re)/32768, float32(im)/32768))
	}
	return out
}

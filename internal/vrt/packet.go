package vrt

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Timestamp is the combined packet timestamp: whole seconds from the
// integer timestamp word and a fractional part whose unit depends on the
// TSF mode (picoseconds in real-time mode).
type Timestamp struct {
	Seconds  uint32
	Fraction uint64
}

// Compare orders timestamps by seconds, then fraction. It returns -1 if
// t precedes o, 0 if equal and 1 otherwise.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Seconds < o.Seconds:
		return -1
	case t.Seconds > o.Seconds:
		return 1
	case t.Fraction < o.Fraction:
		return -1
	case t.Fraction > o.Fraction:
		return 1
	}
	return 0
}

// Before reports whether t strictly precedes o.
func (t Timestamp) Before(o Timestamp) bool { return t.Compare(o) < 0 }

// Sub returns t-o as a duration, assuming picosecond fractions. The
// result saturates when o is later than t.
func (t Timestamp) Sub(o Timestamp) time.Duration {
	if t.Compare(o) < 0 {
		return 0
	}
	sec := int64(t.Seconds) - int64(o.Seconds)
	frac := int64(t.Fraction) - int64(o.Fraction)
	return time.Duration(sec)*time.Second + time.Duration(frac/1000)*time.Nanosecond
}

// Time converts a UTC-referenced timestamp to wall clock time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t.Seconds), int64(t.Fraction/1000)).UTC()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%012d", t.Seconds, t.Fraction)
}

// DataPacket is a decoded IF data packet. The sample payload is retained
// in wire form and converted on access.
type DataPacket struct {
	Header    Header
	StreamID  uint32
	ClassID   uint64
	Timestamp Timestamp

	// raw holds the interleaved big-endian signed 16-bit I/Q payload,
	// trailer excluded. It is a private copy of the datagram bytes.
	raw []byte

	Trailer uint32
}

// SampleCount returns the number of complex samples in the payload.
func (p *DataPacket) SampleCount() int { return len(p.raw) / 4 }

// Payload returns the raw interleaved I/Q bytes as received.
func (p *DataPacket) Payload() []byte { return p.raw }

// Samples decodes the payload into complex samples with both components
// normalised to [-1, 1).
func (p *DataPacket) Samples() []complex64 {
	out := make([]complex64, 0, p.SampleCount())
	for i := 0; i+3 < len(p.raw); i += 4 {
		re := int16(binary.BigEndian.Uint16(p.raw[i:]))
		im := int16(binary.BigEndian.Uint16(p.raw[i+2:]))
		out = append(out, complex(float32(re)/32768, float32(im)/32768))
	}
	return out
}

// ParseDataPacket decodes an IF data packet from a complete datagram.
// The header must already be parsed from the same buffer. The datagram
// length must match the header size field exactly, and the payload must
// hold whole I/Q pairs; otherwise ErrSizeMismatch is returned. The
// payload bytes are copied, so buf may be reused by the caller.
func ParseDataPacket(buf []byte, h Header) (*DataPacket, error) {
	if !h.Type.IsData() {
		return nil, fmt.Errorf("%w: %s is not a data type", ErrUnsupportedPacketType, h.Type)
	}
	if err := checkSize(buf, h); err != nil {
		return nil, err
	}

	p := &DataPacket{Header: h}
	off := 4

	if h.Type.HasStreamID() {
		p.StreamID = binary.BigEndian.Uint32(buf[off:])
		off += 4
	}
	if h.ClassIDPresent {
		p.ClassID = binary.BigEndian.Uint64(buf[off:])
		off += 8
	}
	if h.TSI != TSINone {
		p.Timestamp.Seconds = binary.BigEndian.Uint32(buf[off:])
		off += 4
	}
	if h.TSF != TSFNone {
		p.Timestamp.Fraction = binary.BigEndian.Uint64(buf[off:])
		off += 8
	}

	end := len(buf)
	if h.TrailerPresent {
		end -= 4
		p.Trailer = binary.BigEndian.Uint32(buf[end:])
	}
	if end < off {
		return nil, fmt.Errorf("%w: prologue overruns packet", ErrSizeMismatch)
	}
	if (end-off)%4 != 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes is not whole samples", ErrSizeMismatch, end-off)
	}

	p.raw = make([]byte, end-off)
	copy(p.raw, buf[off:end])
	return p, nil
}

// checkSize validates the header size field against the datagram and the
// mandatory prologue.
func checkSize(buf []byte, h Header) error {
	want := int(h.SizeWords) * 4
	if len(buf) != want {
		return fmt.Errorf("%w: header says %d bytes, datagram is %d", ErrSizeMismatch, want, len(buf))
	}
	min := headerWords + h.prologueWords()
	if h.TrailerPresent {
		min++
	}
	if int(h.SizeWords) < min {
		return fmt.Errorf("%w: %d words cannot hold the announced fields", ErrSizeMismatch, h.SizeWords)
	}
	return nil
}

// Package vrt implements the VITA 49.0 Radio Transport wire format:
// header parsing, IF data packet and IF context packet decoding.
//
// All multi-byte fields are big-endian. The mandatory header is a single
// 32-bit word laid out as:
//
//	bits 31..28  packet type
//	bit  27      class identifier present
//	bit  26      trailer present
//	bits 23..22  integer timestamp mode (TSI)
//	bits 21..20  fractional timestamp mode (TSF)
//	bits 19..16  modulo-16 packet counter
//	bits 15..0   packet size in 32-bit words, header included
package vrt

import (
	"encoding/binary"
	"fmt"
)

// PacketType is the four bit packet type code from the header.
type PacketType uint8

const (
	TypeIFData             PacketType = 0x0
	TypeIFDataWithStreamID PacketType = 0x1
	TypeExtData            PacketType = 0x2
	TypeExtDataWithID      PacketType = 0x3
	TypeIFContext          PacketType = 0x4
	TypeExtContext         PacketType = 0x5
)

// IsData reports whether the type carries an IF data payload.
func (t PacketType) IsData() bool {
	return t == TypeIFData || t == TypeIFDataWithStreamID
}

// IsContext reports whether the type carries context fields.
func (t PacketType) IsContext() bool {
	return t == TypeIFContext || t == TypeExtContext
}

// HasStreamID reports whether a stream identifier word follows the header.
func (t PacketType) HasStreamID() bool {
	switch t {
	case TypeIFDataWithStreamID, TypeExtDataWithID, TypeIFContext, TypeExtContext:
		return true
	}
	return false
}

func (t PacketType) String() string {
	switch t {
	case TypeIFData:
		return "if-data"
	case TypeIFDataWithStreamID:
		return "if-data-stream"
	case TypeExtData:
		return "ext-data"
	case TypeExtDataWithID:
		return "ext-data-stream"
	case TypeIFContext:
		return "if-context"
	case TypeExtContext:
		return "ext-context"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// TSIMode selects the interpretation of the integer timestamp word.
type TSIMode uint8

const (
	TSINone  TSIMode = 0
	TSIUTC   TSIMode = 1
	TSIGPS   TSIMode = 2
	TSIOther TSIMode = 3
)

// TSFMode selects the interpretation of the fractional timestamp words.
type TSFMode uint8

const (
	TSFNone        TSFMode = 0
	TSFSampleCount TSFMode = 1
	TSFRealTime    TSFMode = 2 // picosecond resolution
	TSFFreeRunning TSFMode = 3
)

const (
	headerWords = 1

	maskClassID = 0x08000000
	maskTrailer = 0x04000000
)

// Header is the decoded mandatory header word.
type Header struct {
	Type           PacketType
	ClassIDPresent bool
	TrailerPresent bool
	TSI            TSIMode
	TSF            TSFMode

	// Count is the modulo-16 packet counter for the stream.
	Count uint8

	// SizeWords is the total packet length in 32-bit words,
	// including the header itself.
	SizeWords uint16
}

// ParseHeader decodes the mandatory header word from the start of buf.
// Reserved header bits are ignored. Type codes outside the supported set
// yield ErrUnsupportedPacketType, with the decoded header still returned
// so callers can account for the packet.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < 4 {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(buf))
	}

	w := binary.BigEndian.Uint32(buf)
	h := Header{
		Type:           PacketType(w >> 28),
		ClassIDPresent: w&maskClassID != 0,
		TrailerPresent: w&maskTrailer != 0,
		TSI:            TSIMode(w >> 22 & 0x3),
		TSF:            TSFMode(w >> 20 & 0x3),
		Count:          uint8(w >> 16 & 0xF),
		SizeWords:      uint16(w),
	}

	switch h.Type {
	case TypeIFData, TypeIFDataWithStreamID, TypeIFContext, TypeExtContext:
		return h, nil
	default:
		return h, fmt.Errorf("%w: %s", ErrUnsupportedPacketType, h.Type)
	}
}

// Encode packs the header back into its wire representation.
func (h Header) Encode() uint32 {
	w := uint32(h.Type)<<28 |
		uint32(h.TSI&0x3)<<22 |
		uint32(h.TSF&0x3)<<20 |
		uint32(h.Count&0xF)<<16 |
		uint32(h.SizeWords)
	if h.ClassIDPresent {
		w |= maskClassID
	}
	if h.TrailerPresent {
		w |= maskTrailer
	}
	return w
}

// prologueWords returns the number of 32-bit words between the header
// and the payload: stream id, class id and timestamps as announced.
func (h Header) prologueWords() int {
	n := 0
	if h.Type.HasStreamID() {
		n++
	}
	if h.ClassIDPresent {
		n += 2
	}
	if h.TSI != TSINone {
		n++
	}
	if h.TSF != TSFNone {
		n += 2
	}
	return n
}

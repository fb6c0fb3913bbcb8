package vrt

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Context indicator bitmap positions. A set bit means the corresponding
// field is present in the payload, in descending bit order.
const (
	IndChangeFlag    = 1 << 31
	IndRefPointID    = 1 << 30
	IndBandwidth     = 1 << 29
	IndIFReference   = 1 << 28
	IndRFReference   = 1 << 27
	IndRFOffset      = 1 << 26
	IndIFBandOffset  = 1 << 25
	IndRefLevel      = 1 << 24
	IndGain          = 1 << 23
	IndOverRange     = 1 << 22
	IndSampleRate    = 1 << 21
	IndTimestampAdj  = 1 << 20
	IndTimestampCal  = 1 << 19
	IndTemperature   = 1 << 18
	IndDeviceID      = 1 << 17
	IndStateEvent    = 1 << 16
	IndPayloadFormat = 1 << 15
)

// fieldWords maps each defined indicator bit to the field length in
// 32-bit words, highest bit first. Bits below IndPayloadFormat announce
// variable-length formatted structures this receiver does not decode.
var fieldWords = []struct {
	bit   uint32
	words int
}{
	{IndChangeFlag, 0},
	{IndRefPointID, 1},
	{IndBandwidth, 2},
	{IndIFReference, 2},
	{IndRFReference, 2},
	{IndRFOffset, 2},
	{IndIFBandOffset, 2},
	{IndRefLevel, 1},
	{IndGain, 1},
	{IndOverRange, 1},
	{IndSampleRate, 2},
	{IndTimestampAdj, 2},
	{IndTimestampCal, 1},
	{IndTemperature, 1},
	{IndDeviceID, 2},
	{IndStateEvent, 1},
	{IndPayloadFormat, 2},
}

// StateEvent is the state and event indicator word. Each indicator bit
// is only meaningful when its matching enable bit is set.
type StateEvent uint32

func (s StateEvent) flag(enable, indicator uint) (ok, val bool) {
	return s&(1<<enable) != 0, s&(1<<indicator) != 0
}

// CalibratedTime reports whether the calibrated time indicator is
// enabled and, if so, whether the timestamp is calibrated.
func (s StateEvent) CalibratedTime() (ok, calibrated bool) { return s.flag(31, 19) }

// ValidData reports whether the valid data indicator is enabled and set.
func (s StateEvent) ValidData() (ok, valid bool) { return s.flag(30, 18) }

// ReferenceLock reports whether the reference lock indicator is enabled
// and whether the reference oscillator is phase locked.
func (s StateEvent) ReferenceLock() (ok, locked bool) { return s.flag(29, 17) }

// AGC reports whether the AGC/MGC indicator is enabled and whether
// automatic gain control is active.
func (s StateEvent) AGC() (ok, agc bool) { return s.flag(28, 16) }

// ContextFields is a single decoded context packet payload. Only fields
// whose bit is set in Indicator carry meaningful values.
type ContextFields struct {
	// Indicator is the raw field indicator bitmap.
	Indicator uint32

	Bandwidth    float64 // Hz
	IFReference  float64 // Hz
	RFReference  float64 // Hz
	RFOffset     float64 // Hz, signed
	IFBandOffset float64 // Hz, signed
	RefLevel     float64 // dBm
	Gain1        float64 // dB, stage 1
	Gain2        float64 // dB, stage 2
	SampleRate   float64 // Hz

	// TimestampAdj is the fractional time adjustment in femtoseconds.
	TimestampAdj int64

	// TimestampCal is the epoch second of the last timestamp calibration.
	TimestampCal uint32

	DeviceOUI  uint32
	DeviceCode uint16

	State StateEvent
}

// Has reports whether the field behind the given indicator bit is
// present in this update.
func (f *ContextFields) Has(bit uint32) bool { return f.Indicator&bit != 0 }

// ContextPacket is a decoded IF context packet.
type ContextPacket struct {
	Header    Header
	StreamID  uint32
	ClassID   uint64
	Timestamp Timestamp
	Fields    ContextFields
}

// ParseContextPacket decodes an IF or extension context packet from a
// complete datagram. The datagram length must match the header size
// field. A payload that ends before all announced fields, or that
// announces formatted structures this receiver cannot walk, yields
// ErrTruncatedContext and no fields are returned.
func ParseContextPacket(buf []byte, h Header) (*ContextPacket, error) {
	if !h.Type.IsContext() {
		return nil, fmt.Errorf("%w: %s is not a context type", ErrUnsupportedPacketType, h.Type)
	}
	if err := checkSize(buf, h); err != nil {
		return nil, err
	}

	p := &ContextPacket{Header: h}
	off := 4

	p.StreamID = binary.BigEndian.Uint32(buf[off:])
	off += 4
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
	}
	if end-off < 4 {
		return nil, fmt.Errorf("%w: no room for indicator word", ErrTruncatedContext)
	}

	ind := binary.BigEndian.Uint32(buf[off:])
	off += 4

	// Formatted GPS and similar structures below the payload format bit
	// have data-dependent lengths; field offsets past them cannot be
	// established.
	if ind&(IndPayloadFormat-1) != 0 {
		return nil, fmt.Errorf("%w: unsupported indicator bits %#08x", ErrTruncatedContext, ind&(IndPayloadFormat-1))
	}

	f := ContextFields{Indicator: ind}
	for _, fw := range fieldWords {
		if ind&fw.bit == 0 {
			continue
		}
		n := fw.words * 4
		if off+n > end {
			return nil, fmt.Errorf("%w: field %#08x ends past payload", ErrTruncatedContext, fw.bit)
		}
		decodeContextField(&f, fw.bit, buf[off:off+n])
		off += n
	}

	p.Fields = f
	return p, nil
}

func decodeContextField(f *ContextFields, bit uint32, b []byte) {
	switch bit {
	case IndBandwidth:
		f.Bandwidth = hzFromFixed(binary.BigEndian.Uint64(b))
	case IndIFReference:
		f.IFReference = hzFromFixed(binary.BigEndian.Uint64(b))
	case IndRFReference:
		f.RFReference = hzFromFixed(binary.BigEndian.Uint64(b))
	case IndRFOffset:
		f.RFOffset = hzFromFixedSigned(binary.BigEndian.Uint64(b))
	case IndIFBandOffset:
		f.IFBandOffset = hzFromFixedSigned(binary.BigEndian.Uint64(b))
	case IndRefLevel:
		f.RefLevel = dbFromFixed(binary.BigEndian.Uint16(b[2:]))
	case IndGain:
		f.Gain2 = dbFromFixed(binary.BigEndian.Uint16(b))
		f.Gain1 = dbFromFixed(binary.BigEndian.Uint16(b[2:]))
	case IndSampleRate:
		f.SampleRate = hzFromFixed(binary.BigEndian.Uint64(b))
	case IndTimestampAdj:
		f.TimestampAdj = int64(binary.BigEndian.Uint64(b))
	case IndTimestampCal:
		f.TimestampCal = binary.BigEndian.Uint32(b)
	case IndDeviceID:
		f.DeviceOUI = binary.BigEndian.Uint32(b) & 0x00FFFFFF
		f.DeviceCode = binary.BigEndian.Uint16(b[6:])
	case IndStateEvent:
		f.State = StateEvent(binary.BigEndian.Uint32(b))
	}
}

// hzFromFixed converts a 64-bit unsigned fixed point frequency with a
// radix point at bit 20 to Hz.
func hzFromFixed(v uint64) float64 {
	return float64(v) / (1 << 20)
}

// hzFromFixedSigned is hzFromFixed for two's complement values.
func hzFromFixedSigned(v uint64) float64 {
	return float64(int64(v)) / (1 << 20)
}

// dbFromFixed converts a 16-bit signed fixed point level with a radix
// point at bit 7 to dB.
func dbFromFixed(v uint16) float64 {
	return float64(int16(v)) / 128
}

// fixedFromHz is the inverse of hzFromFixed, used when encoding.
func fixedFromHz(hz float64) uint64 {
	return uint64(math.Round(hz * (1 << 20)))
}

// fixedFromHzSigned is the inverse of hzFromFixedSigned.
func fixedFromHzSigned(hz float64) uint64 {
	return uint64(int64(math.Round(hz * (1 << 20))))
}

// fixedFromDB is the inverse of dbFromFixed, used when encoding.
func fixedFromDB(db float64) uint16 {
	return uint16(int16(math.Round(db * 128)))
}

package vrt

import "encoding/binary"

// writer appends big-endian words to a datagram under construction.
type writer struct{ b []byte }

func (w *writer) u32(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *writer) u64(v uint64) { w.b = binary.BigEndian.AppendUint64(w.b, v) }

func (w *writer) prologue(h Header, streamID uint32, classID uint64, ts Timestamp) {
	if h.Type.HasStreamID() {
		w.u32(streamID)
	}
	if h.ClassIDPresent {
		w.u64(classID)
	}
	if h.TSI != TSINone {
		w.u32(ts.Seconds)
	}
	if h.TSF != TSFNone {
		w.u64(ts.Fraction)
	}
}

// EncodeDataPacket builds a wire-format IF data packet. The header size
// field is computed from the announced options and payload; the caller's
// value is ignored. The payload must be whole big-endian I/Q pairs.
func EncodeDataPacket(h Header, streamID uint32, classID uint64, ts Timestamp, payload []byte, trailer uint32) []byte {
	words := headerWords + h.prologueWords() + len(payload)/4
	if h.TrailerPresent {
		words++
	}
	h.SizeWords = uint16(words)

	w := writer{b: make([]byte, 0, words*4)}
	w.u32(h.Encode())
	w.prologue(h, streamID, classID, ts)
	w.b = append(w.b, payload...)
	if h.TrailerPresent {
		w.u32(trailer)
	}
	return w.b
}

// EncodeContextPacket builds a wire-format IF context packet carrying
// the fields flagged by f.Indicator. Indicator bits outside the encoder's
// field set are dropped.
func EncodeContextPacket(h Header, streamID uint32, classID uint64, ts Timestamp, f ContextFields) []byte {
	const encodable = IndBandwidth | IndIFReference | IndRFReference |
		IndRFOffset | IndIFBandOffset | IndRefLevel | IndGain |
		IndSampleRate | IndTimestampAdj | IndTimestampCal |
		IndDeviceID | IndStateEvent

	ind := f.Indicator & encodable

	words := headerWords + h.prologueWords() + 1
	for _, fw := range fieldWords {
		if ind&fw.bit != 0 {
			words += fw.words
		}
	}
	h.SizeWords = uint16(words)

	w := writer{b: make([]byte, 0, words*4)}
	w.u32(h.Encode())
	w.prologue(h, streamID, classID, ts)
	w.u32(ind)

	for _, fw := range fieldWords {
		if ind&fw.bit == 0 {
			continue
		}
		switch fw.bit {
		case IndBandwidth:
			w.u64(fixedFromHz(f.Bandwidth))
		case IndIFReference:
			w.u64(fixedFromHz(f.IFReference))
		case IndRFReference:
			w.u64(fixedFromHz(f.RFReference))
		case IndRFOffset:
			w.u64(fixedFromHzSigned(f.RFOffset))
		case IndIFBandOffset:
			w.u64(fixedFromHzSigned(f.IFBandOffset))
		case IndRefLevel:
			w.u32(uint32(fixedFromDB(f.RefLevel)))
		case IndGain:
			w.u32(uint32(fixedFromDB(f.Gain2))<<16 | uint32(fixedFromDB(f.Gain1)))
		case IndSampleRate:
			w.u64(fixedFromHz(f.SampleRate))
		case IndTimestampAdj:
			w.u64(uint64(f.TimestampAdj))
		case IndTimestampCal:
			w.u32(f.TimestampCal)
		case IndDeviceID:
			w.u32(f.DeviceOUI & 0x00FFFFFF)
			w.u32(uint32(f.DeviceCode))
		case IndStateEvent:
			w.u32(uint32(f.State))
		}
	}
	return w.b
}

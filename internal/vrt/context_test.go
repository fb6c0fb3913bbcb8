package vrt

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestParseContextPacket(t *testing.T) {
	h := Header{Type: TypeIFContext, TSI: TSIUTC, TSF: TSFRealTime, Count: 5}
	fields := ContextFields{
		Indicator: IndBandwidth | IndRFReference | IndRefLevel | IndGain |
			IndSampleRate | IndDeviceID | IndStateEvent,
		Bandwidth:   8_000_000,
		RFReference: 101_700_000,
		RefLevel:    -32.5,
		Gain1:       20.25,
		Gain2:       -6.5,
		SampleRate:  10_000_000,
		DeviceOUI:   0x00123456,
		DeviceCode:  0x00AB,
		State:       1<<29 | 1<<17, // reference lock enabled and locked
	}
	ts := Timestamp{Seconds: 1700000100, Fraction: 1}
	buf := EncodeContextPacket(h, 42, 0, ts, fields)

	p, err := ParseContextPacket(buf, mustHeader(t, buf))
	if err != nil {
		t.Fatalf("ParseContextPacket() error = %v", err)
	}

	if p.StreamID != 42 {
		t.Errorf("StreamID = %d, want 42", p.StreamID)
	}
	if p.Timestamp != ts {
		t.Errorf("Timestamp = %v, want %v", p.Timestamp, ts)
	}

	f := p.Fields
	checks := []struct {
		name      string
		got, want float64
	}{
		{"Bandwidth", f.Bandwidth, 8_000_000},
		{"RFReference", f.RFReference, 101_700_000},
		{"RefLevel", f.RefLevel, -32.5},
		{"Gain1", f.Gain1, 20.25},
		{"Gain2", f.Gain2, -6.5},
		{"SampleRate", f.SampleRate, 10_000_000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if f.DeviceOUI != 0x00123456 || f.DeviceCode != 0x00AB {
		t.Errorf("device id = %#x/%#x", f.DeviceOUI, f.DeviceCode)
	}
	if ok, locked := f.State.ReferenceLock(); !ok || !locked {
		t.Errorf("ReferenceLock() = %v, %v, want enabled and locked", ok, locked)
	}
	if ok, _ := f.State.ValidData(); ok {
		t.Error("ValidData() reported enabled without its enable bit")
	}
	if !f.Has(IndBandwidth) || f.Has(IndIFReference) {
		t.Errorf("indicator bookkeeping wrong: %#08x", f.Indicator)
	}
}

func TestParseContextPacketSignedOffsets(t *testing.T) {
	h := Header{Type: TypeIFContext}
	fields := ContextFields{
		Indicator: IndRFOffset | IndIFBandOffset,
		RFOffset:  -1_250_000,

		IFBandOffset: -0.5,
	}
	buf := EncodeContextPacket(h, 7, 0, Timestamp{}, fields)

	p, err := ParseContextPacket(buf, mustHeader(t, buf))
	if err != nil {
		t.Fatalf("ParseContextPacket() error = %v", err)
	}
	if p.Fields.RFOffset != -1_250_000 {
		t.Errorf("RFOffset = %v, want -1250000", p.Fields.RFOffset)
	}
	if p.Fields.IFBandOffset != -0.5 {
		t.Errorf("IFBandOffset = %v, want -0.5", p.Fields.IFBandOffset)
	}
}

func TestParseContextPacketTruncated(t *testing.T) {
	h := Header{Type: TypeIFContext}
	fields := ContextFields{
		Indicator:  IndBandwidth | IndSampleRate,
		Bandwidth:  1_000_000,
		SampleRate: 2_000_000,
	}
	full := EncodeContextPacket(h, 9, 0, Timestamp{}, fields)

	// Remove the last field but keep the size field consistent, so the
	// indicator bitmap announces more than the payload holds.
	cut := full[:len(full)-8]
	hdr := mustHeader(t, full)
	hdr.SizeWords -= 2
	binary.BigEndian.PutUint32(cut, hdr.Encode())

	_, err := ParseContextPacket(cut, hdr)
	if !errors.Is(err, ErrTruncatedContext) {
		t.Errorf("ParseContextPacket() error = %v, want ErrTruncatedContext", err)
	}
}

func TestParseContextPacketNoIndicatorRoom(t *testing.T) {
	h := Header{Type: TypeIFContext, SizeWords: 2}
	buf := binary.BigEndian.AppendUint32(nil, h.Encode())
	buf = binary.BigEndian.AppendUint32(buf, 55) // stream id only

	_, err := ParseContextPacket(buf, h)
	if !errors.Is(err, ErrTruncatedContext) {
		t.Errorf("ParseContextPacket() error = %v, want ErrTruncatedContext", err)
	}
}

func TestParseContextPacketUnsupportedStructures(t *testing.T) {
	h := Header{Type: TypeIFContext, SizeWords: 3}
	buf := binary.BigEndian.AppendUint32(nil, h.Encode())
	buf = binary.BigEndian.AppendUint32(buf, 12)
	buf = binary.BigEndian.AppendUint32(buf, 1<<14) // formatted GPS bit

	_, err := ParseContextPacket(buf, h)
	if !errors.Is(err, ErrTruncatedContext) {
		t.Errorf("ParseContextPacket() error = %v, want ErrTruncatedContext", err)
	}
}

func TestFixedPointConversions(t *testing.T) {
	tests := []struct {
		raw uint64
		hz  float64
	}{
		{0x10_0000, 1},
		{0x40_0000, 4},
		{0x08_0000, 0.5},
		{10_000_000 << 20, 10_000_000},
	}
	for _, tt := range tests {
		if got := hzFromFixed(tt.raw); got != tt.hz {
			t.Errorf("hzFromFixed(%#x) = %v, want %v", tt.raw, got, tt.hz)
		}
		if got := fixedFromHz(tt.hz); got != tt.raw {
			t.Errorf("fixedFromHz(%v) = %#x, want %#x", tt.hz, got, tt.raw)
		}
	}

	if got := dbFromFixed(0xFF80); got != -1 {
		t.Errorf("dbFromFixed(0xff80) = %v, want -1", got)
	}
	if got := dbFromFixed(128); got != 1 {
		t.Errorf("dbFromFixed(128) = %v, want 1", got)
	}
}

package rx

import (
	"testing"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

func TestContextTrackMerge(t *testing.T) {
	track := NewContextTrack()

	track.Update(1, vrt.ContextFields{
		Indicator:   vrt.IndRFReference | vrt.IndSampleRate,
		RFReference: 100e6,
		SampleRate:  10e6,
	})

	// A partial update must only touch the fields it carries.
	track.Update(1, vrt.ContextFields{
		Indicator: vrt.IndGain,
		Gain1:     12,
		Gain2:     -3,
	})

	s, ok := track.Snapshot(1)
	if !ok {
		t.Fatal("Snapshot() reported no context after two updates")
	}
	if s.RFReference != 100e6 {
		t.Errorf("RFReference = %v, want 100e6", s.RFReference)
	}
	if s.SampleRate != 10e6 {
		t.Errorf("SampleRate = %v, want 10e6", s.SampleRate)
	}
	if s.Gain1 != 12 || s.Gain2 != -3 {
		t.Errorf("gain = %v/%v, want 12/-3", s.Gain1, s.Gain2)
	}
	if !s.Has(vrt.IndRFReference) || !s.Has(vrt.IndGain) {
		t.Errorf("Valid = %#08x misses merged bits", s.Valid)
	}
	if s.Has(vrt.IndBandwidth) {
		t.Errorf("Valid = %#08x claims a never-seen field", s.Valid)
	}
}

func TestContextTrackOverwrite(t *testing.T) {
	track := NewContextTrack()
	track.Update(1, vrt.ContextFields{Indicator: vrt.IndRFReference, RFReference: 100e6})
	track.Update(1, vrt.ContextFields{Indicator: vrt.IndRFReference, RFReference: 101.7e6})

	s, _ := track.Snapshot(1)
	if s.RFReference != 101.7e6 {
		t.Errorf("RFReference = %v, want the later value 101.7e6", s.RFReference)
	}
}

func TestContextTrackPerStream(t *testing.T) {
	track := NewContextTrack()
	track.Update(1, vrt.ContextFields{Indicator: vrt.IndSampleRate, SampleRate: 1e6})
	track.Update(2, vrt.ContextFields{Indicator: vrt.IndSampleRate, SampleRate: 2e6})

	a, _ := track.Snapshot(1)
	b, _ := track.Snapshot(2)
	if a.SampleRate != 1e6 || b.SampleRate != 2e6 {
		t.Errorf("snapshots bleed across streams: %v / %v", a.SampleRate, b.SampleRate)
	}
	if _, ok := track.Snapshot(3); ok {
		t.Error("Snapshot() invented a stream")
	}
	if got := len(track.Streams()); got != 2 {
		t.Errorf("Streams() = %d ids, want 2", got)
	}
}

func TestContextTrackUpdatedTime(t *testing.T) {
	track := NewContextTrack()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	track.now = func() time.Time { return fixed }

	track.Update(1, vrt.ContextFields{Indicator: vrt.IndBandwidth, Bandwidth: 1e6})

	s, _ := track.Snapshot(1)
	if !s.Updated.Equal(fixed) {
		t.Errorf("Updated = %v, want %v", s.Updated, fixed)
	}
}

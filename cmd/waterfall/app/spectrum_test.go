package app

import (
	"testing"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/spectrum"
)

func testSpan(ts time.Time, start, end float64, power []float64) *spectrum.Span {
	return &spectrum.Span{
		Timestamp:      ts,
		FrequencyStart: start,
		FrequencyEnd:   end,
		BinWidth:       (end - start) / float64(len(power)-1),
		Power:          power,
	}
}

func TestSpectrumDataUpdate(t *testing.T) {
	spec := NewSpectrumData(NewSmoothBounds(0.3))

	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	spec.Update(testSpan(t0, 100e6, 102e6, []float64{-80, -70, -60, -70}))
	spec.Update(testSpan(t0.Add(time.Second), 99e6, 101e6, []float64{-75, -65, -55, -65}))

	if spec.Width != 4 {
		t.Errorf("Width = %d, want 4", spec.Width)
	}
	if spec.Height != 2 {
		t.Errorf("Height = %d, want 2", spec.Height)
	}
	if spec.FrequencyMin != 99e6 {
		t.Errorf("FrequencyMin = %f, want 99e6", spec.FrequencyMin)
	}
	if spec.FrequencyMax != 102e6 {
		t.Errorf("FrequencyMax = %f, want 102e6", spec.FrequencyMax)
	}
	if !spec.TimestampStart.Equal(t0) {
		t.Errorf("TimestampStart = %v, want %v", spec.TimestampStart, t0)
	}
	if !spec.TimestampEnd.Equal(t0.Add(time.Second)) {
		t.Errorf("TimestampEnd = %v, want %v", spec.TimestampEnd, t0.Add(time.Second))
	}
	if len(spec.Rows) != 2 || len(spec.Rows[0]) != 4 {
		t.Fatalf("Rows shape = %dx%d, want 2x4", len(spec.Rows), len(spec.Rows[0]))
	}
}

func TestSpectrumDataCopiesPower(t *testing.T) {
	spec := NewSpectrumData(NewSmoothBounds(0.3))
	power := []float64{-80, -70}
	spec.Update(testSpan(time.Now(), 0, 1e6, power))

	power[0] = 0
	if spec.Rows[0][0] != -80 {
		t.Error("row shares backing array with the span")
	}
}

func TestSpectrumDataOutOfOrderTimestamps(t *testing.T) {
	spec := NewSpectrumData(NewSmoothBounds(0.3))

	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	spec.Update(testSpan(t0.Add(time.Minute), 100e6, 101e6, []float64{-60}))
	spec.Update(testSpan(t0, 100e6, 101e6, []float64{-60}))

	if !spec.TimestampStart.Equal(t0) {
		t.Errorf("TimestampStart = %v, want earliest %v", spec.TimestampStart, t0)
	}
	if !spec.TimestampEnd.Equal(t0.Add(time.Minute)) {
		t.Errorf("TimestampEnd = %v, want latest %v", spec.TimestampEnd, t0.Add(time.Minute))
	}
}

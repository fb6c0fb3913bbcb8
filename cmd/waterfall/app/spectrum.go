package app

import (
	"math"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/spectrum"
)

// SpectrumData accumulates spectral rows for rendering, one row per span,
// newest at the bottom.
type SpectrumData struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64
	TimestampStart, TimestampEnd time.Time
	BoundsTracker                *SmoothBounds
	Rows                         [][]float64
}

func NewSpectrumData(b *SmoothBounds) *SpectrumData {
	return &SpectrumData{
		FrequencyMin:  math.MaxFloat64,
		FrequencyMax:  0,
		BoundsTracker: b,
		Rows:          make([][]float64, 0),
	}
}

func (s *SpectrumData) Update(span *spectrum.Span) {
	s.Width = max(s.Width, len(span.Power))
	s.Height++

	s.FrequencyMin = min(s.FrequencyMin, span.FrequencyStart)
	s.FrequencyMax = max(s.FrequencyMax, span.FrequencyEnd)

	if s.TimestampStart.IsZero() || s.TimestampStart.After(span.Timestamp) {
		s.TimestampStart = span.Timestamp
	}
	if s.TimestampEnd.IsZero() || s.TimestampEnd.Before(span.Timestamp) {
		s.TimestampEnd = span.Timestamp
	}

	powers := make([]float64, len(span.Power))
	copy(powers, span.Power)
	for _, p := range powers {
		s.BoundsTracker.Update(p)
	}
	s.Rows = append(s.Rows, powers)
}

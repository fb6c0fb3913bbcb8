// Package spectrum turns captured I/Q sample runs into power spectra
// for waterfall rendering.
package spectrum

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// noiseFloor is the power reported for empty bins, in dBFS.
const noiseFloor = -160

// Span is one waterfall row: the power spectrum of a contiguous sample
// run, bins ordered by ascending frequency.
type Span struct {
	Timestamp time.Time

	// FrequencyStart and FrequencyEnd bound the span in Hz. With no
	// known tuning they hold normalised frequencies around zero.
	FrequencyStart float64
	FrequencyEnd   float64

	// BinWidth is the frequency step between adjacent bins in Hz.
	BinWidth float64

	// Power holds one dBFS value per bin.
	Power []float64
}

// Analyzer computes centred power spectra over a fixed FFT size. It
// reuses its plan and scratch buffers, so one Analyzer serves a whole
// rendering pass.
type Analyzer struct {
	fft *fourier.CmplxFFT
	n   int

	win []float64
	in  []complex128
}

// NewAnalyzer creates an analyzer with the given FFT size.
func NewAnalyzer(size int) *Analyzer {
	a := &Analyzer{
		fft: fourier.NewCmplxFFT(size),
		n:   size,
		win: window.Hann(onesSlice(size)),
		in:  make([]complex128, size),
	}
	return a
}

func onesSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// Size returns the FFT size.
func (a *Analyzer) Size() int { return a.n }

// Spectrum computes the windowed, centred power spectrum of iq. Runs
// shorter than the FFT size are zero padded; longer runs use only the
// first Size samples. The span frequency axis is derived from the
// sample rate and centre frequency, both in Hz.
func (a *Analyzer) Spectrum(iq []complex64, sampleRate, centerFreq float64, ts time.Time) Span {
	for i := range a.in {
		if i < len(iq) {
			a.in[i] = complex(float64(real(iq[i]))*a.win[i], float64(imag(iq[i]))*a.win[i])
		} else {
			a.in[i] = 0
		}
	}

	coeff := a.fft.Coefficients(nil, a.in)

	binWidth := sampleRate / float64(a.n)
	power := make([]float64, a.n)
	half := (a.n + 1) / 2
	for i := range power {
		// Negative frequencies first: classic fft shift.
		c := coeff[(i+half)%a.n]
		mag := cmplx.Abs(c) / float64(a.n)
		if mag == 0 {
			power[i] = noiseFloor
			continue
		}
		power[i] = math.Max(20*math.Log10(mag), noiseFloor)
	}

	start := centerFreq - sampleRate/2
	return Span{
		Timestamp:      ts,
		FrequencyStart: start,
		FrequencyEnd:   start + binWidth*float64(a.n-1),
		BinWidth:       binWidth,
		Power:          power,
	}
}

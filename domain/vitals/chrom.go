package vitals

import (
	"fmt"
	"math"

	"github.com/soocke/pulse-cam-go/config"
)

// PulseExtractor derives a one-dimensional pulse waveform from a window of
// color samples with the CHROM method (de Haan & Jeanne, 2013).
type PulseExtractor struct {
	size     int
	lowCut   float64
	highCut  float64
	bandpass string
}

// NewPulseExtractor returns an extractor for windows of size samples passing
// [lowCut, highCut] Hz.
func NewPulseExtractor(size int, lowCut, highCut float64, bandpass string) *PulseExtractor {
	return &PulseExtractor{size: size, lowCut: lowCut, highCut: highCut, bandpass: bandpass}
}

// PulseExtractorFromConfig sizes the extractor to the configured window.
func PulseExtractorFromConfig(cfg *config.Config) *PulseExtractor {
	return NewPulseExtractor(cfg.WindowCapacity(), cfg.LowCutHz, cfg.HighCutHz, cfg.Bandpass)
}

// Extract returns the detrended, band-passed, z-normalized pulse signal of
// window sampled at fs Hz. It is a pure function of its inputs.
func (p *PulseExtractor) Extract(window []ColorSample, fs float64) ([]float64, error) {
	if len(window) < p.size || len(window) < 2 {
		return nil, fmt.Errorf("%w: have %d of %d samples", ErrWindowNotFull, len(window), p.size)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("vitals: invalid sample rate %v", fs)
	}
	pulse := chromSignal(window)
	detrend(pulse)
	filtered := p.filter(pulse, fs)
	normalize(filtered)
	return filtered, nil
}

func (p *PulseExtractor) filter(x []float64, fs float64) []float64 {
	if p.bandpass == config.BandpassMovingAverage {
		return movingAverageHighPass(x, int(fs/p.lowCut))
	}
	sections := []biquad{highPass(p.lowCut, fs)}
	if p.highCut < fs/2 {
		sections = append(sections, lowPass(p.highCut, fs))
	}
	return filtfilt(x, int(3*fs/p.lowCut), sections...)
}

// chromSignal combines X = 3R-2G and Y = 1.5R+G-1.5B into X - (σX/σY)·Y.
func chromSignal(window []ColorSample) []float64 {
	n := len(window)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, s := range window {
		xs[i] = 3*s.R - 2*s.G
		ys[i] = 1.5*s.R + s.G - 1.5*s.B
	}
	ratio := 1.0
	if sy := stddev(ys); sy > 0 {
		ratio = stddev(xs) / sy
	}
	for i := range xs {
		xs[i] -= ratio * ys[i]
	}
	return xs
}

// detrend removes the series mean in place.
func detrend(x []float64) {
	m := mean(x)
	for i := range x {
		x[i] -= m
	}
}

// normalize rescales x to zero mean and unit variance in place. A constant
// series is left untouched.
func normalize(x []float64) {
	m, sd := mean(x), stddev(x)
	if sd == 0 || math.IsNaN(sd) {
		return
	}
	for i := range x {
		x[i] = (x[i] - m) / sd
	}
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// stddev is the population standard deviation.
func stddev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := mean(x)
	var ss float64
	for _, v := range x {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)))
}

// channel extracts one color channel of window.
func channel(window []ColorSample, pick func(ColorSample) float64) []float64 {
	out := make([]float64, len(window))
	for i, s := range window {
		out[i] = pick(s)
	}
	return out
}

// SampleRate estimates the sampling frequency from the window timestamps,
// falling back to nominal when the span is degenerate.
func SampleRate(window []ColorSample, nominal float64) float64 {
	if len(window) < 2 {
		return nominal
	}
	span := window[len(window)-1].TimestampMillis - window[0].TimestampMillis
	if span <= 0 {
		return nominal
	}
	return float64(len(window)-1) * 1000 / float64(span)
}

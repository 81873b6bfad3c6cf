package vitals

import "math"

const (
	// DefaultSpO2 is reported whenever the ratio cannot be formed.
	DefaultSpO2 = 97.0

	spo2Min = 90.0
	spo2Max = 100.0
)

// SpO2Estimator computes a coarse ratio-of-ratios saturation estimate over
// the red and blue channels. It is not a calibrated oximetry model.
type SpO2Estimator struct{}

// Estimate returns 110 - 25*ratio clamped to [90, 100], where ratio is
// (σR/μR)/(σB/μB).
func (SpO2Estimator) Estimate(window []ColorSample) float32 {
	if len(window) < 2 {
		return DefaultSpO2
	}
	red := channel(window, func(s ColorSample) float64 { return s.R })
	blue := channel(window, func(s ColorSample) float64 { return s.B })
	meanR, meanB, acB := mean(red), mean(blue), stddev(blue)
	if meanR <= 0 || meanB <= 0 || acB <= 0 {
		return DefaultSpO2
	}
	ratioRed := stddev(red) / meanR
	ratioBlue := acB / meanB
	ratio := 1.0
	if ratioBlue > 0 {
		ratio = ratioRed / ratioBlue
	}
	spo2 := 110 - 25*ratio
	if math.IsNaN(spo2) || math.IsInf(spo2, 0) {
		return DefaultSpO2
	}
	return float32(math.Min(math.Max(spo2, spo2Min), spo2Max))
}

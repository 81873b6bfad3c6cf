package vitals

import (
	"math"
	"math/bits"
	"math/cmplx"
)

// maxFFTSize bounds the zero-padded transform length.
const maxFFTSize = 1 << 16

// FrequencyAnalyzer finds the dominant pulse frequency of a waveform within
// the physiological band and reports it in beats per minute.
type FrequencyAnalyzer struct {
	minBPM, maxBPM float64
	// resolutionBPM is the target bin spacing reached by zero padding.
	resolutionBPM float64
}

func NewFrequencyAnalyzer(minBPM, maxBPM float64) *FrequencyAnalyzer {
	return &FrequencyAnalyzer{minBPM: minBPM, maxBPM: maxBPM, resolutionBPM: 0.5}
}

// EstimateBPM returns the peak frequency of the Hamming-windowed power
// spectrum of pulse in [minBPM, maxBPM], or 0 when no estimate exists.
func (a *FrequencyAnalyzer) EstimateBPM(pulse []float64, fs float64) float32 {
	n := len(pulse)
	if n < 2 || fs <= 0 || math.IsNaN(fs) {
		return 0
	}
	nfft := nextPow2(max(n, int(math.Ceil(fs*60/a.resolutionBPM))))
	nfft = min(nfft, maxFFTSize)
	if nfft < n {
		nfft = nextPow2(n)
	}
	power := powerSpectrum(hamming(pulse), nfft)

	lo := int(math.Ceil(a.minBPM / 60 * float64(nfft) / fs))
	hi := int(math.Floor(a.maxBPM / 60 * float64(nfft) / fs))
	lo = max(lo, 1)
	hi = min(hi, len(power)-1)
	if lo > hi {
		return 0
	}
	peak := lo
	for k := lo + 1; k <= hi; k++ {
		if power[k] > power[peak] {
			peak = k
		}
	}
	if !(power[peak] > 1e-12) {
		return 0
	}
	pos := float64(peak)
	if peak > 0 && peak < len(power)-1 {
		l, c, r := power[peak-1], power[peak], power[peak+1]
		if d := l - 2*c + r; d < 0 {
			pos += 0.5 * (l - r) / d
		}
	}
	bpm := pos * fs / float64(nfft) * 60
	return float32(math.Min(math.Max(bpm, a.minBPM), a.maxBPM))
}

// hamming returns a windowed copy of x.
func hamming(x []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n == 1 {
		copy(out, x)
		return out
	}
	for i, v := range x {
		out[i] = v * (0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return out
}

// powerSpectrum zero-pads x to nfft (a power of two) and returns |X[k]|²
// for k in [0, nfft/2].
func powerSpectrum(x []float64, nfft int) []float64 {
	buf := make([]complex128, nfft)
	for i, v := range x {
		if i >= nfft {
			break
		}
		buf[i] = complex(v, 0)
	}
	fft(buf)
	out := make([]float64, nfft/2+1)
	for k := range out {
		m := cmplx.Abs(buf[k])
		out[k] = m * m
	}
	return out
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform; len(a) must
// be a power of two.
func fft(a []complex128) {
	n := len(a)
	if n < 2 {
		return
	}
	shift := 64 - uint(bits.TrailingZeros(uint(n)))
	for i := 0; i < n; i++ {
		j := int(bits.Reverse64(uint64(i)) >> shift)
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				t := w * a[start+k+half]
				a[start+k+half] = a[start+k] - t
				a[start+k] += t
				w *= step
			}
		}
	}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

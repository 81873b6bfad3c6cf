package vitals

import "math"

// biquad is a second-order IIR section (RBJ cookbook form, a0 normalized).
type biquad struct {
	b0, b1, b2, a1, a2 float64
}

// butterworthQ gives a maximally flat second-order response.
const butterworthQ = math.Sqrt2 / 2

func lowPass(fc, fs float64) biquad {
	w0 := 2 * math.Pi * fc / fs
	cosw, alpha := math.Cos(w0), math.Sin(w0)/(2*butterworthQ)
	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func highPass(fc, fs float64) biquad {
	w0 := 2 * math.Pi * fc / fs
	cosw, alpha := math.Cos(w0), math.Sin(w0)/(2*butterworthQ)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// apply filters x in place (direct form I, zero initial state).
func (q biquad) apply(x []float64) {
	var x1, x2, y1, y2 float64
	for i, v := range x {
		y := q.b0*v + q.b1*x1 + q.b2*x2 - q.a1*y1 - q.a2*y2
		x2, x1 = x1, v
		y2, y1 = y1, y
		x[i] = y
	}
}

// filtfilt runs the cascade forward then backward for zero phase shift.
// The signal is extended by odd reflection of padLen samples at each end to
// absorb the start-up transient of the sections.
func filtfilt(x []float64, padLen int, sections ...biquad) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	padLen = max(0, min(padLen, n-1))
	ext := make([]float64, n+2*padLen)
	for i := 0; i < padLen; i++ {
		ext[i] = 2*x[0] - x[padLen-i]
		ext[padLen+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[padLen:], x)
	for _, s := range sections {
		s.apply(ext)
	}
	reverse(ext)
	for _, s := range sections {
		s.apply(ext)
	}
	reverse(ext)
	out := make([]float64, n)
	copy(out, ext[padLen:padLen+n])
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// movingAverageHighPass subtracts from each sample the mean of a centered
// window of the given length.
func movingAverageHighPass(x []float64, window int) []float64 {
	n := len(x)
	window = max(1, window)
	prefix := make([]float64, n+1)
	for i, v := range x {
		prefix[i+1] = prefix[i] + v
	}
	out := make([]float64, n)
	for i, v := range x {
		lo := max(0, i-window/2)
		hi := min(n, i+window/2+1)
		out[i] = v - (prefix[hi]-prefix[lo])/float64(hi-lo)
	}
	return out
}

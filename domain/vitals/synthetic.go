package vitals

import (
	"math/rand/v2"
	"sync"
)

// SyntheticSource produces plausible placeholder results for the skip
// path. It never feeds the measurement accumulators.
type SyntheticSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticSource returns a source seeded with seed; equal seeds give
// equal sequences.
func NewSyntheticSource(seed uint64) *SyntheticSource {
	return &SyntheticSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns an integer BPM in [60, 100] and an integer SpO2 in [95, 99].
func (s *SyntheticSource) Next() (bpm, spo2 float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float32(60 + s.rng.IntN(41)), float32(95 + s.rng.IntN(5))
}

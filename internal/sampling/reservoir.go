// Package sampling holds streaming random-sampling helpers.
package sampling

import "math/rand/v2"

// ReservoirSampler keeps a uniform random sample of at most K elements from a
// stream of unknown length (Algorithm R). It is not safe for concurrent use.
type ReservoirSampler[T any] struct {
	k       int
	added   int
	rng     *rand.Rand
	samples []T
}

// NewReservoirSampler creates a sampler that retains k elements and draws from
// rng. The caller owns rng; pass a freshly seeded source for reproducibility.
func NewReservoirSampler[T any](k int, rng *rand.Rand) *ReservoirSampler[T] {
	if k < 0 {
		k = 0
	}
	return &ReservoirSampler[T]{
		k:       k,
		rng:     rng,
		samples: make([]T, 0, k),
	}
}

// Add offers one element to the reservoir.
func (s *ReservoirSampler[T]) Add(v T) {
	if len(s.samples) < s.k {
		s.samples = append(s.samples, v)
	} else if s.k > 0 {
		// Keep v with probability k/(added+1).
		if j := s.rng.IntN(s.added + 1); j < s.k {
			s.samples[j] = v
		}
	}
	s.added++
}

// Samples returns the current sample. The slice is owned by the sampler.
func (s *ReservoirSampler[T]) Samples() []T { return s.samples }

// NumAdded returns how many elements have been offered.
func (s *ReservoirSampler[T]) NumAdded() int { return s.added }

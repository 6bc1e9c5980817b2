package ransac

import "math/rand/v2"

// sampler draws minimal samples of distinct indices from [0, n).
type sampler struct {
	rng *rand.Rand
	idx []int
}

func newSampler(n int, rng *rand.Rand) *sampler {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return &sampler{rng: rng, idx: idx}
}

// sample returns k distinct indices using a partial Fisher-Yates shuffle.
// The returned slice aliases internal state and is valid until the next call.
func (s *sampler) sample(k int) []int {
	n := len(s.idx)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
	}
	return s.idx[:k]
}

package matching

import (
	"context"
	"math"
)

// DescriptorExtractor detects keypoints and computes descriptors for an
// image file.
type DescriptorExtractor interface {
	Extract(ctx context.Context, path string) (KeypointsAndDescriptors, error)
}

// IndexedMatch pairs keypoint indices of two images.
type IndexedMatch struct {
	Index1, Index2 int
}

// FeatureMatcher proposes putative matches between two feature sets.
type FeatureMatcher interface {
	Match(a, b KeypointsAndDescriptors) []IndexedMatch
}

// DefaultLoweRatio is the nearest/second-nearest distance ratio bound.
const DefaultLoweRatio = 0.8

// BruteForceMatcher matches descriptors exhaustively by squared L2 distance
// with Lowe's ratio test, keeping only mutual nearest neighbours.
type BruteForceMatcher struct {
	// Ratio bounds nearest/second-nearest distance; 0 means DefaultLoweRatio.
	Ratio float64
}

// Match implements FeatureMatcher.
func (m BruteForceMatcher) Match(a, b KeypointsAndDescriptors) []IndexedMatch {
	ratio := m.Ratio
	if ratio <= 0 {
		ratio = DefaultLoweRatio
	}
	forward := nearest(a.Descriptors, b.Descriptors, ratio)
	backward := nearest(b.Descriptors, a.Descriptors, ratio)
	var out []IndexedMatch
	for i, j := range forward {
		if j >= 0 && backward[j] == i {
			out = append(out, IndexedMatch{Index1: i, Index2: j})
		}
	}
	return out
}

// nearest returns, for each query, the index of its nearest train descriptor
// passing the ratio test, or -1.
func nearest(query, train [][]float32, ratio float64) []int {
	out := make([]int, len(query))
	r2 := ratio * ratio
	for i, q := range query {
		best, second := math.Inf(1), math.Inf(1)
		bestIdx := -1
		for j, t := range train {
			d := sqDist(q, t)
			switch {
			case d < best:
				second = best
				best, bestIdx = d, j
			case d < second:
				second = d
			}
		}
		if bestIdx >= 0 && !(best < r2*second) {
			bestIdx = -1
		}
		out[i] = bestIdx
	}
	return out
}

func sqDist(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	s := 0.0
	for k := range a {
		d := float64(a[k] - b[k])
		s += d * d
	}
	return s
}

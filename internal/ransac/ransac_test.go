package ransac

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct{ x, y float64 }

type line struct{ a, b float64 } // y = a*x + b

// lineEstimator fits y = a*x + b from two points.
type lineEstimator struct{}

func (lineEstimator) SampleSize() int { return 2 }

func (lineEstimator) EstimateModel(s []point) ([]line, bool) {
	dx := s[1].x - s[0].x
	if math.Abs(dx) < 1e-12 {
		return nil, false
	}
	a := (s[1].y - s[0].y) / dx
	return []line{{a: a, b: s[0].y - a*s[0].x}}, true
}

func (lineEstimator) Error(p point, l line) float64 {
	r := p.y - (l.a*p.x + l.b)
	return r * r
}

// makeLineData places nInliers exactly on y = 2x + 1 and nOutliers at least
// 5 units away from it.
func makeLineData(nInliers, nOutliers int) []point {
	var pts []point
	for i := 0; i < nInliers; i++ {
		x := float64(i) * 0.5
		pts = append(pts, point{x, 2*x + 1})
	}
	for i := 0; i < nOutliers; i++ {
		x := float64(i)*0.37 + 0.1
		off := 5.0 + float64(i%7)
		if i%2 == 0 {
			off = -off
		}
		pts = append(pts, point{x, 2*x + 1 + off})
	}
	return pts
}

func TestEstimate_InsufficientData(t *testing.T) {
	t.Parallel()

	_, summary := Estimate[point, line](lineEstimator{}, RANSAC, DefaultParams(0.01), []point{{0, 0}})
	assert.False(t, summary.Success)
	assert.Empty(t, summary.Inliers)
	assert.Equal(t, 0, summary.NumIterations)
	assert.Equal(t, 1, summary.NumInputData)
}

func TestEstimate_RecoversLineWithOutliers(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{RANSAC, MLESAC} {
		t.Run(typ.String(), func(t *testing.T) {
			t.Parallel()
			data := makeLineData(70, 30)
			params := DefaultParams(1e-6)
			params.Seed = 11

			model, summary := Estimate[point, line](lineEstimator{}, typ, params, data)
			require.True(t, summary.Success)
			assert.InDelta(t, 2.0, model.a, 1e-9)
			assert.InDelta(t, 1.0, model.b, 1e-9)
			assert.Len(t, summary.Inliers, 70)
			for _, idx := range summary.Inliers {
				assert.Less(t, idx, 70, "outlier reported as inlier")
			}
			assert.LessOrEqual(t, summary.NumIterations, params.MaxIterations)
			assert.Greater(t, summary.Confidence, 0.99)
		})
	}
}

func TestEstimate_Reproducible(t *testing.T) {
	t.Parallel()

	data := makeLineData(40, 60)
	run := func() (line, Summary) {
		params := DefaultParams(1e-6)
		params.RNG = NewRNG(99)
		return Estimate[point, line](lineEstimator{}, RANSAC, params, data)
	}
	m1, s1 := run()
	m2, s2 := run()
	assert.Equal(t, m1, m2)
	assert.Equal(t, s1, s2)
}

func TestEstimate_DegenerateSamplesConsumeIterations(t *testing.T) {
	t.Parallel()

	// Every sample has identical x, so the solver never produces a model.
	data := make([]point, 10)
	for i := range data {
		data[i] = point{1, float64(i)}
	}
	params := DefaultParams(0.1)
	params.MaxIterations = 50

	_, summary := Estimate[point, line](lineEstimator{}, RANSAC, params, data)
	assert.False(t, summary.Success)
	assert.Empty(t, summary.Inliers)
	assert.Equal(t, 50, summary.NumIterations)
}

func TestEstimate_MinInlierRatio(t *testing.T) {
	t.Parallel()

	data := makeLineData(20, 80)
	params := DefaultParams(1e-6)
	params.Seed = 5
	params.MaxIterations = 5000
	params.MinInlierRatio = 0.5

	_, summary := Estimate[point, line](lineEstimator{}, RANSAC, params, data)
	assert.False(t, summary.Success, "20%% support must not satisfy a 50%% floor")
	assert.Empty(t, summary.Inliers)
}

func TestEstimate_AdaptiveStopping(t *testing.T) {
	t.Parallel()

	// All inliers: the bound collapses after the first good model.
	data := makeLineData(50, 0)
	params := DefaultParams(1e-6)
	params.Seed = 1
	_, summary := Estimate[point, line](lineEstimator{}, RANSAC, params, data)
	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.NumIterations)

	params.MinIterations = 10
	_, summary = Estimate[point, line](lineEstimator{}, RANSAC, params, data)
	assert.Equal(t, 10, summary.NumIterations)
}

func TestRequiredIterations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p, w float64
		s    int
		want int
	}{
		{"half inliers pairs", 0.01, 0.5, 2, 17},
		{"all inliers", 0.01, 1.0, 4, 0},
		{"no inliers", 0.01, 0.0, 4, math.MaxInt},
		{"tiny ratio saturates", 0.01, 1e-9, 8, math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredIterations(tt.p, tt.w, tt.s))
		})
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()

	typ, err := ParseType("MLESAC")
	require.NoError(t, err)
	assert.Equal(t, MLESAC, typ)

	typ, err = ParseType("")
	require.NoError(t, err)
	assert.Equal(t, RANSAC, typ)

	_, err = ParseType("lmeds")
	assert.Error(t, err)
}

func TestDeriveSeed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DeriveSeed(1, 2), DeriveSeed(1, 2))
	assert.NotEqual(t, DeriveSeed(1, 2), DeriveSeed(1, 3))
	assert.NotEqual(t, DeriveSeed(1, 2), DeriveSeed(2, 2))
}

func TestSamplerDistinct(t *testing.T) {
	t.Parallel()

	s := newSampler(10, NewRNG(3))
	for i := 0; i < 100; i++ {
		got := s.sample(4)
		seen := map[int]bool{}
		for _, v := range got {
			require.False(t, seen[v])
			seen[v] = true
		}
	}
}

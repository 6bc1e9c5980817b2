package pose

import (
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func scene2D2D(t *testing.T, p2 geometry.Pose, n int, numOutliers int, seed uint64) []Correspondence2D2D {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	p1 := geometry.IdentityPose()
	out := make([]Correspondence2D2D, n)
	for i := range out {
		x := r3.Vec{X: rng.Float64()*4 - 2, Y: rng.Float64()*4 - 2, Z: 5 + rng.Float64()*5}
		a, d1 := geometry.Project(p1, x)
		b, d2 := geometry.Project(p2, x)
		require.Greater(t, d1, 0.0)
		require.Greater(t, d2, 0.0)
		if i >= n-numOutliers {
			b = [2]float64{rng.Float64() - 0.5, rng.Float64() - 0.5}
		}
		out[i] = Correspondence2D2D{Feature1: a, Feature2: b}
	}
	return out
}

func secondPose() geometry.Pose {
	return geometry.Pose{
		Rotation: geometry.RotationFromAngleAxis(r3.Vec{Y: 0.15, Z: 0.02}),
		Position: r3.Vec{X: 1, Y: 0.1},
	}
}

func TestEssentialMatrixEightPoint(t *testing.T) {
	t.Parallel()

	corr := scene2D2D(t, secondPose(), 8, 0, 1)
	e, ok := EssentialMatrixEightPoint(corr)
	require.True(t, ok)
	for _, c := range corr {
		assert.InDelta(t, 0, SampsonError(e, c), 1e-16)
	}

	dup := make([]Correspondence2D2D, 8)
	for i := range dup {
		dup[i] = corr[i%3]
	}
	_, ok = EssentialMatrixEightPoint(dup)
	assert.False(t, ok)
}

func TestEstimateRelativePose(t *testing.T) {
	t.Parallel()

	p2 := secondPose()
	corr := scene2D2D(t, p2, 120, 30, 21)
	params := ransac.DefaultParams(1e-10)
	params.Seed = 8
	params.MaxIterations = 5000

	got, summary := EstimateRelativePose(params, ransac.RANSAC, corr)
	require.True(t, summary.Success)
	assert.InDelta(t, 90, float64(len(summary.Inliers)), 2)
	assert.Less(t, geometry.AngleBetween(p2.Rotation, got.Rotation), 1e-5)

	wantDir := r3.Unit(p2.Position)
	assert.InDelta(t, 1, r3.Dot(wantDir, got.Position()), 1e-5)
}

func TestDecomposeEssentialMatrixCandidates(t *testing.T) {
	t.Parallel()

	p2 := secondPose()
	corr := scene2D2D(t, p2, 20, 0, 4)
	e, ok := EssentialMatrixEightPoint(corr)
	require.True(t, ok)
	cands, ok := DecomposeEssentialMatrix(e)
	require.True(t, ok)

	front := 0
	for _, c := range cands {
		assert.True(t, c.Rotation.IsRotation(1e-9))
		if NumPointsInFront(c, corr) == len(corr) {
			front++
		}
	}
	assert.Equal(t, 1, front)
}

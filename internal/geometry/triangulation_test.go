package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func observe(t *testing.T, p Pose, x r3.Vec) Observation {
	t.Helper()
	pt, depth := Project(p, x)
	require.Greater(t, depth, 0.0)
	return Observation{Pose: p, Point: pt}
}

func TestTriangulateDLT(t *testing.T) {
	t.Parallel()

	x := r3.Vec{X: 0.3, Y: -0.2, Z: 6}
	p1 := IdentityPose()
	p2 := Pose{Rotation: RotationFromAngleAxis(r3.Vec{Y: -0.1}), Position: r3.Vec{X: 1}}
	p3 := Pose{Rotation: RotationFromAngleAxis(r3.Vec{X: 0.05}), Position: r3.Vec{Y: 0.8, Z: -0.5}}

	t.Run("two views", func(t *testing.T) {
		got, ok := TriangulateDLT([]Observation{observe(t, p1, x), observe(t, p2, x)})
		require.True(t, ok)
		assert.InDelta(t, x.X, got.X, 1e-9)
		assert.InDelta(t, x.Y, got.Y, 1e-9)
		assert.InDelta(t, x.Z, got.Z, 1e-9)
	})

	t.Run("three views", func(t *testing.T) {
		got, ok := TriangulateDLT([]Observation{observe(t, p1, x), observe(t, p2, x), observe(t, p3, x)})
		require.True(t, ok)
		assert.InDelta(t, 0, r3.Norm(r3.Sub(x, got)), 1e-9)
	})

	t.Run("single view", func(t *testing.T) {
		_, ok := TriangulateDLT([]Observation{observe(t, p1, x)})
		assert.False(t, ok)
	})
}

func TestTriangulationAngle(t *testing.T) {
	t.Parallel()
	got := TriangulationAngle(r3.Vec{X: -1}, r3.Vec{X: 1}, r3.Vec{Z: 1})
	assert.InDelta(t, math.Pi/2, got, 1e-12)
	assert.Zero(t, TriangulationAngle(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{}))
}

func TestProject(t *testing.T) {
	t.Parallel()
	pt, depth := Project(IdentityPose(), r3.Vec{X: 1, Y: 2, Z: 4})
	assert.Equal(t, [2]float64{0.25, 0.5}, pt)
	assert.Equal(t, 4.0, depth)

	_, depth = Project(IdentityPose(), r3.Vec{X: 1})
	assert.Zero(t, depth)
}

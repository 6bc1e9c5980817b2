package sfm

import (
	"math"
	"testing"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewCameraFromPrior(t *testing.T) {
	t.Parallel()

	t.Run("uncalibrated uses default focal", func(t *testing.T) {
		c := NewCameraFromPrior(CameraIntrinsicsPrior{ImageWidth: 640, ImageHeight: 480}, 0)
		assert.InDelta(t, 1.2*640, c.FocalLength, 1e-9)
		assert.Equal(t, [2]float64{320, 240}, c.PrincipalPoint)
		assert.Equal(t, 1.0, c.AspectRatio)
	})

	t.Run("calibrated prior wins", func(t *testing.T) {
		p := CameraIntrinsicsPrior{
			ImageWidth:     640,
			ImageHeight:    480,
			FocalLength:    Set(500.0),
			PrincipalPoint: Set([2]float64{300, 200}),
			Position:       Set([3]float64{1, 2, 3}),
		}
		assert.True(t, p.IsCalibrated())
		c := NewCameraFromPrior(p, 2)
		assert.Equal(t, 500.0, c.FocalLength)
		assert.Equal(t, [2]float64{300, 200}, c.PrincipalPoint)
		assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, c.Pose.Position)
	})
}

func TestCameraProjectRoundTrip(t *testing.T) {
	t.Parallel()

	c := Camera{
		Pose:           geometry.Pose{Rotation: geometry.RotationFromAngleAxis(r3.Vec{X: 0.1}), Position: r3.Vec{Z: -2}},
		FocalLength:    800,
		PrincipalPoint: [2]float64{320, 240},
		AspectRatio:    1.1,
		Skew:           0.5,
	}
	x := r3.Vec{X: 0.4, Y: -0.3, Z: 5}
	f, depth := c.Project(x)
	assert.Greater(t, depth, 0.0)

	n := c.PixelToNormalized(f)
	want, _ := geometry.Project(c.Pose, x)
	assert.InDelta(t, want[0], n[0], 1e-12)
	assert.InDelta(t, want[1], n[1], 1e-12)
	assert.InDelta(t, 0, c.ReprojectionError(x, f), 1e-9)
	assert.True(t, math.IsInf(c.ReprojectionError(r3.Vec{Z: -10}, f), 1))
}

// Package pose provides minimal geometric solvers wrapped for robust
// estimation: absolute pose from 2D-3D correspondences (full and with known
// orientation) and relative pose between two calibrated views.
//
// All image coordinates are normalized (intrinsics removed). Residuals are
// squared normalized reprojection or Sampson errors, so a pixel threshold
// τ for a camera of focal length f maps to (τ/f)².
package pose

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Correspondence2D3D is a normalized image point and the world point it
// observes.
type Correspondence2D3D struct {
	Feature [2]float64
	World   r3.Vec
}

// Correspondence2D2D is a pair of normalized image points observing the
// same world point from two views.
type Correspondence2D2D struct {
	Feature1 [2]float64
	Feature2 [2]float64
}

// PixelThresholdToNormalized converts a pixel reprojection threshold into
// the squared normalized units used by the residuals in this package.
func PixelThresholdToNormalized(pixels, focalLength float64) float64 {
	if focalLength <= 0 {
		return pixels * pixels
	}
	r := pixels / focalLength
	return r * r
}

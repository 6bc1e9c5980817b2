package pose

import (
	"math"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/ransac"
	"gonum.org/v1/gonum/spatial/r3"
)

// minRayDeterminant rejects ray pairs that are (nearly) parallel.
const minRayDeterminant = 1e-12

// PositionFromTwoRays solves for the centre of a camera with known
// world-to-camera rotation from two 2D-3D correspondences. It returns false
// when the rays are parallel or a point would lie behind the camera.
func PositionFromTwoRays(rotation geometry.Mat3, c1, c2 Correspondence2D3D) (r3.Vec, bool) {
	rt := rotation.Transpose()
	d1 := rt.MulVec(r3.Vec{X: c1.Feature[0], Y: c1.Feature[1], Z: 1})
	d2 := rt.MulVec(r3.Vec{X: c2.Feature[0], Y: c2.Feature[1], Z: 1})

	// X_i = c + λ_i d_i  ⇒  λ1 d1 - λ2 d2 = X1 - X2, solved in the least
	// squares sense.
	b := r3.Sub(c1.World, c2.World)
	a11 := r3.Dot(d1, d1)
	a12 := -r3.Dot(d1, d2)
	a22 := r3.Dot(d2, d2)
	det := a11*a22 - a12*a12
	if math.Abs(det) < minRayDeterminant*a11*a22 || r3.Norm(b) == 0 {
		return r3.Vec{}, false
	}
	b1 := r3.Dot(d1, b)
	b2 := -r3.Dot(d2, b)
	l1 := (a22*b1 - a12*b2) / det
	l2 := (a11*b2 - a12*b1) / det
	if l1 <= 0 || l2 <= 0 {
		return r3.Vec{}, false
	}
	p1 := r3.Sub(c1.World, r3.Scale(l1, d1))
	p2 := r3.Sub(c2.World, r3.Scale(l2, d2))
	return r3.Scale(0.5, r3.Add(p1, p2)), true
}

type knownOrientationEstimator struct {
	rotation geometry.Mat3
}

func (knownOrientationEstimator) SampleSize() int { return 2 }

func (e knownOrientationEstimator) EstimateModel(s []Correspondence2D3D) ([]r3.Vec, bool) {
	c, ok := PositionFromTwoRays(e.rotation, s[0], s[1])
	if !ok {
		return nil, false
	}
	return []r3.Vec{c}, true
}

func (e knownOrientationEstimator) Error(d Correspondence2D3D, c r3.Vec) float64 {
	return reprojectionError(geometry.Pose{Rotation: e.rotation, Position: c}, d)
}

// reprojectionError is the squared normalized reprojection error, or
// math.MaxFloat64 for points behind the camera.
func reprojectionError(p geometry.Pose, d Correspondence2D3D) float64 {
	pt, depth := geometry.Project(p, d.World)
	if depth <= 0 {
		return math.MaxFloat64
	}
	dx := pt[0] - d.Feature[0]
	dy := pt[1] - d.Feature[1]
	return dx*dx + dy*dy
}

// EstimateAbsolutePoseWithKnownOrientation robustly estimates the centre of
// a camera whose world-to-camera rotation is already known.
func EstimateAbsolutePoseWithKnownOrientation(
	params ransac.Params,
	typ ransac.Type,
	rotation geometry.Mat3,
	correspondences []Correspondence2D3D,
) (r3.Vec, ransac.Summary) {
	return ransac.Estimate[Correspondence2D3D, r3.Vec](
		knownOrientationEstimator{rotation: rotation}, typ, params, correspondences)
}

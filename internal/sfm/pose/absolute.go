package pose

import (
	"math"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/ransac"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// minRelativeSingularValue flags rank-deficient DLT systems.
const minRelativeSingularValue = 1e-10

// CalibratedAbsolutePoseDLT estimates a camera pose from at least six
// non-coplanar 2D-3D correspondences by solving for the 3x4 projection
// matrix and projecting its left block onto SO(3). It returns false for
// degenerate inputs.
func CalibratedAbsolutePoseDLT(corr []Correspondence2D3D) (geometry.Pose, bool) {
	n := len(corr)
	if n < 6 {
		return geometry.Pose{}, false
	}

	// Centre and scale the world points for conditioning.
	var mean r3.Vec
	for _, c := range corr {
		mean = r3.Add(mean, c.World)
	}
	mean = r3.Scale(1/float64(n), mean)
	spread := 0.0
	for _, c := range corr {
		spread += r3.Norm(r3.Sub(c.World, mean))
	}
	spread /= float64(n)
	if spread == 0 {
		return geometry.Pose{}, false
	}
	scale := 1 / spread

	a := mat.NewDense(2*n, 12, nil)
	for i, c := range corr {
		w := r3.Scale(scale, r3.Sub(c.World, mean))
		xh := [4]float64{w.X, w.Y, w.Z, 1}
		x, y := c.Feature[0], c.Feature[1]
		for k := 0; k < 4; k++ {
			a.Set(2*i, k, -xh[k])
			a.Set(2*i, 8+k, x*xh[k])
			a.Set(2*i+1, 4+k, -xh[k])
			a.Set(2*i+1, 8+k, y*xh[k])
		}
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return geometry.Pose{}, false
	}
	sv := svd.Values(nil)
	if sv[10] < minRelativeSingularValue*sv[0] {
		return geometry.Pose{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	var p [12]float64
	for k := range p {
		p[k] = v.At(k, 11)
	}

	m := geometry.Mat3{p[0], p[1], p[2], p[4], p[5], p[6], p[8], p[9], p[10]}
	if m.Det() < 0 {
		for k := range p {
			p[k] = -p[k]
		}
		m = geometry.Mat3{p[0], p[1], p[2], p[4], p[5], p[6], p[8], p[9], p[10]}
	}
	_, _, s, ok := geometry.SVD3(m)
	if !ok {
		return geometry.Pose{}, false
	}
	lambda := (s[0] + s[1] + s[2]) / 3
	if lambda == 0 {
		return geometry.Pose{}, false
	}
	for i := range m {
		m[i] /= lambda
	}
	rot, ok := geometry.ProjectToRotation(m)
	if !ok {
		return geometry.Pose{}, false
	}

	// Undo the world normalisation: t = t' - R μ with t' rescaled.
	tn := r3.Vec{X: p[3], Y: p[7], Z: p[11]}
	t := r3.Sub(r3.Scale(1/(lambda*scale), tn), rot.MulVec(mean))
	pose := geometry.PoseFromRotationTranslation(rot, t)
	if !finite(pose.Position) {
		return geometry.Pose{}, false
	}
	return pose, true
}

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}

type absolutePoseEstimator struct{}

func (absolutePoseEstimator) SampleSize() int { return 6 }

func (absolutePoseEstimator) EstimateModel(s []Correspondence2D3D) ([]geometry.Pose, bool) {
	p, ok := CalibratedAbsolutePoseDLT(s)
	if !ok {
		return nil, false
	}
	return []geometry.Pose{p}, true
}

func (absolutePoseEstimator) Error(d Correspondence2D3D, p geometry.Pose) float64 {
	return reprojectionError(p, d)
}

// EstimateCalibratedAbsolutePose robustly estimates a full camera pose from
// normalized 2D-3D correspondences.
func EstimateCalibratedAbsolutePose(
	params ransac.Params,
	typ ransac.Type,
	correspondences []Correspondence2D3D,
) (geometry.Pose, ransac.Summary) {
	return ransac.Estimate[Correspondence2D3D, geometry.Pose](
		absolutePoseEstimator{}, typ, params, correspondences)
}

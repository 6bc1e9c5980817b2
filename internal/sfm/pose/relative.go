package pose

import (
	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/ransac"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RelativePose maps points from the first camera frame into the second:
// x2 = Rotation x1 + Translation. Translation has unit length.
type RelativePose struct {
	Rotation    geometry.Mat3
	Translation r3.Vec
	Essential   geometry.Mat3
}

// Position returns the centre of the second camera in the first camera's
// frame.
func (p RelativePose) Position() r3.Vec {
	return r3.Scale(-1, p.Rotation.Transpose().MulVec(p.Translation))
}

// EssentialMatrixEightPoint solves x2ᵀ E x1 = 0 linearly from at least
// eight correspondences and enforces the essential-matrix singular values.
func EssentialMatrixEightPoint(corr []Correspondence2D2D) (geometry.Mat3, bool) {
	n := len(corr)
	if n < 8 {
		return geometry.Mat3{}, false
	}
	a := mat.NewDense(n, 9, nil)
	for i, c := range corr {
		x1, y1 := c.Feature1[0], c.Feature1[1]
		x2, y2 := c.Feature2[0], c.Feature2[1]
		a.SetRow(i, []float64{x2 * x1, x2 * y1, x2, y2 * x1, y2 * y1, y2, x1, y1, 1})
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return geometry.Mat3{}, false
	}
	sv := svd.Values(nil)
	if sv[7] < minRelativeSingularValue*sv[0] {
		return geometry.Mat3{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	var e geometry.Mat3
	for k := range e {
		e[k] = v.At(k, 8)
	}

	u, ev, _, ok := geometry.SVD3(e)
	if !ok {
		return geometry.Mat3{}, false
	}
	diag := geometry.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 0}
	return u.Mul(diag).Mul(ev.Transpose()), true
}

// DecomposeEssentialMatrix returns the four (R, t) candidates of e.
func DecomposeEssentialMatrix(e geometry.Mat3) ([4]RelativePose, bool) {
	var out [4]RelativePose
	u, v, _, ok := geometry.SVD3(e)
	if !ok {
		return out, false
	}
	if u.Det() < 0 {
		u = negate(u)
	}
	if v.Det() < 0 {
		v = negate(v)
	}
	w := geometry.Mat3{0, -1, 0, 1, 0, 0, 0, 0, 1}
	r1 := u.Mul(w).Mul(v.Transpose())
	r2 := u.Mul(w.Transpose()).Mul(v.Transpose())
	t := r3.Unit(r3.Vec{X: u[2], Y: u[5], Z: u[8]})
	nt := r3.Scale(-1, t)
	out[0] = RelativePose{Rotation: r1, Translation: t, Essential: e}
	out[1] = RelativePose{Rotation: r1, Translation: nt, Essential: e}
	out[2] = RelativePose{Rotation: r2, Translation: t, Essential: e}
	out[3] = RelativePose{Rotation: r2, Translation: nt, Essential: e}
	return out, true
}

func negate(m geometry.Mat3) geometry.Mat3 {
	for i := range m {
		m[i] = -m[i]
	}
	return m
}

// NumPointsInFront triangulates each correspondence under p and counts the
// points with positive depth in both cameras.
func NumPointsInFront(p RelativePose, corr []Correspondence2D2D) int {
	p1 := geometry.IdentityPose()
	p2 := geometry.PoseFromRotationTranslation(p.Rotation, p.Translation)
	n := 0
	for _, c := range corr {
		x, ok := geometry.TriangulateDLT([]geometry.Observation{
			{Pose: p1, Point: c.Feature1},
			{Pose: p2, Point: c.Feature2},
		})
		if !ok {
			continue
		}
		if p1.Transform(x).Z > 0 && p2.Transform(x).Z > 0 {
			n++
		}
	}
	return n
}

// SampsonError is the first-order geometric error of c under e, in squared
// normalized units.
func SampsonError(e geometry.Mat3, c Correspondence2D2D) float64 {
	x1 := r3.Vec{X: c.Feature1[0], Y: c.Feature1[1], Z: 1}
	x2 := r3.Vec{X: c.Feature2[0], Y: c.Feature2[1], Z: 1}
	ex1 := e.MulVec(x1)
	etx2 := e.Transpose().MulVec(x2)
	num := r3.Dot(x2, ex1)
	den := ex1.X*ex1.X + ex1.Y*ex1.Y + etx2.X*etx2.X + etx2.Y*etx2.Y
	if den == 0 {
		return 0
	}
	return num * num / den
}

type relativePoseEstimator struct{}

func (relativePoseEstimator) SampleSize() int { return 8 }

func (relativePoseEstimator) EstimateModel(s []Correspondence2D2D) ([]RelativePose, bool) {
	e, ok := EssentialMatrixEightPoint(s)
	if !ok {
		return nil, false
	}
	candidates, ok := DecomposeEssentialMatrix(e)
	if !ok {
		return nil, false
	}
	best, bestFront := -1, 0
	for i, c := range candidates {
		if n := NumPointsInFront(c, s); n > bestFront {
			best, bestFront = i, n
		}
	}
	if best < 0 {
		return nil, false
	}
	return []RelativePose{candidates[best]}, true
}

func (relativePoseEstimator) Error(d Correspondence2D2D, p RelativePose) float64 {
	return SampsonError(p.Essential, d)
}

// EstimateRelativePose robustly estimates the relative pose of two
// calibrated views from normalized correspondences.
func EstimateRelativePose(
	params ransac.Params,
	typ ransac.Type,
	correspondences []Correspondence2D2D,
) (RelativePose, ransac.Summary) {
	return ransac.Estimate[Correspondence2D2D, RelativePose](
		relativePoseEstimator{}, typ, params, correspondences)
}

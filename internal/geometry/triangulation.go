package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Observation is a normalized image ray (x/z, y/z in the camera frame)
// seen from a posed camera.
type Observation struct {
	Pose  Pose
	Point [2]float64
}

// TriangulateDLT returns the world point minimising the algebraic error of
// all observations. ok is false with fewer than two observations, a failed
// SVD, or a point at infinity.
func TriangulateDLT(obs []Observation) (r3.Vec, bool) {
	if len(obs) < 2 {
		return r3.Vec{}, false
	}
	a := mat.NewDense(2*len(obs), 4, nil)
	for i, o := range obs {
		p := o.Pose.ToMatrix4()
		x, y := o.Point[0], o.Point[1]
		for c := 0; c < 4; c++ {
			a.Set(2*i, c, x*p[8+c]-p[c])
			a.Set(2*i+1, c, y*p[8+c]-p[4+c])
		}
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return r3.Vec{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return r3.Vec{}, false
	}
	return r3.Vec{X: v.At(0, 3) / w, Y: v.At(1, 3) / w, Z: v.At(2, 3) / w}, true
}

// TriangulationAngle returns the angle in radians subtended at x by the two
// camera centres.
func TriangulationAngle(c1, c2, x r3.Vec) float64 {
	d1 := r3.Sub(c1, x)
	d2 := r3.Sub(c2, x)
	n := r3.Norm(d1) * r3.Norm(d2)
	if n == 0 {
		return 0
	}
	return math.Acos(clamp(r3.Dot(d1, d2)/n, -1, 1))
}

// Project returns the normalized image coordinates of x seen from pose and
// the depth along the optical axis.
func Project(pose Pose, x r3.Vec) (pt [2]float64, depth float64) {
	c := pose.Transform(x)
	if c.Z == 0 {
		return [2]float64{math.Inf(1), math.Inf(1)}, 0
	}
	return [2]float64{c.X / c.Z, c.Y / c.Z}, c.Z
}

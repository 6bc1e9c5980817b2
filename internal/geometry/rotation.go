package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mat3 is a row-major 3x3 matrix.
type Mat3 [9]float64

// Identity returns the 3x3 identity.
func Identity() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns element (r, c).
func (a Mat3) At(r, c int) float64 { return a[3*r+c] }

// Mul returns a*b.
func (a Mat3) Mul(b Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = a[3*r]*b[c] + a[3*r+1]*b[3+c] + a[3*r+2]*b[6+c]
		}
	}
	return out
}

// MulVec returns a*v.
func (a Mat3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: a[0]*v.X + a[1]*v.Y + a[2]*v.Z,
		Y: a[3]*v.X + a[4]*v.Y + a[5]*v.Z,
		Z: a[6]*v.X + a[7]*v.Y + a[8]*v.Z,
	}
}

// Transpose returns aᵀ (the inverse when a is a rotation).
func (a Mat3) Transpose() Mat3 {
	return Mat3{
		a[0], a[3], a[6],
		a[1], a[4], a[7],
		a[2], a[5], a[8],
	}
}

// Det returns the determinant.
func (a Mat3) Det() float64 {
	return a[0]*(a[4]*a[8]-a[5]*a[7]) - a[1]*(a[3]*a[8]-a[5]*a[6]) + a[2]*(a[3]*a[7]-a[4]*a[6])
}

// IsRotation reports whether a is orthonormal with determinant +1 within tol.
func (a Mat3) IsRotation(tol float64) bool {
	if math.Abs(a.Det()-1) > tol {
		return false
	}
	p := a.Mul(a.Transpose())
	id := Identity()
	for i := range p {
		if math.Abs(p[i]-id[i]) > tol {
			return false
		}
	}
	return true
}

// Skew returns the cross-product matrix [v]x, so Skew(v).MulVec(w) = v × w.
func Skew(v r3.Vec) Mat3 {
	return Mat3{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	}
}

// RotationFromAngleAxis converts an angle-axis vector (axis scaled by the
// angle in radians) to a rotation matrix using Rodrigues' formula.
func RotationFromAngleAxis(aa r3.Vec) Mat3 {
	theta := r3.Norm(aa)
	if theta < 1e-12 {
		// First-order expansion keeps tiny rotations exact enough.
		return addMat(Identity(), Skew(aa))
	}
	k := Skew(r3.Scale(1/theta, aa))
	k2 := k.Mul(k)
	s, c := math.Sincos(theta)
	var out Mat3
	id := Identity()
	for i := range out {
		out[i] = id[i] + s*k[i] + (1-c)*k2[i]
	}
	return out
}

// AngleAxis returns the angle-axis vector of rotation a.
func (a Mat3) AngleAxis() r3.Vec {
	cosTheta := clamp((a[0]+a[4]+a[8]-1)/2, -1, 1)
	theta := math.Acos(cosTheta)
	if theta < 1e-10 {
		return r3.Vec{X: (a[7] - a[5]) / 2, Y: (a[2] - a[6]) / 2, Z: (a[3] - a[1]) / 2}
	}
	if math.Pi-theta < 1e-6 {
		// Near 180° the antisymmetric part vanishes; recover the axis from
		// the diagonal and fix signs from the largest component.
		x := math.Sqrt(math.Max(0, (a[0]+1)/2))
		y := math.Sqrt(math.Max(0, (a[4]+1)/2))
		z := math.Sqrt(math.Max(0, (a[8]+1)/2))
		switch {
		case x >= y && x >= z:
			y = math.Copysign(y, a[1])
			z = math.Copysign(z, a[2])
		case y >= z:
			x = math.Copysign(x, a[1])
			z = math.Copysign(z, a[5])
		default:
			x = math.Copysign(x, a[2])
			y = math.Copysign(y, a[5])
		}
		return r3.Scale(theta, r3.Unit(r3.Vec{X: x, Y: y, Z: z}))
	}
	axis := r3.Vec{X: a[7] - a[5], Y: a[2] - a[6], Z: a[3] - a[1]}
	return r3.Scale(theta/(2*math.Sin(theta)), axis)
}

// AngleBetween returns the angle in radians of the rotation taking a to b.
func AngleBetween(a, b Mat3) float64 {
	return r3.Norm(a.Transpose().Mul(b).AngleAxis())
}

// ProjectToRotation returns the rotation closest to m in the Frobenius norm.
// ok is false when the SVD fails.
func ProjectToRotation(m Mat3) (Mat3, bool) {
	u, v, _, ok := SVD3(m)
	if !ok {
		return Mat3{}, false
	}
	r := u.Mul(v.Transpose())
	if r.Det() < 0 {
		u[2], u[5], u[8] = -u[2], -u[5], -u[8]
		r = u.Mul(v.Transpose())
	}
	return r, true
}

// SVD3 factorises m = U diag(s) Vᵀ with s in descending order.
func SVD3(m Mat3) (u, v Mat3, s [3]float64, ok bool) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, m[:]), mat.SVDFull) {
		return u, v, s, false
	}
	var ud, vd mat.Dense
	svd.UTo(&ud)
	svd.VTo(&vd)
	copy(s[:], svd.Values(nil))
	return Mat3FromDense(&ud), Mat3FromDense(&vd), s, true
}

// Mat3FromDense copies the top-left 3x3 block of d.
func Mat3FromDense(d mat.Matrix) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = d.At(r, c)
		}
	}
	return out
}

func addMat(a, b Mat3) Mat3 {
	for i := range a {
		a[i] += b[i]
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

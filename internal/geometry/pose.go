package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a camera's extrinsic calibration. Rotation maps world directions
// into the camera frame; Position is the camera centre in world coordinates.
type Pose struct {
	Rotation Mat3
	Position r3.Vec
}

// IdentityPose returns a camera at the origin looking down +Z.
func IdentityPose() Pose {
	return Pose{Rotation: Identity()}
}

// Transform maps a world point into the camera frame.
func (p Pose) Transform(x r3.Vec) r3.Vec {
	return p.Rotation.MulVec(r3.Sub(x, p.Position))
}

// Translation returns t = -R c, so that x_cam = R X + t.
func (p Pose) Translation() r3.Vec {
	return r3.Scale(-1, p.Rotation.MulVec(p.Position))
}

// PoseFromRotationTranslation builds a pose from x_cam = R X + t.
func PoseFromRotationTranslation(r Mat3, t r3.Vec) Pose {
	return Pose{Rotation: r, Position: r3.Scale(-1, r.Transpose().MulVec(t))}
}

// ToMatrix4 returns the world-to-camera rigid transform as a row-major
// 4x4 matrix.
func (p Pose) ToMatrix4() [16]float64 {
	r := p.Rotation
	t := p.Translation()
	return [16]float64{
		r[0], r[1], r[2], t.X,
		r[3], r[4], r[5], t.Y,
		r[6], r[7], r[8], t.Z,
		0, 0, 0, 1,
	}
}

// PoseFromMatrix4 inverts ToMatrix4. ok is false if t is not a rigid transform.
func PoseFromMatrix4(t [16]float64) (Pose, bool) {
	if !IsValidTransformMatrix(t) {
		return Pose{}, false
	}
	r := Mat3{t[0], t[1], t[2], t[4], t[5], t[6], t[8], t[9], t[10]}
	return PoseFromRotationTranslation(r, r3.Vec{X: t[3], Y: t[7], Z: t[11]}), true
}

// PoseQuality represents the assessed quality of an estimated camera pose.
type PoseQuality string

const (
	// PoseQualityExcellent indicates RMSE < 0.5px
	PoseQualityExcellent PoseQuality = "excellent"
	// PoseQualityGood indicates RMSE 0.5-1.5px
	PoseQualityGood PoseQuality = "good"
	// PoseQualityFair indicates RMSE 1.5-3px, usable but weakly constrained
	PoseQualityFair PoseQuality = "fair"
	// PoseQualityPoor indicates RMSE > 3px
	PoseQualityPoor PoseQuality = "poor"
	// PoseQualityUnknown indicates RMSE not computed
	PoseQualityUnknown PoseQuality = "unknown"
)

// Reprojection RMSE thresholds (pixels)
const (
	RMSEThresholdExcellent = 0.5
	RMSEThresholdGood      = 1.5
	RMSEThresholdFair      = 3.0
	// MatrixValidationTolerance is the tolerance for checking rotation matrix validity
	MatrixValidationTolerance = 0.01
)

// PoseValidationResult contains the result of pose validation.
type PoseValidationResult struct {
	Valid   bool
	Quality PoseQuality
	Issues  []string
}

// ValidatePose checks that pose has a proper rotation and grades it by the
// reprojection RMSE of its supporting observations. A negative rmse means
// the error was not computed.
func ValidatePose(pose *Pose, rmse float64) PoseValidationResult {
	result := PoseValidationResult{
		Quality: PoseQualityUnknown,
		Issues:  make([]string, 0),
	}

	if pose == nil {
		result.Issues = append(result.Issues, "pose is nil")
		return result
	}

	if !IsValidTransformMatrix(pose.ToMatrix4()) || !isFinite(pose.Position) {
		result.Issues = append(result.Issues, "invalid transform matrix (not proper rigid transform)")
		result.Quality = PoseQualityPoor
		return result
	}

	switch {
	case rmse < 0 || math.IsNaN(rmse):
		result.Issues = append(result.Issues, "RMSE not computed - quality unknown")
	case rmse < RMSEThresholdExcellent:
		result.Quality = PoseQualityExcellent
	case rmse < RMSEThresholdGood:
		result.Quality = PoseQualityGood
	case rmse < RMSEThresholdFair:
		result.Quality = PoseQualityFair
		result.Issues = append(result.Issues, "pose quality is fair - weakly constrained")
	default:
		result.Quality = PoseQualityPoor
		result.Issues = append(result.Issues, "pose quality is poor - reprojection error too high")
	}

	result.Valid = result.Quality != PoseQualityPoor
	return result
}

// IsValidTransformMatrix checks if a row-major 4x4 matrix is a rigid
// transform: orthonormal rotation block with det ≈ 1 and last row [0 0 0 1].
func IsValidTransformMatrix(t [16]float64) bool {
	r := Mat3{t[0], t[1], t[2], t[4], t[5], t[6], t[8], t[9], t[10]}
	if !r.IsRotation(MatrixValidationTolerance) {
		return false
	}
	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1.0) > 0.001 {
		return false
	}
	return true
}

// IsPoseUsableForLocalization returns true if a localized view may be added
// to a reconstruction. Unknown is allowed with caution.
func IsPoseUsableForLocalization(result PoseValidationResult) bool {
	return result.Valid && result.Quality != PoseQualityPoor
}

// IsPoseUsableForSeeding returns true if the pose is trustworthy enough to
// anchor a new reconstruction.
func IsPoseUsableForSeeding(result PoseValidationResult) bool {
	return result.Valid && (result.Quality == PoseQualityExcellent ||
		result.Quality == PoseQualityGood)
}

// String returns a human-readable description of the pose quality.
func (q PoseQuality) String() string {
	switch q {
	case PoseQualityExcellent:
		return "excellent (RMSE < 0.5px)"
	case PoseQualityGood:
		return "good (RMSE 0.5-1.5px)"
	case PoseQualityFair:
		return "fair (RMSE 1.5-3px)"
	case PoseQualityPoor:
		return "poor (RMSE > 3px)"
	case PoseQualityUnknown:
		return "unknown (RMSE not computed)"
	default:
		return string(q)
	}
}

func isFinite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

package sfm

import (
	"math"

	"github.com/banshee-data/sfm/internal/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultFocalLengthRatio scales max(width, height) to guess a focal length
// for views without a calibrated prior.
const DefaultFocalLengthRatio = 1.2

// Feature is a 2-D pixel observation.
type Feature struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Camera is a pinhole camera: pose plus intrinsics. Distortion is not
// modelled; priors carrying distortion are assumed to be undistorted
// upstream.
type Camera struct {
	Pose           geometry.Pose
	FocalLength    float64
	PrincipalPoint [2]float64
	AspectRatio    float64
	Skew           float64
	ImageWidth     int
	ImageHeight    int
}

// NewCameraFromPrior initialises intrinsics from prior, falling back to
// focalRatio*max(width, height) for the focal length and the image centre
// for the principal point. Pose priors seed the camera pose when set.
func NewCameraFromPrior(prior CameraIntrinsicsPrior, focalRatio float64) Camera {
	if focalRatio <= 0 {
		focalRatio = DefaultFocalLengthRatio
	}
	w, h := prior.ImageWidth, prior.ImageHeight
	c := Camera{
		Pose:        geometry.IdentityPose(),
		AspectRatio: prior.AspectRatio.Get(1),
		Skew:        prior.Skew.Get(0),
		ImageWidth:  w,
		ImageHeight: h,
	}
	c.FocalLength = prior.FocalLength.Get(focalRatio * math.Max(1, float64(max(w, h))))
	c.PrincipalPoint = prior.PrincipalPoint.Get([2]float64{float64(w) / 2, float64(h) / 2})
	if c.AspectRatio == 0 {
		c.AspectRatio = 1
	}
	if prior.Orientation.IsSet {
		o := prior.Orientation.Value
		c.Pose.Rotation = geometry.RotationFromAngleAxis(r3.Vec{X: o[0], Y: o[1], Z: o[2]})
	}
	if prior.Position.IsSet {
		p := prior.Position.Value
		c.Pose.Position = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
	}
	return c
}

// PixelToNormalized removes the intrinsics from a pixel observation.
func (c Camera) PixelToNormalized(f Feature) [2]float64 {
	y := (f.Y - c.PrincipalPoint[1]) / (c.FocalLength * c.AspectRatio)
	x := (f.X - c.PrincipalPoint[0] - c.Skew*y) / c.FocalLength
	return [2]float64{x, y}
}

// NormalizedToPixel applies the intrinsics to a normalized image point.
func (c Camera) NormalizedToPixel(n [2]float64) Feature {
	return Feature{
		X: c.FocalLength*n[0] + c.Skew*n[1] + c.PrincipalPoint[0],
		Y: c.FocalLength*c.AspectRatio*n[1] + c.PrincipalPoint[1],
	}
}

// Project returns the pixel at which x is seen and its depth. Points with
// depth <= 0 are behind the camera and their pixel is meaningless.
func (c Camera) Project(x r3.Vec) (Feature, float64) {
	n, depth := geometry.Project(c.Pose, x)
	if depth <= 0 {
		return Feature{}, depth
	}
	return c.NormalizedToPixel(n), depth
}

// ReprojectionError returns the pixel distance between f and the projection
// of x, or +Inf when x is behind the camera.
func (c Camera) ReprojectionError(x r3.Vec, f Feature) float64 {
	p, depth := c.Project(x)
	if depth <= 0 {
		return math.Inf(1)
	}
	return math.Hypot(p.X-f.X, p.Y-f.Y)
}

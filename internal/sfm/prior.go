package sfm

// Prior is a value that may or may not have been supplied.
type Prior[T any] struct {
	Value T
	IsSet bool
}

// Set returns a Prior holding v.
func Set[T any](v T) Prior[T] {
	return Prior[T]{Value: v, IsSet: true}
}

// Get returns the value if set, else fallback.
func (p Prior[T]) Get(fallback T) T {
	if p.IsSet {
		return p.Value
	}
	return fallback
}

// CameraIntrinsicsPrior carries whatever calibration is known about an image
// ahead of reconstruction. Every field is independently optional.
type CameraIntrinsicsPrior struct {
	ImageWidth  int
	ImageHeight int
	// CameraModel names the intrinsics model, e.g. "PINHOLE".
	CameraModel string

	FocalLength          Prior[float64]
	PrincipalPoint       Prior[[2]float64]
	AspectRatio          Prior[float64]
	Skew                 Prior[float64]
	RadialDistortion     Prior[[4]float64]
	TangentialDistortion Prior[[2]float64]

	// Position and Orientation (angle-axis) are world-frame pose priors.
	Position    Prior[[3]float64]
	Orientation Prior[[3]float64]

	Latitude  Prior[float64]
	Longitude Prior[float64]
	Altitude  Prior[float64]
}

// DefaultCameraModel is used when a prior does not name one.
const DefaultCameraModel = "PINHOLE"

// IsCalibrated reports whether the focal length is known.
func (p CameraIntrinsicsPrior) IsCalibrated() bool {
	return p.FocalLength.IsSet
}

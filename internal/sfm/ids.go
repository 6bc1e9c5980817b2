package sfm

import "math"

// ViewID identifies a view within a Reconstruction.
type ViewID uint32

// TrackID identifies a track within a Reconstruction.
type TrackID uint32

// CameraIntrinsicsGroupID groups views taken with the same physical camera,
// which therefore share intrinsics.
type CameraIntrinsicsGroupID uint32

// Invalid id sentinels returned by failed lookups and insertions.
const (
	InvalidViewID                  ViewID                  = math.MaxUint32
	InvalidTrackID                 TrackID                 = math.MaxUint32
	InvalidCameraIntrinsicsGroupID CameraIntrinsicsGroupID = math.MaxUint32
)

// ViewIDPair is an unordered view pair stored low id first.
type ViewIDPair struct {
	First, Second ViewID
}

// NewViewIDPair returns the canonical pair for a and b.
func NewViewIDPair(a, b ViewID) ViewIDPair {
	if a > b {
		a, b = b, a
	}
	return ViewIDPair{First: a, Second: b}
}

package sfm

import (
	"github.com/banshee-data/sfm/internal/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// TwoViewInfo is the relative geometry of a view pair. The first view is
// taken as the world frame (identity rotation at the origin); Rotation2 and
// Position2 are the second view's pose in that frame, with Position2 of
// unit length since scale is unobservable.
type TwoViewInfo struct {
	FocalLength1 float64 `json:"focal_length_1"`
	FocalLength2 float64 `json:"focal_length_2"`

	Rotation2 geometry.Mat3 `json:"rotation_2"`
	Position2 r3.Vec        `json:"position_2"`

	NumVerifiedMatches   int `json:"num_verified_matches"`
	NumHomographyInliers int `json:"num_homography_inliers"`
	VisibilityScore      int `json:"visibility_score"`
}

// Swap re-expresses the relation with the second view as the reference, so
// the info can be stored against the reversed pair.
func (t TwoViewInfo) Swap() TwoViewInfo {
	out := t
	out.FocalLength1, out.FocalLength2 = t.FocalLength2, t.FocalLength1
	out.Rotation2 = t.Rotation2.Transpose()
	out.Position2 = r3.Scale(-1, t.Rotation2.MulVec(t.Position2))
	return out
}

// Package matching holds the feature extraction and matching collaborators
// that feed the reconstruction builder: the features-and-matches database
// contract, an in-memory implementation, a concurrent extract-and-match
// pipeline and a source for databases that were populated elsewhere.
//
// Image names are file names without directories; paths passed to AddImage
// are reduced with filepath.Base.
package matching

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/banshee-data/sfm/internal/sfm"
)

// ErrNotFound is returned when a prior, feature set or match is missing.
var ErrNotFound = errors.New("not found")

// Keypoint is a detected image feature location.
type Keypoint struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Scale       float64 `json:"scale,omitempty"`
	Orientation float64 `json:"orientation,omitempty"`
}

// KeypointsAndDescriptors are the features extracted from one image.
type KeypointsAndDescriptors struct {
	ImageName   string      `json:"image_name"`
	Keypoints   []Keypoint  `json:"keypoints"`
	Descriptors [][]float32 `json:"descriptors"`
}

// FeatureCorrespondence is a pair of pixel observations of the same point.
type FeatureCorrespondence struct {
	Feature1 sfm.Feature `json:"feature1"`
	Feature2 sfm.Feature `json:"feature2"`
}

// ImagePairMatch is the verified matching result for an ordered image pair.
// TwoViewInfo is oriented from Image1 to Image2.
type ImagePairMatch struct {
	Image1          string                  `json:"image1"`
	Image2          string                  `json:"image2"`
	TwoViewInfo     sfm.TwoViewInfo         `json:"two_view_info"`
	Correspondences []FeatureCorrespondence `json:"correspondences"`
}

// ImageNamePair is an ordered pair of image names.
type ImageNamePair struct {
	First, Second string
}

// Database stores camera priors, features and pairwise matches keyed by
// image name. Implementations must be safe for concurrent use.
type Database interface {
	GetCameraIntrinsicsPrior(name string) (sfm.CameraIntrinsicsPrior, error)
	PutCameraIntrinsicsPrior(name string, prior sfm.CameraIntrinsicsPrior) error
	ImageNamesOfCameraIntrinsicsPriors() ([]string, error)

	GetFeatures(name string) (KeypointsAndDescriptors, error)
	PutFeatures(name string, features KeypointsAndDescriptors) error
	ImageNamesOfFeatures() ([]string, error)

	GetImagePairMatch(name1, name2 string) (ImagePairMatch, error)
	PutImagePairMatch(name1, name2 string, match ImagePairMatch) error
	ImageNamesOfMatches() ([]ImageNamePair, error)
	NumMatches() (int, error)
	RemoveAllMatches() error
}

// FeatureSource receives the images registered with the builder and, once
// all have been added, populates the database with priors and verified
// matches. ExtractAndMatchFeatures must complete before it returns.
type FeatureSource interface {
	AddImage(path string) error
	AddImageWithCameraIntrinsicsPrior(path string, prior sfm.CameraIntrinsicsPrior) error
	ExtractAndMatchFeatures(ctx context.Context) error
}

// ImageName returns the database key for an image path.
func ImageName(path string) string {
	return filepath.Base(path)
}

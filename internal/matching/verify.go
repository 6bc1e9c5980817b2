package matching

import (
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/pose"
)

// VerifyOptions configures VerifyTwoViewMatch.
type VerifyOptions struct {
	MinNumInlierMatches   int
	MaxSampsonErrorPixels float64
	FocalLengthRatio      float64
	RansacType            ransac.Type
	Seed                  uint64
	MaxIterations         int
}

// VerifyTwoViewMatch estimates the relative pose of two views from putative
// pixel correspondences and returns the match restricted to inliers. It
// reports false when too few correspondences survive.
func VerifyTwoViewMatch(prior1, prior2 sfm.CameraIntrinsicsPrior, corr []FeatureCorrespondence, opts VerifyOptions) (ImagePairMatch, bool) {
	if len(corr) < opts.MinNumInlierMatches {
		return ImagePairMatch{}, false
	}
	c1 := sfm.NewCameraFromPrior(prior1, opts.FocalLengthRatio)
	c2 := sfm.NewCameraFromPrior(prior2, opts.FocalLengthRatio)

	normalized := make([]pose.Correspondence2D2D, len(corr))
	for i, c := range corr {
		normalized[i] = pose.Correspondence2D2D{
			Feature1: c1.PixelToNormalized(c.Feature1),
			Feature2: c2.PixelToNormalized(c.Feature2),
		}
	}

	maxIters := opts.MaxIterations
	if maxIters <= 0 {
		maxIters = DefaultGeometricVerifyMaxIters
	}
	thr := pose.PixelThresholdToNormalized(opts.MaxSampsonErrorPixels, (c1.FocalLength+c2.FocalLength)/2)
	params := ransac.DefaultParams(thr)
	params.Seed = opts.Seed
	params.MaxIterations = maxIters

	rel, summary := pose.EstimateRelativePose(params, opts.RansacType, normalized)
	if !summary.Success || len(summary.Inliers) < opts.MinNumInlierMatches {
		return ImagePairMatch{}, false
	}

	inliers := make([]FeatureCorrespondence, len(summary.Inliers))
	for i, idx := range summary.Inliers {
		inliers[i] = corr[idx]
	}
	return ImagePairMatch{
		TwoViewInfo: sfm.TwoViewInfo{
			FocalLength1:       c1.FocalLength,
			FocalLength2:       c2.FocalLength,
			Rotation2:          rel.Rotation,
			Position2:          rel.Position(),
			NumVerifiedMatches: len(inliers),
		},
		Correspondences: inliers,
	}, true
}

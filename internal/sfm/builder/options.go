package builder

import (
	"fmt"

	"github.com/banshee-data/sfm/internal/config"
	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/estimator"
	"github.com/banshee-data/sfm/internal/sfm/trackbuilder"
)

// Options configures a Builder.
type Options struct {
	// NumThreads is forwarded to feature extraction and matching. It must
	// be positive.
	NumThreads int

	// OnlyCalibratedViews drops matches touching, and views lacking, a focal
	// length prior.
	OnlyCalibratedViews bool

	MinTrackLength int
	MaxTrackLength int

	// ReconstructLargestConnectedComponent stops after the first successful
	// estimation.
	ReconstructLargestConnectedComponent bool

	// DefaultFocalLengthRatio guesses the focal length of views without a
	// prior as this multiple of the larger image dimension.
	DefaultFocalLengthRatio float64

	// Estimator configures the estimator built for every iteration.
	Estimator estimator.Options
	// NewEstimator overrides estimator construction; nil uses estimator.New.
	NewEstimator func(estimator.Options) (estimator.ReconstructionEstimator, error)

	Logf func(format string, v ...interface{})
}

// DefaultOptions returns the defaults of an empty configuration. It panics
// if those defaults do not map onto valid options.
func DefaultOptions() Options {
	opts, err := OptionsFromConfig(config.EmptyBuilderConfig())
	if err != nil {
		panic("invalid default builder options: " + err.Error())
	}
	if err := opts.validate(); err != nil {
		panic("invalid default builder options: " + err.Error())
	}
	return opts
}

// OptionsFromConfig maps a validated configuration onto builder options.
func OptionsFromConfig(cfg *config.BuilderConfig) (Options, error) {
	estType, err := estimator.ParseType(cfg.GetEstimatorType())
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	ransacType, err := ransac.ParseType(cfg.GetRansacType())
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return Options{
		NumThreads:                           cfg.GetNumThreads(),
		OnlyCalibratedViews:                  cfg.GetOnlyCalibratedViews(),
		MinTrackLength:                       cfg.GetMinTrackLength(),
		MaxTrackLength:                       cfg.GetMaxTrackLength(),
		ReconstructLargestConnectedComponent: cfg.GetReconstructLargestConnectedComponent(),
		DefaultFocalLengthRatio:              cfg.GetDefaultFocalLengthRatio(),
		Estimator: estimator.Options{
			Type:                         estType,
			Seed:                         cfg.GetRandomSeed(),
			RansacType:                   ransacType,
			RansacFailureProbability:     cfg.GetRansacFailureProbability(),
			RansacMinIterations:          cfg.GetRansacMinIterations(),
			RansacMaxIterations:          cfg.GetRansacMaxIterations(),
			MaxReprojectionErrorPixels:   cfg.GetMaxReprojectionErrorPixels(),
			MinTriangulationAngleDegrees: cfg.GetMinTriangulationAngleDegrees(),
			MinNumLocalizationInliers:    cfg.GetMinNumLocalizationInliers(),
		},
	}, nil
}

// PipelineOptionsFromConfig maps a configuration onto the options of the
// extract-and-match pipeline feeding the builder.
func PipelineOptionsFromConfig(cfg *config.BuilderConfig, extractor matching.DescriptorExtractor) (matching.PipelineOptions, error) {
	ransacType, err := ransac.ParseType(cfg.GetRansacType())
	if err != nil {
		return matching.PipelineOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return matching.PipelineOptions{
		NumThreads:              cfg.GetNumThreads(),
		OnlyCalibratedViews:     cfg.GetOnlyCalibratedViews(),
		DefaultFocalLengthRatio: cfg.GetDefaultFocalLengthRatio(),
		MinNumInlierMatches:     cfg.GetMinNumInlierMatches(),
		MaxSampsonErrorPixels:   cfg.GetRansacErrorThreshold(),
		Seed:                    cfg.GetRandomSeed(),
		RansacType:              ransacType,
		Extractor:               extractor,
	}, nil
}

func (o Options) validate() error {
	if o.NumThreads <= 0 {
		return fmt.Errorf("%w: num threads must be positive, got %d", ErrInvalidOptions, o.NumThreads)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.MinTrackLength <= 0 {
		o.MinTrackLength = trackbuilder.DefaultMinTrackLength
	}
	if o.MaxTrackLength <= 0 {
		o.MaxTrackLength = trackbuilder.DefaultMaxTrackLength
	}
	if o.DefaultFocalLengthRatio <= 0 {
		o.DefaultFocalLengthRatio = sfm.DefaultFocalLengthRatio
	}
	if o.NewEstimator == nil {
		o.NewEstimator = estimator.New
	}
	return o
}

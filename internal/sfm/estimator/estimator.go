// Package estimator defines the reconstruction-estimator contract used by
// the builder and provides the incremental implementation.
//
// An estimator is constructed fresh for every attempt and consumes a view
// graph and a working reconstruction. It marks the views and tracks it
// solves as estimated and reports them in a Summary; it never removes
// anything.
package estimator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/sfm/internal/monitoring"
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/viewgraph"
	"github.com/banshee-data/sfm/internal/timeutil"
)

// ErrUnknownEstimatorType is returned by New and ParseType for unsupported
// estimator types.
var ErrUnknownEstimatorType = errors.New("unknown reconstruction estimator type")

// ReconstructionEstimator estimates camera poses and 3-D points.
type ReconstructionEstimator interface {
	Estimate(vg *viewgraph.ViewGraph, recon *sfm.Reconstruction) Summary
}

// Summary is the outcome of one estimation attempt.
type Summary struct {
	Success         bool
	EstimatedViews  []sfm.ViewID
	EstimatedTracks []sfm.TrackID

	PoseEstimationTime   time.Duration
	TriangulationTime    time.Duration
	BundleAdjustmentTime time.Duration
	TotalTime            time.Duration

	// MeanReprojectionError is in pixels over all estimated observations.
	MeanReprojectionError float64
	Message               string
}

// Type selects the estimation strategy.
type Type int

const (
	// Incremental grows a reconstruction from a seed pair one view at a time.
	Incremental Type = iota
)

// String returns the configuration name of t.
func (t Type) String() string {
	switch t {
	case Incremental:
		return "incremental"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a configuration name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "incremental":
		return Incremental, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEstimatorType, s)
	}
}

// BundleAdjuster refines the given views and tracks in place. It is an
// external nonlinear solver from the estimator's point of view.
type BundleAdjuster interface {
	Adjust(recon *sfm.Reconstruction, views []sfm.ViewID, tracks []sfm.TrackID) error
}

// NoopBundleAdjuster leaves the reconstruction unchanged.
type NoopBundleAdjuster struct{}

// Adjust implements BundleAdjuster.
func (NoopBundleAdjuster) Adjust(*sfm.Reconstruction, []sfm.ViewID, []sfm.TrackID) error {
	return nil
}

// Default option values.
const (
	DefaultMaxReprojectionErrorPixels   = 4.0
	DefaultMinTriangulationAngleDegrees = 2.0
	DefaultMinNumLocalizationInliers    = 12
	DefaultMinNumSeedTracks             = 20
)

// Options configures an estimator.
type Options struct {
	Type Type

	// Seed drives every robust estimation call. Each call derives its own
	// source from Seed so results do not depend on call order.
	Seed uint64

	RansacType               ransac.Type
	RansacFailureProbability float64
	RansacMinIterations      int
	RansacMaxIterations      int

	MaxReprojectionErrorPixels   float64
	MinTriangulationAngleDegrees float64
	MinNumLocalizationInliers    int
	MinNumSeedTracks             int

	BundleAdjuster BundleAdjuster
	Clock          timeutil.Clock
	Logf           func(format string, v ...interface{})
}

func (o Options) withDefaults() Options {
	if o.MaxReprojectionErrorPixels <= 0 {
		o.MaxReprojectionErrorPixels = DefaultMaxReprojectionErrorPixels
	}
	if o.MinTriangulationAngleDegrees <= 0 {
		o.MinTriangulationAngleDegrees = DefaultMinTriangulationAngleDegrees
	}
	if o.MinNumLocalizationInliers <= 0 {
		o.MinNumLocalizationInliers = DefaultMinNumLocalizationInliers
	}
	if o.MinNumSeedTracks <= 0 {
		o.MinNumSeedTracks = DefaultMinNumSeedTracks
	}
	if o.BundleAdjuster == nil {
		o.BundleAdjuster = NoopBundleAdjuster{}
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Logf == nil {
		o.Logf = monitoring.Named("estimator")
	}
	return o
}

// ransacParams returns parameters for the call identified by (kind, id).
func (o Options) ransacParams(threshold float64, kind, id uint64) ransac.Params {
	return ransac.Params{
		Seed:               ransac.DeriveSeed(ransac.DeriveSeed(o.Seed, kind), id),
		ErrorThreshold:     threshold,
		FailureProbability: o.RansacFailureProbability,
		MinIterations:      o.RansacMinIterations,
		MaxIterations:      o.RansacMaxIterations,
	}
}

// New returns a fresh estimator of the configured type.
func New(opts Options) (ReconstructionEstimator, error) {
	switch opts.Type {
	case Incremental:
		return newIncremental(opts.withDefaults()), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownEstimatorType, opts.Type)
	}
}

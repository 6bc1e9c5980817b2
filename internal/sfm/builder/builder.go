// Package builder orchestrates reconstruction: it registers images, pulls
// verified matches from a feature source into a view graph and track
// builder, then repeatedly runs a reconstruction estimator, harvesting each
// estimated sub-reconstruction and retrying on the remainder.
//
// A Builder is single-threaded; only the feature source may fan out work.
package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/monitoring"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/trackbuilder"
	"github.com/banshee-data/sfm/internal/sfm/viewgraph"
)

var (
	// ErrFeaturesAlreadyMatched is returned when matches are requested after
	// the view graph already holds edges.
	ErrFeaturesAlreadyMatched = errors.New("features already matched")
	// ErrTooFewViews is returned when fewer than two views are connected at
	// build time.
	ErrTooFewViews = errors.New("at least 2 connected views are required to build a reconstruction")
	// ErrUnknownView is returned when a match names an image that was never
	// added.
	ErrUnknownView = errors.New("view not in reconstruction")
	// ErrNoReconstruction is returned when no reconstruction could be
	// estimated.
	ErrNoReconstruction = errors.New("no reconstruction could be estimated")
	// ErrInvalidOptions is returned for out-of-range options.
	ErrInvalidOptions = errors.New("invalid builder options")
	// ErrNoFeatureSource is returned by ExtractAndMatchFeatures on a builder
	// created from an existing reconstruction.
	ErrNoFeatureSource = errors.New("builder has no feature source")
)

// Builder owns the working reconstruction and view graph.
type Builder struct {
	opts   Options
	logf   func(format string, v ...interface{})
	source matching.FeatureSource
	db     matching.Database

	recon  *sfm.Reconstruction
	vg     *viewgraph.ViewGraph
	tracks *trackbuilder.Builder

	numImages int
	matched   bool
}

// New returns a builder that registers images with source and reads the
// resulting priors and matches from db.
func New(opts Options, source matching.FeatureSource, db matching.Database) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if source == nil || db == nil {
		return nil, fmt.Errorf("%w: feature source and database are required", ErrInvalidOptions)
	}
	opts = opts.withDefaults()
	return &Builder{
		opts:   opts,
		logf:   loggerOrDefault(opts.Logf),
		source: source,
		db:     db,
		recon:  sfm.NewReconstruction(),
		vg:     viewgraph.New(),
		tracks: trackbuilder.New(opts.MinTrackLength, opts.MaxTrackLength),
	}, nil
}

// NewFromReconstruction returns a builder over an existing reconstruction
// and view graph. Tracks already in recon are used as is.
func NewFromReconstruction(opts Options, recon *sfm.Reconstruction, vg *viewgraph.ViewGraph) (*Builder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if recon == nil || vg == nil {
		return nil, fmt.Errorf("%w: reconstruction and view graph are required", ErrInvalidOptions)
	}
	opts = opts.withDefaults()
	return &Builder{
		opts:   opts,
		logf:   loggerOrDefault(opts.Logf),
		recon:  recon,
		vg:     vg,
		tracks: trackbuilder.New(opts.MinTrackLength, opts.MaxTrackLength),
	}, nil
}

func loggerOrDefault(f func(string, ...interface{})) func(string, ...interface{}) {
	if f != nil {
		return f
	}
	return monitoring.Named("builder")
}

// Reconstruction returns the working reconstruction.
func (b *Builder) Reconstruction() *sfm.Reconstruction { return b.recon }

// ViewGraph returns the working view graph.
func (b *Builder) ViewGraph() *viewgraph.ViewGraph { return b.vg }

// AddImage registers the image at path. It reports false if the image name
// is already taken or the feature source rejects it.
func (b *Builder) AddImage(path string) bool {
	return b.addImage(path, nil, sfm.InvalidCameraIntrinsicsGroupID)
}

// AddImageInGroup registers an image sharing intrinsics with group.
func (b *Builder) AddImageInGroup(path string, group sfm.CameraIntrinsicsGroupID) bool {
	return b.addImage(path, nil, group)
}

// AddImageWithCameraIntrinsicsPrior registers an image with known
// calibration.
func (b *Builder) AddImageWithCameraIntrinsicsPrior(path string, prior sfm.CameraIntrinsicsPrior) bool {
	return b.addImage(path, &prior, sfm.InvalidCameraIntrinsicsGroupID)
}

// AddImageWithCameraIntrinsicsPriorInGroup registers an image with known
// calibration sharing intrinsics with group.
func (b *Builder) AddImageWithCameraIntrinsicsPriorInGroup(path string, prior sfm.CameraIntrinsicsPrior, group sfm.CameraIntrinsicsGroupID) bool {
	return b.addImage(path, &prior, group)
}

func (b *Builder) addImage(path string, prior *sfm.CameraIntrinsicsPrior, group sfm.CameraIntrinsicsGroupID) bool {
	if path == "" {
		b.logf("could not add an image with an empty path")
		return false
	}
	name := matching.ImageName(path)
	id := b.recon.AddViewInGroup(name, group)
	if id == sfm.InvalidViewID {
		b.logf("could not add %s to the reconstruction", name)
		return false
	}
	b.numImages++
	if prior != nil {
		b.setPrior(b.recon.View(id), *prior)
	}
	if b.source == nil {
		return true
	}

	var err error
	if prior != nil {
		err = b.source.AddImageWithCameraIntrinsicsPrior(path, *prior)
	} else {
		err = b.source.AddImage(path)
	}
	if err != nil {
		b.logf("feature source rejected %s: %v", path, err)
		return false
	}
	return true
}

func (b *Builder) setPrior(v *sfm.View, prior sfm.CameraIntrinsicsPrior) {
	v.Prior = prior
	pose := v.Camera.Pose
	v.Camera = sfm.NewCameraFromPrior(prior, b.opts.DefaultFocalLengthRatio)
	v.Camera.Pose = pose
}

// ExtractAndMatchFeatures runs the feature source, copies the priors it
// recorded onto the views and adds every verified match. It may be called
// once, and not after AddTwoViewMatch.
func (b *Builder) ExtractAndMatchFeatures(ctx context.Context) error {
	if b.source == nil {
		return ErrNoFeatureSource
	}
	if b.matched || b.vg.NumEdges() > 0 {
		return ErrFeaturesAlreadyMatched
	}
	b.matched = true

	if err := b.source.ExtractAndMatchFeatures(ctx); err != nil {
		return fmt.Errorf("extract and match features: %w", err)
	}

	n, err := b.db.NumMatches()
	if err != nil {
		return fmt.Errorf("count matches: %w", err)
	}
	b.logf("%d of %d view pairs were matched and geometrically verified",
		n, b.numImages*(b.numImages-1)/2)

	names, err := b.db.ImageNamesOfCameraIntrinsicsPriors()
	if err != nil {
		return fmt.Errorf("list priors: %w", err)
	}
	for _, name := range names {
		id := b.recon.ViewIDFromName(name)
		if id == sfm.InvalidViewID {
			continue
		}
		prior, err := b.db.GetCameraIntrinsicsPrior(name)
		if err != nil {
			return fmt.Errorf("get prior for %s: %w", name, err)
		}
		b.setPrior(b.recon.View(id), prior)
	}

	pairs, err := b.db.ImageNamesOfMatches()
	if err != nil {
		return fmt.Errorf("list matches: %w", err)
	}
	for _, p := range pairs {
		m, err := b.db.GetImagePairMatch(p.First, p.Second)
		if err != nil {
			return fmt.Errorf("get match %s-%s: %w", p.First, p.Second, err)
		}
		if err := b.AddTwoViewMatch(p.First, p.Second, m); err != nil {
			return err
		}
	}
	return nil
}

// AddTwoViewMatch adds a verified match between two registered images to the
// view graph and track builder. With OnlyCalibratedViews, matches touching
// a view without a focal length prior are ignored.
func (b *Builder) AddTwoViewMatch(image1, image2 string, m matching.ImagePairMatch) error {
	v1 := b.recon.ViewIDFromName(image1)
	v2 := b.recon.ViewIDFromName(image2)
	if v1 == sfm.InvalidViewID {
		return fmt.Errorf("%w: %s", ErrUnknownView, image1)
	}
	if v2 == sfm.InvalidViewID {
		return fmt.Errorf("%w: %s", ErrUnknownView, image2)
	}
	if b.opts.OnlyCalibratedViews &&
		(!b.recon.View(v1).Prior.IsCalibrated() || !b.recon.View(v2).Prior.IsCalibrated()) {
		return nil
	}

	b.vg.AddEdge(v1, v2, m.TwoViewInfo)
	for _, c := range m.Correspondences {
		b.tracks.AddFeatureCorrespondence(v1, c.Feature1, v2, c.Feature2)
	}
	return nil
}

// BuildReconstruction estimates as many disjoint reconstructions as the
// view graph supports. It returns ErrNoReconstruction if none could be
// estimated; reconstructions harvested before a failed attempt are still
// returned without error.
func (b *Builder) BuildReconstruction() ([]*sfm.Reconstruction, error) {
	if b.vg.NumViews() < 2 {
		return nil, fmt.Errorf("%w: view graph has %d views", ErrTooFewViews, b.vg.NumViews())
	}

	if b.recon.NumTracks() == 0 {
		st, err := b.tracks.BuildTracks(b.recon)
		if err != nil {
			return nil, err
		}
		b.logf("built %d tracks from %d observations (%d too short, %d too long, %d inconsistent)",
			st.NumTracks, st.NumObservations, st.NumTooShort, st.NumTooLong, st.NumInconsistent)
	}

	if b.opts.OnlyCalibratedViews {
		b.logf("removing uncalibrated views")
		b.removeUncalibratedViews()
	}

	var out []*sfm.Reconstruction
	for b.recon.NumViews() > 1 {
		b.logf("attempting to reconstruct %d images from %d two view matches",
			b.recon.NumViews(), b.vg.NumEdges())

		est, err := b.opts.NewEstimator(b.opts.Estimator)
		if err != nil {
			return out, fmt.Errorf("create reconstruction estimator: %w", err)
		}
		summary := est.Estimate(b.vg, b.recon)
		if !summary.Success {
			b.logf("reconstruction estimation failed: %s", summary.Message)
			break
		}

		b.logf("reconstruction estimation statistics: "+
			"estimated views %d of %d, estimated tracks %d of %d, "+
			"pose estimation %v, triangulation %v, bundle adjustment %v, total %v: %s",
			len(summary.EstimatedViews), b.recon.NumViews(),
			len(summary.EstimatedTracks), b.recon.NumTracks(),
			summary.PoseEstimationTime, summary.TriangulationTime,
			summary.BundleAdjustmentTime, summary.TotalTime, summary.Message)

		out = append(out, b.recon.EstimatedSubreconstruction())
		b.removeEstimated()

		if b.opts.ReconstructLargestConnectedComponent {
			break
		}
		if b.recon.NumViews() < 3 {
			b.logf("no more reconstructions can be estimated")
			break
		}
	}

	if len(out) == 0 {
		return nil, ErrNoReconstruction
	}
	return out, nil
}

func (b *Builder) removeUncalibratedViews() {
	for _, id := range b.recon.ViewIDs() {
		if !b.recon.View(id).Prior.IsCalibrated() {
			b.recon.RemoveView(id)
			b.vg.RemoveView(id)
		}
	}
}

// removeEstimated drops estimated views and tracks from the working state.
func (b *Builder) removeEstimated() {
	for _, id := range b.recon.ViewIDs() {
		if b.recon.View(id).Estimated {
			b.recon.RemoveView(id)
			b.vg.RemoveView(id)
		}
	}
	for _, id := range b.recon.TrackIDs() {
		if b.recon.Track(id).Estimated {
			b.recon.RemoveTrack(id)
		}
	}
}

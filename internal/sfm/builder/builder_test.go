package builder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/sfm/internal/config"
	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/builder"
	"github.com/banshee-data/sfm/internal/sfm/estimator"
	"github.com/banshee-data/sfm/internal/sfm/viewgraph"
	"github.com/banshee-data/sfm/internal/synthetic"
	"github.com/banshee-data/sfm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silent(string, ...interface{}) {}

func testOptions() builder.Options {
	opts := builder.DefaultOptions()
	opts.Logf = silent
	opts.Estimator.Seed = 42
	opts.Estimator.Logf = silent
	return opts
}

// fakeEstimator marks the first n remaining views and every track they
// share as estimated. It fails once calls exceeds succeed.
type fakeEstimator struct {
	n       int
	succeed int
	calls   *int
}

func (f fakeEstimator) Estimate(vg *viewgraph.ViewGraph, recon *sfm.Reconstruction) estimator.Summary {
	*f.calls++
	if *f.calls > f.succeed {
		return estimator.Summary{Message: "no seed"}
	}
	var s estimator.Summary
	ids := recon.ViewIDs()
	for _, id := range ids[:min(f.n, len(ids))] {
		recon.View(id).Estimated = true
		s.EstimatedViews = append(s.EstimatedViews, id)
	}
	for _, tid := range recon.TrackIDs() {
		t := recon.Track(tid)
		estimated := 0
		for _, vid := range t.ViewIDs() {
			if v := recon.View(vid); v != nil && v.Estimated {
				estimated++
			}
		}
		if estimated >= 2 {
			t.Estimated = true
			s.EstimatedTracks = append(s.EstimatedTracks, tid)
		}
	}
	s.Success = true
	return s
}

// chain returns n views linked in a path with one track per edge.
func chain(t *testing.T, n int) (*sfm.Reconstruction, *viewgraph.ViewGraph) {
	t.Helper()
	recon := sfm.NewReconstruction()
	vg := viewgraph.New()
	var prev sfm.ViewID
	for i := 0; i < n; i++ {
		id := recon.AddView(synthetic.ViewName(i))
		require.NotEqual(t, sfm.InvalidViewID, id)
		if i > 0 {
			require.True(t, vg.AddEdge(prev, id, sfm.TwoViewInfo{NumVerifiedMatches: 50}))
			recon.AddTrack([]sfm.Observation{
				{View: prev, Feature: sfm.Feature{X: 1, Y: 2}},
				{View: id, Feature: sfm.Feature{X: 3, Y: 4}},
			})
		}
		prev = id
	}
	return recon, vg
}

func withFake(opts builder.Options, f fakeEstimator) builder.Options {
	opts.NewEstimator = func(estimator.Options) (estimator.ReconstructionEstimator, error) {
		return f, nil
	}
	return opts
}

func TestBuildReconstructionSyntheticScene(t *testing.T) {
	t.Parallel()

	scene, db := testutil.NewPopulatedDatabase(t, synthetic.Options{Seed: 3, NumViews: 6})

	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)
	for _, name := range scene.Names {
		require.True(t, b.AddImage("/images/"+name))
	}
	require.NoError(t, b.ExtractAndMatchFeatures(context.Background()))
	assert.Equal(t, len(scene.Matches), b.ViewGraph().NumEdges())

	// Priors recorded by the source are applied to the views.
	v0 := b.Reconstruction().View(b.Reconstruction().ViewIDFromName(scene.Names[0]))
	assert.True(t, v0.Prior.IsCalibrated())
	assert.InDelta(t, 800.0, v0.Camera.FocalLength, 1e-9)

	recons, err := b.BuildReconstruction()
	require.NoError(t, err)
	require.Len(t, recons, 1)
	assert.Equal(t, 6, recons[0].NumViews())
	assert.Greater(t, recons[0].NumTracks(), 0)
	for _, id := range recons[0].ViewIDs() {
		assert.True(t, recons[0].View(id).Estimated)
	}
	for _, id := range recons[0].TrackIDs() {
		assert.True(t, recons[0].Track(id).Estimated)
	}

	// Harvested views are removed from the working state.
	assert.Equal(t, 0, b.Reconstruction().NumViews())
	assert.Equal(t, 0, b.ViewGraph().NumViews())
}

func TestBuildReconstructionOnlyCalibratedViews(t *testing.T) {
	t.Parallel()

	scene, db := testutil.NewPopulatedDatabase(t, synthetic.Options{Seed: 4, NumViews: 6, UncalibratedViews: []int{5}})

	opts := testOptions()
	opts.OnlyCalibratedViews = true
	b, err := builder.New(opts, matching.NewPrecomputed(db), db)
	require.NoError(t, err)
	for _, name := range scene.Names {
		require.True(t, b.AddImage(name))
	}
	require.NoError(t, b.ExtractAndMatchFeatures(context.Background()))

	uncalibrated := b.Reconstruction().ViewIDFromName(scene.Names[5])
	require.NotEqual(t, sfm.InvalidViewID, uncalibrated)
	assert.False(t, b.ViewGraph().HasView(uncalibrated))

	recons, err := b.BuildReconstruction()
	require.NoError(t, err)
	require.NotEmpty(t, recons)
	for _, r := range recons {
		assert.Equal(t, sfm.InvalidViewID, r.ViewIDFromName(scene.Names[5]))
	}
	assert.Equal(t, sfm.InvalidViewID, b.Reconstruction().ViewIDFromName(scene.Names[5]))
}

func TestBuildReconstructionHarvestsBeforeFailure(t *testing.T) {
	t.Parallel()

	recon, vg := chain(t, 6)
	calls := 0
	b, err := builder.NewFromReconstruction(withFake(testOptions(), fakeEstimator{n: 3, succeed: 1, calls: &calls}), recon, vg)
	require.NoError(t, err)

	recons, err := b.BuildReconstruction()
	require.NoError(t, err)
	require.Len(t, recons, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 3, recons[0].NumViews())
	assert.Equal(t, 2, recons[0].NumTracks())
	assert.Equal(t, 3, b.Reconstruction().NumViews())
	assert.Equal(t, 3, b.Reconstruction().NumTracks())
}

func TestBuildReconstructionRepeatsOnRemainder(t *testing.T) {
	t.Parallel()

	recon, vg := chain(t, 6)
	calls := 0
	b, err := builder.NewFromReconstruction(withFake(testOptions(), fakeEstimator{n: 2, succeed: 10, calls: &calls}), recon, vg)
	require.NoError(t, err)

	recons, err := b.BuildReconstruction()
	require.NoError(t, err)
	// 6 → 4 → 2 remaining views; fewer than 3 stops the loop.
	assert.Len(t, recons, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, b.Reconstruction().NumViews())
}

func TestBuildReconstructionLargestComponentOnly(t *testing.T) {
	t.Parallel()

	recon, vg := chain(t, 6)
	calls := 0
	opts := withFake(testOptions(), fakeEstimator{n: 2, succeed: 10, calls: &calls})
	opts.ReconstructLargestConnectedComponent = true
	b, err := builder.NewFromReconstruction(opts, recon, vg)
	require.NoError(t, err)

	recons, err := b.BuildReconstruction()
	require.NoError(t, err)
	assert.Len(t, recons, 1)
	assert.Equal(t, 1, calls)
}

func TestBuildReconstructionFailure(t *testing.T) {
	t.Parallel()

	recon, vg := chain(t, 4)
	calls := 0
	b, err := builder.NewFromReconstruction(withFake(testOptions(), fakeEstimator{calls: &calls}), recon, vg)
	require.NoError(t, err)

	recons, err := b.BuildReconstruction()
	assert.ErrorIs(t, err, builder.ErrNoReconstruction)
	assert.Empty(t, recons)
	assert.Equal(t, 4, b.Reconstruction().NumViews())
}

func TestBuildReconstructionEstimatorFactoryError(t *testing.T) {
	t.Parallel()

	recon, vg := chain(t, 3)
	opts := testOptions()
	opts.NewEstimator = func(estimator.Options) (estimator.ReconstructionEstimator, error) {
		return nil, errors.New("boom")
	}
	b, err := builder.NewFromReconstruction(opts, recon, vg)
	require.NoError(t, err)

	_, err = b.BuildReconstruction()
	assert.ErrorContains(t, err, "boom")
}

func TestBuildReconstructionTooFewViews(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)
	require.True(t, b.AddImage("a.jpg"))

	_, err = b.BuildReconstruction()
	assert.ErrorIs(t, err, builder.ErrTooFewViews)
}

func TestAddImageRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)

	assert.True(t, b.AddImage("/day1/img.jpg"))
	assert.False(t, b.AddImage("/day2/img.jpg"))
	assert.True(t, b.AddImageInGroup("/day1/other.jpg", 0))
	assert.False(t, b.AddImage(""))
	assert.Equal(t, 2, b.Reconstruction().NumViews())
	assert.Equal(t, b.Reconstruction().CameraIntrinsicsGroupID(b.Reconstruction().ViewIDFromName("img.jpg")),
		b.Reconstruction().CameraIntrinsicsGroupID(b.Reconstruction().ViewIDFromName("other.jpg")))
}

func TestAddImageWithPrior(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)

	prior := sfm.CameraIntrinsicsPrior{
		FocalLength: sfm.Set(500.0),
		ImageWidth:  640,
		ImageHeight: 480,
	}
	require.True(t, b.AddImageWithCameraIntrinsicsPrior("a.jpg", prior))
	require.True(t, b.AddImageWithCameraIntrinsicsPriorInGroup("b.jpg", prior, 7))
	require.True(t, b.AddImage("c.jpg"))

	r := b.Reconstruction()
	a := r.View(r.ViewIDFromName("a.jpg"))
	assert.InDelta(t, 500.0, a.Camera.FocalLength, 1e-9)
	assert.Equal(t, sfm.CameraIntrinsicsGroupID(7), r.CameraIntrinsicsGroupID(r.ViewIDFromName("b.jpg")))

	stored, err := db.GetCameraIntrinsicsPrior("b.jpg")
	require.NoError(t, err)
	assert.Equal(t, prior, stored)
}

func TestExtractAndMatchFeaturesOnce(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)
	require.True(t, b.AddImage("a.jpg"))

	require.NoError(t, b.ExtractAndMatchFeatures(context.Background()))
	assert.ErrorIs(t, b.ExtractAndMatchFeatures(context.Background()), builder.ErrFeaturesAlreadyMatched)
}

func TestExtractAfterManualMatches(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)
	require.True(t, b.AddImage("a.jpg"))
	require.True(t, b.AddImage("b.jpg"))

	require.NoError(t, b.AddTwoViewMatch("a.jpg", "b.jpg", matching.ImagePairMatch{
		TwoViewInfo: sfm.TwoViewInfo{NumVerifiedMatches: 1},
		Correspondences: []matching.FeatureCorrespondence{
			{Feature1: sfm.Feature{X: 1, Y: 1}, Feature2: sfm.Feature{X: 2, Y: 2}},
		},
	}))
	assert.Equal(t, 1, b.ViewGraph().NumEdges())
	assert.ErrorIs(t, b.ExtractAndMatchFeatures(context.Background()), builder.ErrFeaturesAlreadyMatched)
}

func TestExtractAndMatchFeaturesCancelled(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	b, err := builder.New(testOptions(), matching.NewPrecomputed(db), db)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.ExtractAndMatchFeatures(ctx), context.Canceled)
}

func TestAddTwoViewMatch(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	opts := testOptions()
	opts.OnlyCalibratedViews = true
	b, err := builder.New(opts, matching.NewPrecomputed(db), db)
	require.NoError(t, err)

	calibrated := sfm.CameraIntrinsicsPrior{FocalLength: sfm.Set(700.0), ImageWidth: 640, ImageHeight: 480}
	require.True(t, b.AddImageWithCameraIntrinsicsPrior("a.jpg", calibrated))
	require.True(t, b.AddImageWithCameraIntrinsicsPrior("b.jpg", calibrated))
	require.True(t, b.AddImage("c.jpg"))

	assert.ErrorIs(t, b.AddTwoViewMatch("a.jpg", "missing.jpg", matching.ImagePairMatch{}), builder.ErrUnknownView)
	assert.ErrorIs(t, b.AddTwoViewMatch("missing.jpg", "a.jpg", matching.ImagePairMatch{}), builder.ErrUnknownView)

	// Uncalibrated views are silently skipped.
	require.NoError(t, b.AddTwoViewMatch("a.jpg", "c.jpg", matching.ImagePairMatch{}))
	assert.Equal(t, 0, b.ViewGraph().NumEdges())

	require.NoError(t, b.AddTwoViewMatch("b.jpg", "a.jpg", matching.ImagePairMatch{}))
	r := b.Reconstruction()
	assert.True(t, b.ViewGraph().HasEdge(r.ViewIDFromName("a.jpg"), r.ViewIDFromName("b.jpg")))
}

func TestOnlyCalibratedViewsKeepsCorrespondencesOutOfTracks(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	calls := 0
	opts := withFake(testOptions(), fakeEstimator{calls: &calls})
	opts.OnlyCalibratedViews = true
	b, err := builder.New(opts, matching.NewPrecomputed(db), db)
	require.NoError(t, err)

	calibrated := sfm.CameraIntrinsicsPrior{FocalLength: sfm.Set(700.0), ImageWidth: 640, ImageHeight: 480}
	require.True(t, b.AddImageWithCameraIntrinsicsPrior("a.jpg", calibrated))
	require.True(t, b.AddImageWithCameraIntrinsicsPrior("b.jpg", calibrated))
	require.True(t, b.AddImage("c.jpg"))
	uncalibrated := b.Reconstruction().ViewIDFromName("c.jpg")

	corr := func(n int, offset float64) []matching.FeatureCorrespondence {
		out := make([]matching.FeatureCorrespondence, n)
		for i := range out {
			x := offset + float64(i)
			out[i] = matching.FeatureCorrespondence{
				Feature1: sfm.Feature{X: x, Y: x},
				Feature2: sfm.Feature{X: x + 1, Y: x + 1},
			}
		}
		return out
	}
	require.NoError(t, b.AddTwoViewMatch("a.jpg", "c.jpg", matching.ImagePairMatch{
		TwoViewInfo:     sfm.TwoViewInfo{NumVerifiedMatches: 2},
		Correspondences: corr(2, 100),
	}))
	require.NoError(t, b.AddTwoViewMatch("a.jpg", "b.jpg", matching.ImagePairMatch{
		TwoViewInfo:     sfm.TwoViewInfo{NumVerifiedMatches: 3},
		Correspondences: corr(3, 0),
	}))
	assert.Equal(t, 1, b.ViewGraph().NumEdges())
	assert.False(t, b.ViewGraph().HasView(uncalibrated))

	_, err = b.BuildReconstruction()
	assert.ErrorIs(t, err, builder.ErrNoReconstruction)
	assert.Equal(t, 1, calls)

	r := b.Reconstruction()
	assert.Equal(t, 3, r.NumTracks())
	for _, tid := range r.TrackIDs() {
		assert.NotContains(t, r.Track(tid).ViewIDs(), uncalibrated)
	}
	assert.Nil(t, r.View(uncalibrated))
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	var opts builder.Options
	require.NotPanics(t, func() { opts = builder.DefaultOptions() })
	assert.Equal(t, 1, opts.NumThreads)
	assert.Equal(t, estimator.Incremental, opts.Estimator.Type)
	assert.Equal(t, ransac.RANSAC, opts.Estimator.RansacType)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	db := matching.NewMemoryDatabase()
	opts := testOptions()
	opts.NumThreads = 0
	_, err := builder.New(opts, matching.NewPrecomputed(db), db)
	assert.ErrorIs(t, err, builder.ErrInvalidOptions)

	_, err = builder.New(testOptions(), nil, db)
	assert.ErrorIs(t, err, builder.ErrInvalidOptions)

	_, err = builder.NewFromReconstruction(testOptions(), nil, viewgraph.New())
	assert.ErrorIs(t, err, builder.ErrInvalidOptions)

	recon, vg := chain(t, 2)
	b, err := builder.NewFromReconstruction(testOptions(), recon, vg)
	require.NoError(t, err)
	assert.ErrorIs(t, b.ExtractAndMatchFeatures(context.Background()), builder.ErrNoFeatureSource)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.EmptyBuilderConfig()
	threads, seed, kind := 3, uint64(9), "mlesac"
	cfg.NumThreads = &threads
	cfg.RandomSeed = &seed
	cfg.RansacType = &kind

	opts, err := builder.OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, opts.NumThreads)
	assert.Equal(t, uint64(9), opts.Estimator.Seed)
	assert.Equal(t, ransac.MLESAC, opts.Estimator.RansacType)
	assert.Equal(t, estimator.Incremental, opts.Estimator.Type)
	assert.Equal(t, 2, opts.MinTrackLength)

	popts, err := builder.PipelineOptionsFromConfig(cfg, synthetic.Extractor{})
	require.NoError(t, err)
	assert.Equal(t, 3, popts.NumThreads)
	assert.Equal(t, 30, popts.MinNumInlierMatches)
	assert.Equal(t, ransac.MLESAC, popts.RansacType)

	bad := "global"
	cfg.EstimatorType = &bad
	_, err = builder.OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, builder.ErrInvalidOptions)
}

package estimator_test

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/estimator"
	"github.com/banshee-data/sfm/internal/sfm/viewgraph"
	"github.com/banshee-data/sfm/internal/synthetic"
	"github.com/banshee-data/sfm/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// sceneProblem converts a synthetic scene into the inputs of an estimator:
// one view per camera with its prior applied, an edge per match and one
// track per point seen at least twice.
func sceneProblem(t *testing.T, scene *synthetic.Scene) (*viewgraph.ViewGraph, *sfm.Reconstruction, []sfm.ViewID) {
	t.Helper()
	recon := sfm.NewReconstruction()
	ids := make([]sfm.ViewID, len(scene.Names))
	byName := make(map[string]sfm.ViewID)
	for i, name := range scene.Names {
		id := recon.AddView(name)
		require.NotEqual(t, sfm.InvalidViewID, id)
		v := recon.View(id)
		v.Prior = scene.Priors[name]
		v.Camera = sfm.NewCameraFromPrior(v.Prior, 0)
		ids[i] = id
		byName[name] = id
	}

	vg := viewgraph.New()
	for _, m := range scene.Matches {
		require.True(t, vg.AddEdge(byName[m.Image1], byName[m.Image2], m.TwoViewInfo))
	}

	for j := range scene.Points {
		var obs []sfm.Observation
		for i := range scene.Names {
			if f, ok := scene.Features[i][j]; ok {
				obs = append(obs, sfm.Observation{View: ids[i], Feature: f})
			}
		}
		if len(obs) >= 2 {
			require.NotEqual(t, sfm.InvalidTrackID, recon.AddTrack(obs))
		}
	}
	return vg, recon, ids
}

func quietOptions() estimator.Options {
	return estimator.Options{Seed: 42, Logf: func(string, ...interface{}) {}}
}

func assertMatchesScene(t *testing.T, scene *synthetic.Scene, recon *sfm.Reconstruction, ids []sfm.ViewID) {
	t.Helper()
	truth := func(i int) geometry.Pose { return scene.Cameras[i].Pose }
	est := func(i int) geometry.Pose { return recon.View(ids[i]).Camera.Pose }

	baseTruth := r3.Norm(r3.Sub(truth(1).Position, truth(0).Position))
	baseEst := r3.Norm(r3.Sub(est(1).Position, est(0).Position))
	require.Greater(t, baseEst, 0.0)

	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			relTruth := truth(j).Rotation.Mul(truth(i).Rotation.Transpose())
			relEst := est(j).Rotation.Mul(est(i).Rotation.Transpose())
			assert.Less(t, geometry.AngleBetween(relTruth, relEst), 1e-5, "views %d-%d", i, j)

			dTruth := r3.Norm(r3.Sub(truth(j).Position, truth(i).Position)) / baseTruth
			dEst := r3.Norm(r3.Sub(est(j).Position, est(i).Position)) / baseEst
			assert.InDelta(t, dTruth, dEst, 1e-4, "views %d-%d", i, j)
		}
	}
}

func TestIncrementalEstimatesExactScene(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 1, NumViews: 6, NumPoints: 120})
	vg, recon, ids := sceneProblem(t, scene)

	est, err := estimator.New(quietOptions())
	require.NoError(t, err)
	summary := est.Estimate(vg, recon)

	require.True(t, summary.Success, summary.Message)
	assert.ElementsMatch(t, ids, summary.EstimatedViews)
	assert.Len(t, summary.EstimatedTracks, recon.NumTracks())
	assert.Less(t, summary.MeanReprojectionError, 1e-3)
	assert.Equal(t, summary.EstimatedViews, recon.EstimatedViewIDs())
	assertMatchesScene(t, scene, recon, ids)
}

func TestIncrementalReestimatesMissingEdgeGeometry(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 2, NumViews: 4, NumPoints: 100})
	for i := range scene.Matches {
		scene.Matches[i].TwoViewInfo.Rotation2 = geometry.Mat3{}
		scene.Matches[i].TwoViewInfo.Position2 = r3.Vec{}
	}
	vg, recon, ids := sceneProblem(t, scene)

	est, err := estimator.New(quietOptions())
	require.NoError(t, err)
	summary := est.Estimate(vg, recon)

	require.True(t, summary.Success, summary.Message)
	assert.Len(t, summary.EstimatedViews, len(ids))
	assertMatchesScene(t, scene, recon, ids)
}

func TestIncrementalTooFewTracks(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 3, NumViews: 3, NumPoints: 10})
	vg, recon, _ := sceneProblem(t, scene)

	est, err := estimator.New(quietOptions())
	require.NoError(t, err)
	summary := est.Estimate(vg, recon)

	assert.False(t, summary.Success)
	assert.NotEmpty(t, summary.Message)
	assert.Empty(t, summary.EstimatedViews)
	assert.Empty(t, recon.EstimatedViewIDs(), "a rejected seed must be rolled back")
	assert.Empty(t, recon.EstimatedTrackIDs())
}

func TestIncrementalDeterministic(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 4, NumViews: 5, NumPoints: 80, NoisePixels: 0.5})
	run := func() *sfm.Reconstruction {
		vg, recon, _ := sceneProblem(t, scene)
		est, err := estimator.New(quietOptions())
		require.NoError(t, err)
		require.True(t, est.Estimate(vg, recon).Success)
		return recon
	}
	a, b := run(), run()
	assert.Equal(t, a.Record(), b.Record())
}

func TestIncrementalTimings(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 5, NumViews: 4, NumPoints: 60})
	vg, recon, _ := sceneProblem(t, scene)

	opts := quietOptions()
	opts.Clock = timeutil.NewSteppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)
	est, err := estimator.New(opts)
	require.NoError(t, err)
	summary := est.Estimate(vg, recon)

	require.True(t, summary.Success, summary.Message)
	assert.Positive(t, summary.PoseEstimationTime)
	assert.Positive(t, summary.TriangulationTime)
	assert.Positive(t, summary.BundleAdjustmentTime)
	assert.GreaterOrEqual(t, summary.TotalTime,
		summary.PoseEstimationTime+summary.TriangulationTime+summary.BundleAdjustmentTime)
}

type recordingAdjuster struct {
	calls [][]sfm.ViewID
	err   error
}

func (r *recordingAdjuster) Adjust(_ *sfm.Reconstruction, views []sfm.ViewID, _ []sfm.TrackID) error {
	r.calls = append(r.calls, views)
	return r.err
}

func TestIncrementalBundleAdjustment(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 6, NumViews: 4, NumPoints: 60})

	t.Run("called after seeding and at the end", func(t *testing.T) {
		vg, recon, ids := sceneProblem(t, scene)
		ba := &recordingAdjuster{}
		opts := quietOptions()
		opts.BundleAdjuster = ba
		est, err := estimator.New(opts)
		require.NoError(t, err)
		require.True(t, est.Estimate(vg, recon).Success)

		require.Len(t, ba.calls, 2)
		assert.Len(t, ba.calls[0], 2)
		assert.ElementsMatch(t, ids, ba.calls[1])
	})

	t.Run("failure fails the attempt", func(t *testing.T) {
		vg, recon, _ := sceneProblem(t, scene)
		opts := quietOptions()
		opts.BundleAdjuster = &recordingAdjuster{err: errors.New("diverged")}
		est, err := estimator.New(opts)
		require.NoError(t, err)
		summary := est.Estimate(vg, recon)

		assert.False(t, summary.Success)
		assert.Contains(t, summary.Message, "diverged")
	})
}

func TestResumesFromEstimatedViews(t *testing.T) {
	t.Parallel()

	scene := synthetic.NewScene(synthetic.Options{Seed: 7, NumViews: 4, NumPoints: 60})
	vg, recon, ids := sceneProblem(t, scene)

	est, err := estimator.New(quietOptions())
	require.NoError(t, err)
	require.True(t, est.Estimate(vg, recon).Success)

	// A second pass over an already solved reconstruction keeps every view.
	est, err = estimator.New(quietOptions())
	require.NoError(t, err)
	summary := est.Estimate(vg, recon)
	require.True(t, summary.Success)
	assert.ElementsMatch(t, ids, summary.EstimatedViews)
}

func TestNewAndParseType(t *testing.T) {
	t.Parallel()

	typ, err := estimator.ParseType(" Incremental ")
	require.NoError(t, err)
	assert.Equal(t, estimator.Incremental, typ)
	assert.Equal(t, "incremental", typ.String())

	_, err = estimator.ParseType("global")
	assert.ErrorIs(t, err, estimator.ErrUnknownEstimatorType)

	_, err = estimator.New(estimator.Options{Type: estimator.Type(7)})
	assert.ErrorIs(t, err, estimator.ErrUnknownEstimatorType)
}

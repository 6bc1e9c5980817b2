package estimator

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/monitoring"
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/sfm/pose"
	"github.com/banshee-data/sfm/internal/sfm/viewgraph"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Seed streams for the robust estimation calls.
const (
	streamSeedPair uint64 = iota + 1
	streamLocalize
	streamKnownOrientation
)

const rotationTolerance = 1e-6

// incremental grows a reconstruction from the best-supported view pair,
// localizing one view at a time and triangulating the tracks it makes
// observable.
type incremental struct {
	opts     Options
	minAngle float64

	vg      *viewgraph.ViewGraph
	recon   *sfm.Reconstruction
	index   map[sfm.ViewID][]sfm.TrackID
	failed  map[sfm.ViewID]bool
	start   time.Time
	summary Summary
}

func newIncremental(opts Options) *incremental {
	return &incremental{
		opts:     opts,
		minAngle: opts.MinTriangulationAngleDegrees * math.Pi / 180,
	}
}

func (e *incremental) Estimate(vg *viewgraph.ViewGraph, recon *sfm.Reconstruction) Summary {
	e.start = e.opts.Clock.Now()
	e.vg, e.recon = vg, recon
	e.index = recon.ViewTrackIndex()
	e.failed = make(map[sfm.ViewID]bool)
	e.summary = Summary{}

	if len(recon.EstimatedViewIDs()) < 2 && !e.seed() {
		e.summary.Message = "no view pair triangulated enough tracks to seed a reconstruction"
		return e.finish(false)
	}
	if err := e.bundleAdjust(); err != nil {
		e.summary.Message = fmt.Sprintf("bundle adjustment after seeding failed: %v", err)
		return e.finish(false)
	}

	for {
		v, ok := e.nextView()
		if !ok {
			break
		}
		if !e.localize(v) {
			e.failed[v] = true
			continue
		}
		e.triangulateView(v)
	}

	if err := e.bundleAdjust(); err != nil {
		e.summary.Message = fmt.Sprintf("final bundle adjustment failed: %v", err)
		return e.finish(false)
	}
	return e.finish(true)
}

func (e *incremental) finish(ok bool) Summary {
	views := e.recon.EstimatedViewIDs()
	tracks := e.recon.EstimatedTrackIDs()
	e.summary.Success = ok && len(views) >= 2
	e.summary.TotalTime = e.opts.Clock.Since(e.start)
	if e.summary.Success {
		e.summary.EstimatedViews = views
		e.summary.EstimatedTracks = tracks
		e.summary.MeanReprojectionError = e.meanReprojectionError(tracks)
		e.summary.Message = fmt.Sprintf("estimated %d of %d views and %d of %d tracks",
			len(views), e.recon.NumViews(), len(tracks), e.recon.NumTracks())
	}
	return e.summary
}

// candidateView reports whether v can still be added.
func (e *incremental) candidateView(v sfm.ViewID) bool {
	view := e.recon.View(v)
	return view != nil && !view.Estimated && !e.failed[v] && e.vg.HasView(v)
}

// seed estimates the first two views from the edge with the most verified
// matches that yields enough well-conditioned tracks.
func (e *incremental) seed() bool {
	type edge struct {
		pair sfm.ViewIDPair
		info sfm.TwoViewInfo
	}
	var edges []edge
	for _, p := range e.vg.EdgePairs() {
		if !e.candidateView(p.First) || !e.candidateView(p.Second) {
			continue
		}
		info, _ := e.vg.Edge(p.First, p.Second)
		edges = append(edges, edge{pair: p, info: info})
	}
	slices.SortStableFunc(edges, func(a, b edge) int {
		return cmp.Compare(b.info.NumVerifiedMatches, a.info.NumVerifiedMatches)
	})
	for _, ed := range edges {
		if e.trySeed(ed.pair.First, ed.pair.Second, ed.info) {
			e.opts.Logf("seeded reconstruction from views %d and %d (%d verified matches)",
				ed.pair.First, ed.pair.Second, ed.info.NumVerifiedMatches)
			return true
		}
	}
	return false
}

func (e *incremental) trySeed(a, b sfm.ViewID, info sfm.TwoViewInfo) bool {
	va, vb := e.recon.View(a), e.recon.View(b)
	var shared []sfm.TrackID
	for _, tid := range e.index[a] {
		t := e.recon.Track(tid)
		if _, ok := t.Feature(b); ok && !t.Estimated {
			shared = append(shared, tid)
		}
	}
	if len(shared) < e.opts.MinNumSeedTracks {
		return false
	}

	start := e.opts.Clock.Now()
	rot, pos, ok := e.relativePose(a, b, info, shared)
	e.summary.PoseEstimationTime += e.opts.Clock.Since(start)
	if !ok {
		return false
	}

	oldA, oldB := va.Camera.Pose, vb.Camera.Pose
	va.Camera.Pose = geometry.IdentityPose()
	vb.Camera.Pose = geometry.Pose{Rotation: rot, Position: pos}
	va.Estimated, vb.Estimated = true, true

	start = e.opts.Clock.Now()
	var added []sfm.TrackID
	for _, tid := range shared {
		if e.triangulateTrack(tid) {
			added = append(added, tid)
		}
	}
	e.summary.TriangulationTime += e.opts.Clock.Since(start)

	rmse := e.rmse(b, vb.Camera, added)
	quality := geometry.ValidatePose(&vb.Camera.Pose, rmse)
	if len(added) >= e.opts.MinNumSeedTracks && geometry.IsPoseUsableForSeeding(quality) {
		return true
	}

	monitoring.Debugf("[estimator] seed pair %d-%d rejected: %d tracks, pose %s", a, b, len(added), quality.Quality)
	for _, tid := range added {
		e.recon.Track(tid).Estimated = false
	}
	va.Camera.Pose, vb.Camera.Pose = oldA, oldB
	va.Estimated, vb.Estimated = false, false
	return false
}

// relativePose returns the pose of b with a at the origin. The edge geometry
// is used when it holds a valid rotation, otherwise it is re-estimated from
// the shared tracks.
func (e *incremental) relativePose(a, b sfm.ViewID, info sfm.TwoViewInfo, shared []sfm.TrackID) (geometry.Mat3, r3.Vec, bool) {
	if info.Rotation2.IsRotation(rotationTolerance) && r3.Norm(info.Position2) > 0 {
		return info.Rotation2, r3.Unit(info.Position2), true
	}
	ca, cb := e.recon.View(a).Camera, e.recon.View(b).Camera
	corr := make([]pose.Correspondence2D2D, 0, len(shared))
	for _, tid := range shared {
		t := e.recon.Track(tid)
		fa, _ := t.Feature(a)
		fb, _ := t.Feature(b)
		corr = append(corr, pose.Correspondence2D2D{
			Feature1: ca.PixelToNormalized(fa),
			Feature2: cb.PixelToNormalized(fb),
		})
	}
	focal := (ca.FocalLength + cb.FocalLength) / 2
	thr := pose.PixelThresholdToNormalized(e.opts.MaxReprojectionErrorPixels, focal)
	params := e.opts.ransacParams(thr, streamSeedPair, uint64(a)<<32|uint64(b))
	rel, summary := pose.EstimateRelativePose(params, e.opts.RansacType, corr)
	if !summary.Success {
		return geometry.Mat3{}, r3.Vec{}, false
	}
	return rel.Rotation, rel.Position(), true
}

// nextView picks the unestimated view observing the most estimated tracks.
func (e *incremental) nextView() (sfm.ViewID, bool) {
	best, bestCount := sfm.InvalidViewID, 0
	for _, v := range e.recon.ViewIDs() {
		if !e.candidateView(v) {
			continue
		}
		n := 0
		for _, tid := range e.index[v] {
			if t := e.recon.Track(tid); t != nil && t.Estimated {
				n++
			}
		}
		if n > bestCount {
			best, bestCount = v, n
		}
	}
	return best, bestCount >= e.opts.MinNumLocalizationInliers
}

func (e *incremental) localize(v sfm.ViewID) bool {
	start := e.opts.Clock.Now()
	defer func() { e.summary.PoseEstimationTime += e.opts.Clock.Since(start) }()

	view := e.recon.View(v)
	cam := view.Camera
	var corr []pose.Correspondence2D3D
	var tracks []sfm.TrackID
	for _, tid := range e.index[v] {
		t := e.recon.Track(tid)
		if t == nil || !t.Estimated {
			continue
		}
		f, _ := t.Feature(v)
		corr = append(corr, pose.Correspondence2D3D{Feature: cam.PixelToNormalized(f), World: t.Point})
		tracks = append(tracks, tid)
	}

	thr := pose.PixelThresholdToNormalized(e.opts.MaxReprojectionErrorPixels, cam.FocalLength)
	est, summary := pose.EstimateCalibratedAbsolutePose(
		e.opts.ransacParams(thr, streamLocalize, uint64(v)), e.opts.RansacType, corr)
	ok := summary.Success && len(summary.Inliers) >= e.opts.MinNumLocalizationInliers
	if !ok {
		est, summary, ok = e.localizeFromNeighbor(v, corr, thr)
	}
	if !ok {
		monitoring.Debugf("[estimator] could not localize view %d from %d correspondences", v, len(corr))
		return false
	}

	inlierTracks := make([]sfm.TrackID, len(summary.Inliers))
	for i, idx := range summary.Inliers {
		inlierTracks[i] = tracks[idx]
	}
	cam.Pose = est
	quality := geometry.ValidatePose(&est, e.rmse(v, cam, inlierTracks))
	if !geometry.IsPoseUsableForLocalization(quality) {
		monitoring.Debugf("[estimator] view %d pose rejected: %s", v, quality.Quality)
		return false
	}
	view.Camera.Pose = est
	view.Estimated = true
	return true
}

// localizeFromNeighbor fixes the orientation of v from an estimated
// neighbour's relative rotation and solves for position only.
func (e *incremental) localizeFromNeighbor(v sfm.ViewID, corr []pose.Correspondence2D3D, thr float64) (geometry.Pose, ransac.Summary, bool) {
	for _, n := range e.vg.Neighbors(v) {
		nv := e.recon.View(n)
		if nv == nil || !nv.Estimated {
			continue
		}
		info, _ := e.vg.OrientedEdge(n, v)
		if !info.Rotation2.IsRotation(rotationTolerance) {
			continue
		}
		rot := info.Rotation2.Mul(nv.Camera.Pose.Rotation)
		params := e.opts.ransacParams(thr, streamKnownOrientation, uint64(v)<<32|uint64(n))
		pos, summary := pose.EstimateAbsolutePoseWithKnownOrientation(params, e.opts.RansacType, rot, corr)
		if summary.Success && len(summary.Inliers) >= e.opts.MinNumLocalizationInliers {
			return geometry.Pose{Rotation: rot, Position: pos}, summary, true
		}
	}
	return geometry.Pose{}, ransac.Summary{}, false
}

func (e *incremental) triangulateView(v sfm.ViewID) {
	start := e.opts.Clock.Now()
	for _, tid := range e.index[v] {
		if t := e.recon.Track(tid); t != nil && !t.Estimated {
			e.triangulateTrack(tid)
		}
	}
	e.summary.TriangulationTime += e.opts.Clock.Since(start)
}

// triangulateTrack triangulates tid from every estimated view observing it
// and marks it estimated if the point is well conditioned.
func (e *incremental) triangulateTrack(tid sfm.TrackID) bool {
	t := e.recon.Track(tid)
	var obs []geometry.Observation
	var cams []sfm.Camera
	var feats []sfm.Feature
	for _, vid := range t.ViewIDs() {
		view := e.recon.View(vid)
		if view == nil || !view.Estimated {
			continue
		}
		f, _ := t.Feature(vid)
		obs = append(obs, geometry.Observation{Pose: view.Camera.Pose, Point: view.Camera.PixelToNormalized(f)})
		cams = append(cams, view.Camera)
		feats = append(feats, f)
	}
	if len(obs) < 2 {
		return false
	}
	x, ok := geometry.TriangulateDLT(obs)
	if !ok {
		return false
	}

	maxAngle := 0.0
	for i := range cams {
		if cams[i].ReprojectionError(x, feats[i]) > e.opts.MaxReprojectionErrorPixels {
			return false
		}
		for j := i + 1; j < len(cams); j++ {
			maxAngle = math.Max(maxAngle, geometry.TriangulationAngle(cams[i].Pose.Position, cams[j].Pose.Position, x))
		}
	}
	if maxAngle < e.minAngle {
		return false
	}
	t.Point = x
	t.Estimated = true
	return true
}

// rmse is the pixel reprojection RMSE of the given tracks in view v under
// cam, or -1 when there are none.
func (e *incremental) rmse(v sfm.ViewID, cam sfm.Camera, tracks []sfm.TrackID) float64 {
	if len(tracks) == 0 {
		return -1
	}
	sq := make([]float64, 0, len(tracks))
	for _, tid := range tracks {
		t := e.recon.Track(tid)
		f, _ := t.Feature(v)
		r := cam.ReprojectionError(t.Point, f)
		sq = append(sq, r*r)
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

func (e *incremental) meanReprojectionError(tracks []sfm.TrackID) float64 {
	var errs []float64
	for _, tid := range tracks {
		t := e.recon.Track(tid)
		for _, vid := range t.ViewIDs() {
			view := e.recon.View(vid)
			if view == nil || !view.Estimated {
				continue
			}
			f, _ := t.Feature(vid)
			errs = append(errs, view.Camera.ReprojectionError(t.Point, f))
		}
	}
	if len(errs) == 0 {
		return 0
	}
	return stat.Mean(errs, nil)
}

func (e *incremental) bundleAdjust() error {
	start := e.opts.Clock.Now()
	err := e.opts.BundleAdjuster.Adjust(e.recon, e.recon.EstimatedViewIDs(), e.recon.EstimatedTrackIDs())
	e.summary.BundleAdjustmentTime += e.opts.Clock.Since(start)
	return err
}

// Package synthetic generates deterministic reconstruction scenes: cameras
// on an arc looking at a point cloud, with exact (or noisy) projections,
// priors and pairwise matches. Scenes drive tests and the CLI's
// -synthetic mode.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/sfm/internal/geometry"
	"github.com/banshee-data/sfm/internal/matching"
	"github.com/banshee-data/sfm/internal/sfm"
	"gonum.org/v1/gonum/spatial/r3"
)

// Options configures NewScene. Zero fields take the defaults below.
type Options struct {
	NumViews    int
	NumPoints   int
	FocalLength float64
	ImageWidth  int
	ImageHeight int

	// Radius is the camera distance from the scene centre.
	Radius float64
	// StepDegrees is the angular spacing of cameras along the arc.
	StepDegrees float64

	NoisePixels float64
	// OutlierRatio replaces that fraction of each match's second features
	// with random pixels.
	OutlierRatio float64

	// UncalibratedViews lists view indices whose prior has no focal length.
	UncalibratedViews []int

	Seed uint64
}

func (o Options) withDefaults() Options {
	if o.NumViews <= 0 {
		o.NumViews = 6
	}
	if o.NumPoints <= 0 {
		o.NumPoints = 200
	}
	if o.FocalLength <= 0 {
		o.FocalLength = 800
	}
	if o.ImageWidth <= 0 {
		o.ImageWidth = 640
	}
	if o.ImageHeight <= 0 {
		o.ImageHeight = 480
	}
	if o.Radius <= 0 {
		o.Radius = 10
	}
	if o.StepDegrees <= 0 {
		o.StepDegrees = 8
	}
	return o
}

const descriptorSize = 16

// Scene is a generated ground-truth scene.
type Scene struct {
	Names   []string
	Priors  map[string]sfm.CameraIntrinsicsPrior
	Cameras []sfm.Camera
	Points  []r3.Vec
	// Features[i][j] is the observation of point j in view i, if visible.
	Features []map[int]sfm.Feature
	Matches  []matching.ImagePairMatch

	descriptors [][]float32
}

// ViewName returns the image name used for view i.
func ViewName(i int) string {
	return fmt.Sprintf("view_%03d.jpg", i)
}

// NewScene generates a scene.
func NewScene(opts Options) *Scene {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5eed))
	s := &Scene{Priors: make(map[string]sfm.CameraIntrinsicsPrior)}

	for j := 0; j < opts.NumPoints; j++ {
		s.Points = append(s.Points, r3.Vec{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*4 - 2,
			Z: rng.Float64()*4 - 2,
		})
		d := make([]float32, descriptorSize)
		for k := range d {
			d[k] = rng.Float32()
		}
		s.descriptors = append(s.descriptors, d)
	}

	uncalibrated := make(map[int]bool, len(opts.UncalibratedViews))
	for _, i := range opts.UncalibratedViews {
		uncalibrated[i] = true
	}

	step := opts.StepDegrees * math.Pi / 180
	start := -step * float64(opts.NumViews-1) / 2
	for i := 0; i < opts.NumViews; i++ {
		theta := start + step*float64(i)
		centre := r3.Vec{X: opts.Radius * math.Sin(theta), Z: -opts.Radius * math.Cos(theta)}
		cam := sfm.Camera{
			Pose:           LookAt(centre, r3.Vec{}),
			FocalLength:    opts.FocalLength,
			PrincipalPoint: [2]float64{float64(opts.ImageWidth) / 2, float64(opts.ImageHeight) / 2},
			AspectRatio:    1,
			ImageWidth:     opts.ImageWidth,
			ImageHeight:    opts.ImageHeight,
		}
		name := ViewName(i)
		prior := sfm.CameraIntrinsicsPrior{
			ImageWidth:     opts.ImageWidth,
			ImageHeight:    opts.ImageHeight,
			CameraModel:    sfm.DefaultCameraModel,
			PrincipalPoint: sfm.Set(cam.PrincipalPoint),
		}
		if !uncalibrated[i] {
			prior.FocalLength = sfm.Set(opts.FocalLength)
		}

		feats := make(map[int]sfm.Feature)
		for j, x := range s.Points {
			f, depth := cam.Project(x)
			if depth <= 0 || f.X < 0 || f.Y < 0 || f.X >= float64(opts.ImageWidth) || f.Y >= float64(opts.ImageHeight) {
				continue
			}
			if opts.NoisePixels > 0 {
				f.X += rng.NormFloat64() * opts.NoisePixels
				f.Y += rng.NormFloat64() * opts.NoisePixels
			}
			feats[j] = f
		}

		s.Names = append(s.Names, name)
		s.Priors[name] = prior
		s.Cameras = append(s.Cameras, cam)
		s.Features = append(s.Features, feats)
	}

	for a := 0; a < opts.NumViews; a++ {
		for b := a + 1; b < opts.NumViews; b++ {
			if m, ok := s.match(a, b, opts, rng); ok {
				s.Matches = append(s.Matches, m)
			}
		}
	}
	return s
}

func (s *Scene) match(a, b int, opts Options, rng *rand.Rand) (matching.ImagePairMatch, bool) {
	var corr []matching.FeatureCorrespondence
	for j := range s.Points {
		fa, okA := s.Features[a][j]
		fb, okB := s.Features[b][j]
		if okA && okB {
			corr = append(corr, matching.FeatureCorrespondence{Feature1: fa, Feature2: fb})
		}
	}
	if len(corr) == 0 {
		return matching.ImagePairMatch{}, false
	}
	numOutliers := int(opts.OutlierRatio * float64(len(corr)))
	for k := len(corr) - numOutliers; k < len(corr); k++ {
		corr[k].Feature2 = sfm.Feature{
			X: rng.Float64() * float64(opts.ImageWidth),
			Y: rng.Float64() * float64(opts.ImageHeight),
		}
	}
	return matching.ImagePairMatch{
		Image1:          s.Names[a],
		Image2:          s.Names[b],
		TwoViewInfo:     s.TwoViewInfo(a, b),
		Correspondences: corr,
	}, true
}

// TwoViewInfo returns the exact relative geometry from view a to view b.
func (s *Scene) TwoViewInfo(a, b int) sfm.TwoViewInfo {
	ca, cb := s.Cameras[a], s.Cameras[b]
	return sfm.TwoViewInfo{
		FocalLength1:       ca.FocalLength,
		FocalLength2:       cb.FocalLength,
		Rotation2:          cb.Pose.Rotation.Mul(ca.Pose.Rotation.Transpose()),
		Position2:          r3.Unit(ca.Pose.Rotation.MulVec(r3.Sub(cb.Pose.Position, ca.Pose.Position))),
		NumVerifiedMatches: s.numShared(a, b),
	}
}

func (s *Scene) numShared(a, b int) int {
	n := 0
	for j := range s.Features[a] {
		if _, ok := s.Features[b][j]; ok {
			n++
		}
	}
	return n
}

// LookAt returns the pose of a camera at centre whose optical axis points at
// target, with image y pointing along world +Y.
func LookAt(centre, target r3.Vec) geometry.Pose {
	z := r3.Unit(r3.Sub(target, centre))
	x := r3.Unit(r3.Cross(r3.Vec{Y: 1}, z))
	y := r3.Cross(z, x)
	return geometry.Pose{
		Rotation: geometry.Mat3{x.X, x.Y, x.Z, y.X, y.Y, y.Z, z.X, z.Y, z.Z},
		Position: centre,
	}
}

// KeypointsAndDescriptors returns view i's features with descriptors that
// identify the underlying point, so exhaustive matching recovers the true
// correspondences.
func (s *Scene) KeypointsAndDescriptors(i int) matching.KeypointsAndDescriptors {
	kd := matching.KeypointsAndDescriptors{ImageName: s.Names[i]}
	for j := range s.Points {
		f, ok := s.Features[i][j]
		if !ok {
			continue
		}
		kd.Keypoints = append(kd.Keypoints, matching.Keypoint{X: f.X, Y: f.Y})
		kd.Descriptors = append(kd.Descriptors, s.descriptors[j])
	}
	return kd
}

// Populate writes priors, features and matches to db.
func (s *Scene) Populate(db matching.Database) error {
	for i, name := range s.Names {
		if err := db.PutCameraIntrinsicsPrior(name, s.Priors[name]); err != nil {
			return fmt.Errorf("put prior %s: %w", name, err)
		}
		if err := db.PutFeatures(name, s.KeypointsAndDescriptors(i)); err != nil {
			return fmt.Errorf("put features %s: %w", name, err)
		}
	}
	for _, m := range s.Matches {
		if err := db.PutImagePairMatch(m.Image1, m.Image2, m); err != nil {
			return fmt.Errorf("put match %s-%s: %w", m.Image1, m.Image2, err)
		}
	}
	return nil
}

// Extractor serves the scene's features as a matching.DescriptorExtractor.
type Extractor struct {
	Scene *Scene
}

// Extract implements matching.DescriptorExtractor.
func (e Extractor) Extract(ctx context.Context, path string) (matching.KeypointsAndDescriptors, error) {
	if err := ctx.Err(); err != nil {
		return matching.KeypointsAndDescriptors{}, err
	}
	name := matching.ImageName(path)
	for i, n := range e.Scene.Names {
		if n == name {
			return e.Scene.KeypointsAndDescriptors(i), nil
		}
	}
	return matching.KeypointsAndDescriptors{}, fmt.Errorf("image %s: %w", name, matching.ErrNotFound)
}

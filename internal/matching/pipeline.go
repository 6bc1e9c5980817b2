package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/sfm/internal/monitoring"
	"github.com/banshee-data/sfm/internal/ransac"
	"github.com/banshee-data/sfm/internal/sfm"
	"golang.org/x/sync/errgroup"
)

// Defaults for PipelineOptions.
const (
	DefaultMinNumInlierMatches     = 30
	DefaultMaxSampsonErrorPixels   = 4.0
	DefaultGeometricVerifyMaxIters = 2000
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// NumThreads bounds the number of concurrent extraction and matching
	// workers.
	NumThreads int

	// OnlyCalibratedViews skips images whose prior has no focal length.
	// Otherwise a focal length is guessed from the image size.
	OnlyCalibratedViews     bool
	DefaultFocalLengthRatio float64

	MinNumInlierMatches   int
	MaxSampsonErrorPixels float64

	// Seed drives geometric verification. Each image pair gets its own
	// derived source so results do not depend on worker scheduling.
	Seed       uint64
	RansacType ransac.Type

	Extractor DescriptorExtractor
	Matcher   FeatureMatcher
	Logf      func(format string, v ...interface{})
}

// Pipeline extracts features from registered images and matches image pairs
// concurrently, writing priors, features and verified matches to a
// Database.
type Pipeline struct {
	opts PipelineOptions
	db   Database

	paths []string
	pairs []ImageNamePair
}

// NewPipeline returns a pipeline writing to db.
func NewPipeline(opts PipelineOptions, db Database) (*Pipeline, error) {
	if db == nil {
		return nil, errors.New("matching pipeline: nil database")
	}
	if opts.Extractor == nil {
		return nil, errors.New("matching pipeline: nil descriptor extractor")
	}
	if opts.NumThreads <= 0 {
		return nil, fmt.Errorf("matching pipeline: num threads must be positive, got %d", opts.NumThreads)
	}
	if opts.Matcher == nil {
		opts.Matcher = BruteForceMatcher{}
	}
	if opts.MinNumInlierMatches <= 0 {
		opts.MinNumInlierMatches = DefaultMinNumInlierMatches
	}
	if opts.MaxSampsonErrorPixels <= 0 {
		opts.MaxSampsonErrorPixels = DefaultMaxSampsonErrorPixels
	}
	if opts.DefaultFocalLengthRatio <= 0 {
		opts.DefaultFocalLengthRatio = sfm.DefaultFocalLengthRatio
	}
	if opts.Logf == nil {
		opts.Logf = monitoring.Named("matching")
	}
	return &Pipeline{opts: opts, db: db}, nil
}

// AddImage implements FeatureSource.
func (p *Pipeline) AddImage(path string) error {
	p.paths = append(p.paths, path)
	return nil
}

// AddImageWithCameraIntrinsicsPrior implements FeatureSource.
func (p *Pipeline) AddImageWithCameraIntrinsicsPrior(path string, prior sfm.CameraIntrinsicsPrior) error {
	if err := p.db.PutCameraIntrinsicsPrior(ImageName(path), prior); err != nil {
		return fmt.Errorf("put prior for %s: %w", path, err)
	}
	return p.AddImage(path)
}

// SetPairsToMatch restricts matching to the given pairs of image paths or
// names. By default every pair is matched.
func (p *Pipeline) SetPairsToMatch(pairs []ImageNamePair) {
	p.pairs = make([]ImageNamePair, len(pairs))
	for i, pr := range pairs {
		p.pairs[i] = ImageNamePair{First: ImageName(pr.First), Second: ImageName(pr.Second)}
	}
}

// ExtractAndMatchFeatures implements FeatureSource.
func (p *Pipeline) ExtractAndMatchFeatures(ctx context.Context) error {
	ready, err := p.extract(ctx)
	if err != nil {
		return err
	}
	return p.match(ctx, ready)
}

func (p *Pipeline) extract(ctx context.Context) (map[string]bool, error) {
	var mu sync.Mutex
	ready := make(map[string]bool, len(p.paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(p.opts.NumThreads, len(p.paths))))
	for _, path := range p.paths {
		g.Go(func() error {
			ok, err := p.processImage(ctx, path)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				ready[ImageName(path)] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ready, nil
}

// processImage prepares the prior and features of one image. It reports
// false when the image is skipped.
func (p *Pipeline) processImage(ctx context.Context, path string) (bool, error) {
	name := ImageName(path)
	prior, err := p.db.GetCameraIntrinsicsPrior(name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("get prior for %s: %w", name, err)
	}

	if !prior.FocalLength.IsSet && !p.opts.OnlyCalibratedViews {
		if dim := max(prior.ImageWidth, prior.ImageHeight); dim > 0 {
			prior.FocalLength = sfm.Set(p.opts.DefaultFocalLengthRatio * float64(dim))
		}
	}
	if p.opts.OnlyCalibratedViews && !prior.IsCalibrated() {
		p.opts.Logf("image %s has no focal length prior; skipping it", name)
		return false, nil
	}
	if err := p.db.PutCameraIntrinsicsPrior(name, prior); err != nil {
		return false, fmt.Errorf("put prior for %s: %w", name, err)
	}

	_, err = p.db.GetFeatures(name)
	switch {
	case err == nil:
		monitoring.Debugf("[matching] loading features for %s from the database", name)
		return true, nil
	case !errors.Is(err, ErrNotFound):
		return false, fmt.Errorf("get features for %s: %w", name, err)
	}

	features, err := p.opts.Extractor.Extract(ctx, path)
	if err != nil {
		p.opts.Logf("could not extract features for %s: %v", path, err)
		return false, nil
	}
	if len(features.Keypoints) == 0 {
		return false, nil
	}
	features.ImageName = name
	if err := p.db.PutFeatures(name, features); err != nil {
		return false, fmt.Errorf("put features for %s: %w", name, err)
	}
	monitoring.Debugf("[matching] extracted %d features from %s", len(features.Keypoints), name)
	return true, nil
}

// pairsToMatch returns the configured pairs limited to ready images, or all
// pairs of ready images.
func (p *Pipeline) pairsToMatch(ready map[string]bool) []ImageNamePair {
	var out []ImageNamePair
	if p.pairs != nil {
		for _, pr := range p.pairs {
			if ready[pr.First] && ready[pr.Second] && pr.First != pr.Second {
				out = append(out, pr)
			}
		}
		return out
	}
	names := make([]string, 0, len(ready))
	for n := range ready {
		names = append(names, n)
	}
	pairs := make([]ImageNamePair, 0, len(names)*(len(names)-1)/2)
	for i := range names {
		for j := range names {
			if names[i] < names[j] {
				pairs = append(pairs, ImageNamePair{First: names[i], Second: names[j]})
			}
		}
	}
	SortPairs(pairs)
	return pairs
}

func (p *Pipeline) match(ctx context.Context, ready map[string]bool) error {
	pairs := p.pairsToMatch(ready)
	var mu sync.Mutex
	verified := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.NumThreads)
	for i, pr := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ok, err := p.matchPair(uint64(i), pr)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				verified++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.opts.Logf("%d of %d image pairs were matched and geometrically verified", verified, len(pairs))
	return nil
}

func (p *Pipeline) matchPair(index uint64, pr ImageNamePair) (bool, error) {
	f1, err := p.db.GetFeatures(pr.First)
	if err != nil {
		return false, fmt.Errorf("get features for %s: %w", pr.First, err)
	}
	f2, err := p.db.GetFeatures(pr.Second)
	if err != nil {
		return false, fmt.Errorf("get features for %s: %w", pr.Second, err)
	}
	putative := p.opts.Matcher.Match(f1, f2)
	if len(putative) < p.opts.MinNumInlierMatches {
		return false, nil
	}

	corr := make([]FeatureCorrespondence, 0, len(putative))
	for _, m := range putative {
		k1, k2 := f1.Keypoints[m.Index1], f2.Keypoints[m.Index2]
		corr = append(corr, FeatureCorrespondence{
			Feature1: sfm.Feature{X: k1.X, Y: k1.Y},
			Feature2: sfm.Feature{X: k2.X, Y: k2.Y},
		})
	}

	prior1, err := p.db.GetCameraIntrinsicsPrior(pr.First)
	if err != nil {
		return false, fmt.Errorf("get prior for %s: %w", pr.First, err)
	}
	prior2, err := p.db.GetCameraIntrinsicsPrior(pr.Second)
	if err != nil {
		return false, fmt.Errorf("get prior for %s: %w", pr.Second, err)
	}
	seed := ransac.DeriveSeed(p.opts.Seed, index)
	match, ok := VerifyTwoViewMatch(prior1, prior2, corr, VerifyOptions{
		MinNumInlierMatches:   p.opts.MinNumInlierMatches,
		MaxSampsonErrorPixels: p.opts.MaxSampsonErrorPixels,
		FocalLengthRatio:      p.opts.DefaultFocalLengthRatio,
		RansacType:            p.opts.RansacType,
		Seed:                  seed,
	})
	if !ok {
		monitoring.Debugf("[matching] pair %s-%s failed geometric verification", pr.First, pr.Second)
		return false, nil
	}
	if err := p.db.PutImagePairMatch(pr.First, pr.Second, match); err != nil {
		return false, fmt.Errorf("put match %s-%s: %w", pr.First, pr.Second, err)
	}
	return true, nil
}

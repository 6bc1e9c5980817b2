package matching

import (
	"context"
	"fmt"

	"github.com/banshee-data/sfm/internal/monitoring"
	"github.com/banshee-data/sfm/internal/sfm"
)

// Precomputed is a FeatureSource for databases whose priors and matches
// were produced ahead of time (by an earlier run, an import or a synthetic
// scene). Extraction is a no-op beyond recording supplied priors.
type Precomputed struct {
	db    Database
	names []string
	logf  func(format string, v ...interface{})
}

// NewPrecomputed returns a source backed by db.
func NewPrecomputed(db Database) *Precomputed {
	return &Precomputed{db: db, logf: monitoring.Named("matching")}
}

// AddImage implements FeatureSource.
func (p *Precomputed) AddImage(path string) error {
	p.names = append(p.names, ImageName(path))
	return nil
}

// AddImageWithCameraIntrinsicsPrior implements FeatureSource.
func (p *Precomputed) AddImageWithCameraIntrinsicsPrior(path string, prior sfm.CameraIntrinsicsPrior) error {
	if err := p.db.PutCameraIntrinsicsPrior(ImageName(path), prior); err != nil {
		return fmt.Errorf("put prior for %s: %w", path, err)
	}
	return p.AddImage(path)
}

// ExtractAndMatchFeatures implements FeatureSource.
func (p *Precomputed) ExtractAndMatchFeatures(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.db.NumMatches()
	if err != nil {
		return fmt.Errorf("count matches: %w", err)
	}
	p.logf("using %d precomputed image pair matches for %d registered images", n, len(p.names))
	return nil
}

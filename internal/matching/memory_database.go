package matching

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/banshee-data/sfm/internal/sfm"
)

// MemoryDatabase is a Database held in process memory.
type MemoryDatabase struct {
	mu       sync.RWMutex
	priors   map[string]sfm.CameraIntrinsicsPrior
	features map[string]KeypointsAndDescriptors
	matches  map[ImageNamePair]ImagePairMatch
}

// NewMemoryDatabase returns an empty database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		priors:   make(map[string]sfm.CameraIntrinsicsPrior),
		features: make(map[string]KeypointsAndDescriptors),
		matches:  make(map[ImageNamePair]ImagePairMatch),
	}
}

// GetCameraIntrinsicsPrior implements Database.
func (d *MemoryDatabase) GetCameraIntrinsicsPrior(name string) (sfm.CameraIntrinsicsPrior, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.priors[name]
	if !ok {
		return sfm.CameraIntrinsicsPrior{}, fmt.Errorf("camera intrinsics prior %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// PutCameraIntrinsicsPrior implements Database.
func (d *MemoryDatabase) PutCameraIntrinsicsPrior(name string, prior sfm.CameraIntrinsicsPrior) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.priors[name] = prior
	return nil
}

// ImageNamesOfCameraIntrinsicsPriors implements Database.
func (d *MemoryDatabase) ImageNamesOfCameraIntrinsicsPriors() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.priors)), nil
}

// GetFeatures implements Database.
func (d *MemoryDatabase) GetFeatures(name string) (KeypointsAndDescriptors, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.features[name]
	if !ok {
		return KeypointsAndDescriptors{}, fmt.Errorf("features %q: %w", name, ErrNotFound)
	}
	return f, nil
}

// PutFeatures implements Database.
func (d *MemoryDatabase) PutFeatures(name string, features KeypointsAndDescriptors) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.features[name] = features
	return nil
}

// ImageNamesOfFeatures implements Database.
func (d *MemoryDatabase) ImageNamesOfFeatures() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.features)), nil
}

// GetImagePairMatch implements Database. Lookups are by ordered pair.
func (d *MemoryDatabase) GetImagePairMatch(name1, name2 string) (ImagePairMatch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.matches[ImageNamePair{First: name1, Second: name2}]
	if !ok {
		return ImagePairMatch{}, fmt.Errorf("match %q-%q: %w", name1, name2, ErrNotFound)
	}
	return m, nil
}

// PutImagePairMatch implements Database.
func (d *MemoryDatabase) PutImagePairMatch(name1, name2 string, match ImagePairMatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	match.Image1, match.Image2 = name1, name2
	d.matches[ImageNamePair{First: name1, Second: name2}] = match
	return nil
}

// ImageNamesOfMatches implements Database. Pairs are sorted.
func (d *MemoryDatabase) ImageNamesOfMatches() ([]ImageNamePair, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pairs := slices.Collect(maps.Keys(d.matches))
	SortPairs(pairs)
	return pairs, nil
}

// NumMatches implements Database.
func (d *MemoryDatabase) NumMatches() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.matches), nil
}

// RemoveAllMatches implements Database.
func (d *MemoryDatabase) RemoveAllMatches() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.matches)
	return nil
}

// SortPairs orders pairs lexicographically.
func SortPairs(pairs []ImageNamePair) {
	slices.SortFunc(pairs, func(a, b ImageNamePair) int {
		if c := strings.Compare(a.First, b.First); c != 0 {
			return c
		}
		return strings.Compare(a.Second, b.Second)
	})
}

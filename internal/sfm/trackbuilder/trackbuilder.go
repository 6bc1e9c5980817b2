// Package trackbuilder merges pairwise feature correspondences into
// multi-view tracks with union-find.
package trackbuilder

import (
	"errors"
	"fmt"

	"github.com/banshee-data/sfm/internal/disjointset"
	"github.com/banshee-data/sfm/internal/sfm"
)

// ErrUnknownView is returned when a correspondence references a view that
// is not in the target reconstruction.
var ErrUnknownView = errors.New("track references unknown view")

// Defaults for the track length bounds.
const (
	DefaultMinTrackLength = 2
	DefaultMaxTrackLength = 50
)

type observationKey struct {
	view    sfm.ViewID
	feature sfm.Feature
}

// Stats summarises a BuildTracks call.
type Stats struct {
	NumObservations int
	NumComponents   int
	NumTracks       int
	NumTooShort     int
	NumTooLong      int
	// NumInconsistent counts components holding two different features of
	// the same view.
	NumInconsistent int
}

// Builder accumulates correspondences. It is not safe for concurrent use.
type Builder struct {
	minLen, maxLen int

	ids  map[observationKey]int
	keys []observationKey
	ds   *disjointset.Set
}

// New returns a builder materialising components of size in
// [minLen, maxLen]. minLen is raised to 2 and maxLen to minLen if needed.
func New(minLen, maxLen int) *Builder {
	minLen = max(minLen, 2)
	maxLen = max(maxLen, minLen)
	return &Builder{
		minLen: minLen,
		maxLen: maxLen,
		ids:    make(map[observationKey]int),
		ds:     &disjointset.Set{},
	}
}

func (b *Builder) id(k observationKey) int {
	if id, ok := b.ids[k]; ok {
		return id
	}
	id := b.ds.Add()
	b.ids[k] = id
	b.keys = append(b.keys, k)
	return id
}

// AddFeatureCorrespondence records that f1 in v1 and f2 in v2 observe the
// same 3-D point. Correspondences within a single view are ignored.
func (b *Builder) AddFeatureCorrespondence(v1 sfm.ViewID, f1 sfm.Feature, v2 sfm.ViewID, f2 sfm.Feature) {
	if v1 == v2 {
		return
	}
	b.ds.Union(b.id(observationKey{v1, f1}), b.id(observationKey{v2, f2}))
}

// NumObservations returns the number of distinct (view, feature) pairs seen.
func (b *Builder) NumObservations() int { return len(b.keys) }

// BuildTracks adds one track per admissible component to recon, in order of
// each component's first observed correspondence.
func (b *Builder) BuildTracks(recon *sfm.Reconstruction) (Stats, error) {
	st := Stats{NumObservations: len(b.keys)}
	for _, comp := range b.ds.Components() {
		st.NumComponents++
		switch {
		case len(comp) < b.minLen:
			st.NumTooShort++
			continue
		case len(comp) > b.maxLen:
			st.NumTooLong++
			continue
		}

		obs := make([]sfm.Observation, 0, len(comp))
		seen := make(map[sfm.ViewID]struct{}, len(comp))
		consistent := true
		for _, id := range comp {
			k := b.keys[id]
			if _, dup := seen[k.view]; dup {
				consistent = false
				break
			}
			seen[k.view] = struct{}{}
			if recon.View(k.view) == nil {
				return st, fmt.Errorf("build tracks: view %d: %w", k.view, ErrUnknownView)
			}
			obs = append(obs, sfm.Observation{View: k.view, Feature: k.feature})
		}
		if !consistent {
			st.NumInconsistent++
			continue
		}
		if recon.AddTrack(obs) == sfm.InvalidTrackID {
			return st, fmt.Errorf("build tracks: add track of %d observations failed", len(obs))
		}
		st.NumTracks++
	}
	return st, nil
}

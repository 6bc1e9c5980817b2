package sfm

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// View is one image's calibration and pose context.
type View struct {
	name string

	// Estimated is set once the view's camera pose has been solved.
	Estimated bool
	Prior     CameraIntrinsicsPrior
	Camera    Camera
}

// Name returns the image name the view was registered under.
func (v *View) Name() string { return v.name }

func (v *View) clone() *View {
	c := *v
	return &c
}

// Track is the set of observations of one putative 3-D point.
type Track struct {
	observations map[ViewID]Feature

	// Estimated is set once Point has been triangulated.
	Estimated bool
	Point     r3.Vec
}

// NumObservations returns the number of views observing the track.
func (t *Track) NumObservations() int { return len(t.observations) }

// ViewIDs returns the observing views in ascending id order.
func (t *Track) ViewIDs() []ViewID {
	ids := make([]ViewID, 0, len(t.observations))
	for id := range t.observations {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Feature returns the observation of the track in view id.
func (t *Track) Feature(id ViewID) (Feature, bool) {
	f, ok := t.observations[id]
	return f, ok
}

func (t *Track) clone() *Track {
	c := *t
	c.observations = make(map[ViewID]Feature, len(t.observations))
	for k, v := range t.observations {
		c.observations[k] = v
	}
	return &c
}

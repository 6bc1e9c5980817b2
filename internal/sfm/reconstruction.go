package sfm

import (
	"maps"
	"slices"
)

// Observation pairs a view with the feature at which a track is seen there.
type Observation struct {
	View    ViewID
	Feature Feature
}

// Reconstruction owns a set of views and tracks. It is not safe for
// concurrent use.
type Reconstruction struct {
	views       map[ViewID]*View
	tracks      map[TrackID]*Track
	viewByName  map[string]ViewID
	viewGroup   map[ViewID]CameraIntrinsicsGroupID
	nextView    ViewID
	nextTrack   TrackID
	nextGroupID CameraIntrinsicsGroupID
}

// NewReconstruction returns an empty reconstruction.
func NewReconstruction() *Reconstruction {
	return &Reconstruction{
		views:      make(map[ViewID]*View),
		tracks:     make(map[TrackID]*Track),
		viewByName: make(map[string]ViewID),
		viewGroup:  make(map[ViewID]CameraIntrinsicsGroupID),
	}
}

// AddView registers a new view named name in its own intrinsics group.
// It returns InvalidViewID if the name is empty or already taken.
func (r *Reconstruction) AddView(name string) ViewID {
	return r.AddViewInGroup(name, InvalidCameraIntrinsicsGroupID)
}

// AddViewInGroup registers a new view sharing intrinsics with group. Passing
// InvalidCameraIntrinsicsGroupID allocates a fresh group.
func (r *Reconstruction) AddViewInGroup(name string, group CameraIntrinsicsGroupID) ViewID {
	if name == "" {
		return InvalidViewID
	}
	if _, dup := r.viewByName[name]; dup {
		return InvalidViewID
	}
	id := r.nextView
	r.nextView++
	r.views[id] = &View{name: name, Camera: NewCameraFromPrior(CameraIntrinsicsPrior{}, 0)}
	r.viewByName[name] = id
	if group == InvalidCameraIntrinsicsGroupID {
		group = r.nextGroupID
	}
	if group >= r.nextGroupID {
		r.nextGroupID = group + 1
	}
	r.viewGroup[id] = group
	return id
}

// RemoveView deletes a view. Tracks observing it are left untouched; the
// caller is responsible for removing or repairing them.
func (r *Reconstruction) RemoveView(id ViewID) bool {
	v, ok := r.views[id]
	if !ok {
		return false
	}
	delete(r.views, id)
	delete(r.viewByName, v.name)
	delete(r.viewGroup, id)
	return true
}

// View returns the view with the given id, or nil.
func (r *Reconstruction) View(id ViewID) *View { return r.views[id] }

// ViewIDFromName returns the id of the named view or InvalidViewID.
func (r *Reconstruction) ViewIDFromName(name string) ViewID {
	if id, ok := r.viewByName[name]; ok {
		return id
	}
	return InvalidViewID
}

// NumViews returns the number of views.
func (r *Reconstruction) NumViews() int { return len(r.views) }

// ViewIDs returns all view ids in ascending order.
func (r *Reconstruction) ViewIDs() []ViewID {
	return slices.Sorted(maps.Keys(r.views))
}

// CameraIntrinsicsGroupID returns the group of a view.
func (r *Reconstruction) CameraIntrinsicsGroupID(id ViewID) CameraIntrinsicsGroupID {
	if g, ok := r.viewGroup[id]; ok {
		return g
	}
	return InvalidCameraIntrinsicsGroupID
}

// ViewsInCameraIntrinsicGroup returns the views sharing group, ascending.
func (r *Reconstruction) ViewsInCameraIntrinsicGroup(group CameraIntrinsicsGroupID) []ViewID {
	var ids []ViewID
	for id, g := range r.viewGroup {
		if g == group {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// NumCameraIntrinsicGroups returns the number of distinct groups in use.
func (r *Reconstruction) NumCameraIntrinsicGroups() int {
	seen := make(map[CameraIntrinsicsGroupID]struct{})
	for _, g := range r.viewGroup {
		seen[g] = struct{}{}
	}
	return len(seen)
}

// AddTrack creates a track from observations. Every observation must
// reference an existing view, at least two distinct views are required, and
// a view may appear only once. It returns InvalidTrackID otherwise.
func (r *Reconstruction) AddTrack(observations []Observation) TrackID {
	if len(observations) < 2 {
		return InvalidTrackID
	}
	obs := make(map[ViewID]Feature, len(observations))
	for _, o := range observations {
		if _, ok := r.views[o.View]; !ok {
			return InvalidTrackID
		}
		if _, dup := obs[o.View]; dup {
			return InvalidTrackID
		}
		obs[o.View] = o.Feature
	}
	id := r.nextTrack
	r.nextTrack++
	r.tracks[id] = &Track{observations: obs}
	return id
}

// AddObservation adds the view's observation of an existing track. It fails
// if either id is unknown or the track already has an observation in view.
func (r *Reconstruction) AddObservation(view ViewID, track TrackID, f Feature) bool {
	t, ok := r.tracks[track]
	if !ok {
		return false
	}
	if _, ok := r.views[view]; !ok {
		return false
	}
	if _, dup := t.observations[view]; dup {
		return false
	}
	t.observations[view] = f
	return true
}

// RemoveTrack deletes a track.
func (r *Reconstruction) RemoveTrack(id TrackID) bool {
	if _, ok := r.tracks[id]; !ok {
		return false
	}
	delete(r.tracks, id)
	return true
}

// Track returns the track with the given id, or nil.
func (r *Reconstruction) Track(id TrackID) *Track { return r.tracks[id] }

// NumTracks returns the number of tracks.
func (r *Reconstruction) NumTracks() int { return len(r.tracks) }

// TrackIDs returns all track ids in ascending order.
func (r *Reconstruction) TrackIDs() []TrackID {
	return slices.Sorted(maps.Keys(r.tracks))
}

// TracksInView returns the tracks observed in view, ascending. The index is
// rebuilt from the track arena on each call.
func (r *Reconstruction) TracksInView(view ViewID) []TrackID {
	var ids []TrackID
	for id, t := range r.tracks {
		if _, ok := t.observations[view]; ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ViewTrackIndex returns the reverse index view → tracks for every view.
func (r *Reconstruction) ViewTrackIndex() map[ViewID][]TrackID {
	idx := make(map[ViewID][]TrackID, len(r.views))
	for _, tid := range r.TrackIDs() {
		for vid := range r.tracks[tid].observations {
			idx[vid] = append(idx[vid], tid)
		}
	}
	return idx
}

// EstimatedViewIDs returns the ids of estimated views, ascending.
func (r *Reconstruction) EstimatedViewIDs() []ViewID {
	var ids []ViewID
	for _, id := range r.ViewIDs() {
		if r.views[id].Estimated {
			ids = append(ids, id)
		}
	}
	return ids
}

// EstimatedTrackIDs returns the ids of estimated tracks, ascending.
func (r *Reconstruction) EstimatedTrackIDs() []TrackID {
	var ids []TrackID
	for _, id := range r.TrackIDs() {
		if r.tracks[id].Estimated {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep copy sharing no mutable state with r. Id counters
// are copied so ids remain unique across both.
func (r *Reconstruction) Clone() *Reconstruction {
	c := NewReconstruction()
	for id, v := range r.views {
		c.views[id] = v.clone()
	}
	for id, t := range r.tracks {
		c.tracks[id] = t.clone()
	}
	maps.Copy(c.viewByName, r.viewByName)
	maps.Copy(c.viewGroup, r.viewGroup)
	c.nextView, c.nextTrack, c.nextGroupID = r.nextView, r.nextTrack, r.nextGroupID
	return c
}

// EstimatedSubreconstruction returns a deep copy holding only the estimated
// views and tracks. Observations of estimated tracks in unestimated views
// are dropped.
func (r *Reconstruction) EstimatedSubreconstruction() *Reconstruction {
	c := r.Clone()
	for id, v := range c.views {
		if !v.Estimated {
			c.RemoveView(id)
		}
	}
	for id, t := range c.tracks {
		if !t.Estimated {
			delete(c.tracks, id)
			continue
		}
		for vid := range t.observations {
			if _, ok := c.views[vid]; !ok {
				delete(t.observations, vid)
			}
		}
	}
	return c
}

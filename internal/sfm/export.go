package sfm

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/sfm/internal/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// ViewRecord is the serialised form of a view.
type ViewRecord struct {
	ID             ViewID                  `json:"id"`
	Name           string                  `json:"name"`
	Group          CameraIntrinsicsGroupID `json:"camera_intrinsics_group"`
	Estimated      bool                    `json:"estimated"`
	FocalLength    float64                 `json:"focal_length"`
	PrincipalPoint [2]float64              `json:"principal_point"`
	AspectRatio    float64                 `json:"aspect_ratio"`
	Skew           float64                 `json:"skew"`
	ImageWidth     int                     `json:"width"`
	ImageHeight    int                     `json:"height"`
	// Transform is the world-to-camera rigid transform, row-major 4x4.
	Transform [16]float64 `json:"transform"`
	// Position duplicates the camera centre for consumers that do not
	// invert Transform.
	Position [3]float64 `json:"position"`
}

// TrackRecord is the serialised form of a track.
type TrackRecord struct {
	ID           TrackID             `json:"id"`
	Estimated    bool                `json:"estimated"`
	Point        [3]float64          `json:"point"`
	Observations []ObservationRecord `json:"observations"`
}

// ObservationRecord is one serialised track observation.
type ObservationRecord struct {
	View ViewID  `json:"view_id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// ReconstructionRecord is the serialised form of a Reconstruction.
type ReconstructionRecord struct {
	Views  []ViewRecord  `json:"views"`
	Tracks []TrackRecord `json:"tracks"`
}

// Record converts r to its serialisable form, ordered by id.
func (r *Reconstruction) Record() ReconstructionRecord {
	rec := ReconstructionRecord{
		Views:  make([]ViewRecord, 0, len(r.views)),
		Tracks: make([]TrackRecord, 0, len(r.tracks)),
	}
	for _, id := range r.ViewIDs() {
		v := r.views[id]
		c := v.Camera
		rec.Views = append(rec.Views, ViewRecord{
			ID:             id,
			Name:           v.name,
			Group:          r.viewGroup[id],
			Estimated:      v.Estimated,
			FocalLength:    c.FocalLength,
			PrincipalPoint: c.PrincipalPoint,
			AspectRatio:    c.AspectRatio,
			Skew:           c.Skew,
			ImageWidth:     c.ImageWidth,
			ImageHeight:    c.ImageHeight,
			Transform:      c.Pose.ToMatrix4(),
			Position:       [3]float64{c.Pose.Position.X, c.Pose.Position.Y, c.Pose.Position.Z},
		})
	}
	for _, id := range r.TrackIDs() {
		t := r.tracks[id]
		tr := TrackRecord{
			ID:        id,
			Estimated: t.Estimated,
			Point:     [3]float64{t.Point.X, t.Point.Y, t.Point.Z},
		}
		for _, vid := range t.ViewIDs() {
			f := t.observations[vid]
			tr.Observations = append(tr.Observations, ObservationRecord{View: vid, X: f.X, Y: f.Y})
		}
		rec.Tracks = append(rec.Tracks, tr)
	}
	return rec
}

// FromRecord rebuilds a Reconstruction, preserving ids. Id counters resume
// after the largest id present.
func FromRecord(rec ReconstructionRecord) (*Reconstruction, error) {
	r := NewReconstruction()
	for _, vr := range rec.Views {
		if vr.ID == InvalidViewID || vr.Name == "" {
			return nil, fmt.Errorf("view %d: invalid id or empty name", vr.ID)
		}
		if _, dup := r.views[vr.ID]; dup {
			return nil, fmt.Errorf("view %d: duplicate id", vr.ID)
		}
		if _, dup := r.viewByName[vr.Name]; dup {
			return nil, fmt.Errorf("view %q: duplicate name", vr.Name)
		}
		rot := geometry.Mat3{
			vr.Transform[0], vr.Transform[1], vr.Transform[2],
			vr.Transform[4], vr.Transform[5], vr.Transform[6],
			vr.Transform[8], vr.Transform[9], vr.Transform[10],
		}
		r.views[vr.ID] = &View{
			name:      vr.Name,
			Estimated: vr.Estimated,
			Camera: Camera{
				Pose: geometry.Pose{
					Rotation: rot,
					Position: r3.Vec{X: vr.Position[0], Y: vr.Position[1], Z: vr.Position[2]},
				},
				FocalLength:    vr.FocalLength,
				PrincipalPoint: vr.PrincipalPoint,
				AspectRatio:    vr.AspectRatio,
				Skew:           vr.Skew,
				ImageWidth:     vr.ImageWidth,
				ImageHeight:    vr.ImageHeight,
			},
		}
		r.viewByName[vr.Name] = vr.ID
		r.viewGroup[vr.ID] = vr.Group
		r.nextView = max(r.nextView, vr.ID+1)
		if vr.Group != InvalidCameraIntrinsicsGroupID {
			r.nextGroupID = max(r.nextGroupID, vr.Group+1)
		}
	}
	for _, tr := range rec.Tracks {
		if tr.ID == InvalidTrackID {
			return nil, fmt.Errorf("track: invalid id")
		}
		if _, dup := r.tracks[tr.ID]; dup {
			return nil, fmt.Errorf("track %d: duplicate id", tr.ID)
		}
		t := &Track{
			observations: make(map[ViewID]Feature, len(tr.Observations)),
			Estimated:    tr.Estimated,
			Point:        r3.Vec{X: tr.Point[0], Y: tr.Point[1], Z: tr.Point[2]},
		}
		for _, o := range tr.Observations {
			if _, ok := r.views[o.View]; !ok {
				return nil, fmt.Errorf("track %d: unknown view %d", tr.ID, o.View)
			}
			t.observations[o.View] = Feature{X: o.X, Y: o.Y}
		}
		r.tracks[tr.ID] = t
		r.nextTrack = max(r.nextTrack, tr.ID+1)
	}
	return r, nil
}

// MarshalJSON implements json.Marshaler.
func (r *Reconstruction) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Reconstruction) UnmarshalJSON(data []byte) error {
	var rec ReconstructionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode reconstruction: %w", err)
	}
	out, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*r = *out
	return nil
}

// Package sfm defines the reconstruction data model: views, tracks, the
// Reconstruction arena that owns them, camera intrinsics priors and the
// pairwise TwoViewInfo relation stored on view-graph edges.
//
// Views and tracks are addressed by opaque integer ids that are assigned
// monotonically and never reused within a Reconstruction, even after
// removal. Relationships are stored as id sets (track → views) and the
// reverse index (view → tracks) is rebuilt on demand, so there are no
// pointer cycles between views and tracks.
//
// Dependency rule: imports internal/geometry only. Sub-packages
// (viewgraph, trackbuilder, pose, estimator, builder) import sfm, never
// the reverse.
package sfm

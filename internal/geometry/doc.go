// Package geometry holds the rigid-body and camera geometry shared by the
// reconstruction packages: rotations, camera poses, 4x4 transform
// validation and multi-view triangulation.
//
// Conventions: a Pose maps world points into the camera frame as
// x_cam = R (X - c), where R is the world-to-camera rotation and c the
// camera centre in world coordinates. Cameras look down +Z. Matrices are
// row-major, matching the [16]float64 transform layout used for export.
//
// Dependency rule: leaf package; imports only gonum.
package geometry

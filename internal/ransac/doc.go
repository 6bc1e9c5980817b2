// Package ransac is the robust model-estimation framework: RANSAC-family
// consensus estimation over an arbitrary datum type D and model type M.
//
// A model-specific Estimator supplies the minimal solver and residual. The
// framework owns sampling, scoring, the adaptive iteration bound and the
// final inlier set. Degenerate input never panics; it surfaces as
// Summary.Success == false with an empty inlier set so batch callers can
// skip individual failures.
//
// Determinism: every invocation draws from a *rand.Rand it owns exclusively.
// Identical seeds and data yield identical models and inliers. Invocations
// may be fanned out across goroutines as long as each has its own RNG.
//
// Dependency rule: no imports from the sfm packages; estimators live with
// their geometry in internal/sfm/pose.
package ransac

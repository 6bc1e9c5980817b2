// Package sqlite contains the SQLite persistence for the reconstruction
// pipeline: camera priors, features and verified matches (a
// matching.Database) and the reconstructions produced by each run.
//
// Schema changes are embedded golang-migrate migrations applied by Open.
package sqlite

// Package version holds build metadata set at link time:
//
//	go build -ldflags "-X github.com/banshee-data/sfm/internal/version.Version=v0.3.0 \
//	  -X github.com/banshee-data/sfm/internal/version.GitSHA=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns the one-line form printed by -version.
func String(program string) string {
	return fmt.Sprintf("%s version %s (%s, built %s)", program, Version, GitSHA, BuildTime)
}

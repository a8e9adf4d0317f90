// Package version carries build metadata, set with -ldflags -X at link time.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for logs and -version output.
func String() string {
	return fmt.Sprintf("occupancy %s (%s, built %s)", Version, GitSHA, BuildTime)
}

// Info returns the build metadata as a map for JSON stats.
func Info() map[string]string {
	return map[string]string{"version": Version, "git_sha": GitSHA, "build_time": BuildTime}
}

// Package version provides build and version information for vexus.
package version

import (
	"fmt"
	"runtime"

	"github.com/Aman-CERP/vexus/internal/engine"
)

// Version is the current version of vexus.
// Set via ldflags at build time, or defaults to dev:
// -X github.com/Aman-CERP/vexus/pkg/version.Version=$(VERSION)
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary.
	GoVersion = runtime.Version()
)

// SnapshotFormat is the on-disk index format version this build writes.
const SnapshotFormat = int(engine.SnapshotVersion)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version        string `json:"version"`
	Commit         string `json:"commit"`
	Date           string `json:"date"`
	GoVersion      string `json:"go_version"`
	OS             string `json:"os"`
	Arch           string `json:"arch"`
	SnapshotFormat int    `json:"snapshot_format"`
}

// String returns a formatted version string with all build info.
func String() string {
	return fmt.Sprintf("vexus %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:        Version,
		Commit:         Commit,
		Date:           Date,
		GoVersion:      GoVersion,
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		SnapshotFormat: SnapshotFormat,
	}
}

// Package version reports docrag build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is set via -ldflags "-X github.com/Aman-CERP/docrag/pkg/version.Version=..."
var Version = "dev"

// Build information set via ldflags.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is structured version information for `docrag version --json`.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("docrag %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, runtime.Version())
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns the bare version for `docrag version --short`.
func Short() string {
	return Version
}

// Package version holds build-time version information for the ragpdf binary.
// The variables in this package are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/aramishf/RAG-PDF-Expert/internal/version.Version=v1.2.3 \
//	                    -X github.com/aramishf/RAG-PDF-Expert/internal/version.Commit=abc1234 \
//	                    -X github.com/aramishf/RAG-PDF-Expert/internal/version.BuildDate=2025-01-01"
//
// When built without ldflags (e.g. `go run`), the values fall back to
// human-readable defaults, and Version is taken from the module build info
// when the binary was installed with `go install`.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the semantic version of the binary (e.g. "v1.2.3").
// Set at build time via -ldflags. Defaults to "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
// Set at build time via -ldflags. Defaults to "unknown".
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
// Set at build time via -ldflags. Defaults to "unknown".
var BuildDate = "unknown"

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

// String formats the version line printed by `ragpdf version`.
func String() string {
	return fmt.Sprintf("ragpdf %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

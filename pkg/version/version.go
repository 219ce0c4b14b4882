package version

import (
	"fmt"
	"runtime"
)

// Name is the product name reported to remote services.
const Name = "Demeter"

// Version information - using semantic versioning
const (
	Major      = 0
	Minor      = 4
	Patch      = 0
	PreRelease = "" // e.g., "alpha", "beta", "rc1"
)

// Set at build time with -ldflags "-X .../pkg/version.GitCommit=..."
var (
	GitCommit = ""
	BuildDate = ""
)

// Version returns the semantic version string
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		v += "-" + PreRelease
	}
	return v
}

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s/%s)", Name, Version(), runtime.GOOS, runtime.GOARCH)
}

// FullVersionString returns a complete version string with build info
func FullVersionString() string {
	result := fmt.Sprintf("%s v%s", Name, Version())
	if len(GitCommit) >= 7 {
		result += fmt.Sprintf(" (commit: %s)", GitCommit[:7])
	}
	if BuildDate != "" {
		result += fmt.Sprintf(" (built: %s)", BuildDate)
	}
	return result + fmt.Sprintf(" (go: %s, platform: %s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Package version reports the build version of the dprom binaries.
package version

import "runtime/debug"

// Version is set at build time with
// -ldflags "-X github.com/haileys/dprom/internal/version.Version=v1.2.3".
var Version = ""

// String returns the build version, falling back to the module version
// recorded by the go tool, or "dev".
func String() string {
	if Version != "" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}

	return "dev"
}

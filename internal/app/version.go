package app

import "runtime/debug"

// Version is the semantic version of mcpapps, set at build time via -ldflags.
var Version = "dev"

// Build is the git commit hash or build identifier, set at build time via -ldflags.
var Build = "unknown"

// VersionString falls back to module build info when no version was stamped.
func VersionString() string {
	version := Version
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	return version + " (" + Build + ")"
}

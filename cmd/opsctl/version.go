package main

import "runtime/debug"

// version is stamped on release builds: -ldflags "-X main.version=v1.0.0".
var version = ""

// getVersion prefers the stamped version, then the module version recorded
// by "go install @version", and reports "dev" for local builds.
func getVersion() string {
	if version != "" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}

	return "dev"
}

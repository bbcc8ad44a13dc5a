// Package version holds the build version, overridable at link time with
// -ldflags "-X github.com/causalmem/causalmem/internal/version.Version=...".
package version

var Version = "0.1.0-dev"

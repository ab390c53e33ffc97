// Package buildinfo holds compile-time identity for the application.
package buildinfo

// Name is the canonical application name used for logging and lock files.
const Name = "GridSync"

// Version holds the application's version string.
// It's a `var` so it can be set at compile time using ldflags.
// Example: go build -ldflags="-X github.com/hydroworks/gridsync/pkg/buildinfo.Version=1.0.0"
var Version = "dev"

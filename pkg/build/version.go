// Package build carries version information stamped at link time.
package build

var (
	Version = "v0.0.0-dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "source"
)

// Package buildinfo exposes version metadata stamped at link time, e.g.
//
//	go build -ldflags "-X wasteroute/internal/buildinfo.Version=v1.2.0 -X wasteroute/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the stamped values, falling back to the VCS revision recorded by
// the Go toolchain when Commit was not set.
func Info() map[string]string {
	commit := Commit
	if commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	return map[string]string{
		"version": Version,
		"commit":  commit,
		"builtAt": BuiltAt,
	}
}

// Package version reports build information embedded at link time and by
// the Go toolchain.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set via -ldflags "-X spendscope/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Info is the build description served by /api/health and `spendctl version`
type Info struct {
	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Revision   string `json:"revision,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	DirtyTree  bool   `json:"dirty_tree"`
}

// Get returns the current build information
func Get() Info {
	info := Info{Version: Version, BuildTime: BuildTime}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			info.CommitTime = s.Value
		case "vcs.modified":
			info.DirtyTree = s.Value == "true"
		}
	}
	return info
}

// Short returns the version with an abbreviated revision, e.g. "v1.2.0 (3f9a2c1d)"
func (i Info) Short() string {
	if i.Revision == "" {
		return i.Version
	}
	rev := i.Revision
	if len(rev) > 8 {
		rev = rev[:8]
	}
	if i.DirtyTree {
		rev += "+dirty"
	}
	return fmt.Sprintf("%s (%s)", i.Version, rev)
}

func (i Info) String() string {
	parts := []string{"spendscope " + i.Short()}
	if i.BuildTime != "unknown" {
		parts = append(parts, "built "+i.BuildTime)
	}
	if i.GoVersion != "" {
		parts = append(parts, i.GoVersion)
	}
	return strings.Join(parts, ", ")
}

// Warning describes a build that should not be trusted in production, or ""
func (i Info) Warning() string {
	switch {
	case i.DirtyTree:
		return "binary built from a modified source tree"
	case i.Revision == "" && i.Version == "dev":
		return "development build without version control information"
	}
	return ""
}

// Package version reports the build of the sheetmind binary.
package version

import (
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/vinodismyname/sheetmind/pkg/version.version=v1.2.3".
var version = "dev"

// Info describes the running build.
type Info struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Go       string `json:"go,omitempty"`
}

// Version returns the ldflags version, falling back to the module version
// recorded by go install.
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

// Build returns the version plus VCS details when the binary carries them.
func Build() Info {
	out := Info{Version: Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.Go = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Revision = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}
	return out
}

// String renders the build as "v1.2.3 (abc1234, dirty)".
func (i Info) String() string {
	var extra []string
	if i.Revision != "" {
		rev := i.Revision
		if len(rev) > 7 {
			rev = rev[:7]
		}
		extra = append(extra, rev)
	}
	if i.Modified {
		extra = append(extra, "dirty")
	}
	if len(extra) == 0 {
		return i.Version
	}
	return i.Version + " (" + strings.Join(extra, ", ") + ")"
}

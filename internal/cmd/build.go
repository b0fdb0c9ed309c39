package cmd

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/dotcommander/lmagent/internal/storage"
)

// BuildInfo is injected by the build pipeline.
type BuildInfo struct {
	Version   string
	CommitSHA string
}

// versionTemplate is the cobra version template: name, version, short commit,
// Go version and platform.
func versionTemplate(b BuildInfo) string {
	v := "{{.Name}} {{.Version}}"
	if len(b.CommitSHA) >= storage.IDShort {
		v += " (" + storage.ShortID(b.CommitSHA) + ")"
	}
	return v + fmt.Sprintf(" %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
}

// normalizeBuildInfo fills missing fields from the VCS stamp of the binary.
func normalizeBuildInfo(b BuildInfo) BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if b.Version == "" {
			b.Version = "unknown"
		}
		return b
	}
	return fromBuildInfo(b, info)
}

func fromBuildInfo(b BuildInfo, info *debug.BuildInfo) BuildInfo {
	if b.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if b.CommitSHA == "" {
		b.CommitSHA = rev
	}
	if b.Version != "" {
		return b
	}

	b.Version = "dev"
	if len(rev) >= storage.IDShort {
		b.Version += "-" + storage.ShortID(rev)
	}
	if dirty {
		b.Version += "-dirty"
	}
	return b
}

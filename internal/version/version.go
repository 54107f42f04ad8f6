package version

import (
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/limeprotocol/limews/internal/version.Version=v0.3.0 \
//	                   -X github.com/limeprotocol/limews/internal/version.Commit=abc123"
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		populateFromBuildInfo(debug.ReadBuildInfo)
	}

	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func populateFromBuildInfo(read func() (*debug.BuildInfo, bool)) {
	info, ok := read()
	if !ok {
		return
	}

	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}

	if Commit == "" && revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		Commit = revision
		if modified == "true" {
			Commit += "-dirty"
		}
	}
}

// String returns "<version> (commit: <commit>)"
func String() string {
	return Version + " (commit: " + Commit + ")"
}

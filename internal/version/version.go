// Package version хранит сведения о сборке, заданные через -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	version = "dev"
	commit  = ""
	date    = "unknown"
)

// Build описывает бинарник.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get возвращает сведения о сборке. Без -ldflags коммит берётся из VCS-меток go build.
func Get() Build {
	b := Build{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if b.Commit == "" {
		b.Commit = vcsRevision(debug.ReadBuildInfo)
	}
	return b
}

func vcsRevision(read func() (*debug.BuildInfo, bool)) string {
	if info, ok := read(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

func GetVersion() string { return version }

func String() string {
	b := Get()
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", b.Version, b.Commit, b.Date, b.GoVersion)
}

// Package version хранит сведения о сборке storefront. Значения проставляются
// через -ldflags, а при их отсутствии берутся из VCS-меток Go toolchain:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.2.0"
package version

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

const unknown = "unknown"

var (
	version = "dev"
	commit  = unknown
	date    = unknown
)

// Build описывает собранный бинарник.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Current собирает сведения о текущей сборке.
func Current() Build {
	b := Build{Version: version, Commit: commit, Date: date}
	if info, ok := debug.ReadBuildInfo(); ok {
		b = b.withBuildInfo(info)
	}
	return b
}

func (b Build) withBuildInfo(info *debug.BuildInfo) Build {
	b.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == unknown && s.Value != "":
			b.Commit = s.Value
		case s.Key == "vcs.time" && b.Date == unknown && s.Value != "":
			b.Date = s.Value
		}
	}
	return b
}

// Fields возвращает сведения о сборке для структурных логов.
func (b Build) Fields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "build_date": b.Date}
}

func (b Build) String() string {
	return fmt.Sprintf("storefront %s (commit %s, built %s, %s)", b.Version, b.Commit, b.Date, b.GoVersion)
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

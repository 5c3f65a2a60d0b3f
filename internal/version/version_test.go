package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent_Defaults(t *testing.T) {
	b := Current()
	assert.Equal(t, "dev", b.Version)
	assert.NotEmpty(t, b.Commit)
	assert.NotEmpty(t, b.Date)
	assert.Equal(t, b.Version, GetVersion())
}

func TestBuild_WithBuildInfoFillsUnknownOnly(t *testing.T) {
	info := &debug.BuildInfo{
		GoVersion: "go1.25.0",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}

	b := Build{Version: "v1.0.0", Commit: unknown, Date: unknown}.withBuildInfo(info)
	assert.Equal(t, Build{Version: "v1.0.0", Commit: "abc123", Date: "2026-01-02T03:04:05Z", GoVersion: "go1.25.0"}, b)

	pinned := Build{Version: "v1.0.0", Commit: "ldflags", Date: "today"}.withBuildInfo(info)
	assert.Equal(t, "ldflags", pinned.Commit)
	assert.Equal(t, "today", pinned.Date)
}

func TestBuild_FieldsAndString(t *testing.T) {
	b := Build{Version: "v2", Commit: "c", Date: "d", GoVersion: "go1.25.0"}

	fields := b.Fields()
	assert.Equal(t, "v2", fields["version"])
	assert.Equal(t, "c", fields["commit"])
	assert.Equal(t, "d", fields["build_date"])
	assert.Equal(t, "storefront v2 (commit c, built d, go1.25.0)", b.String())
}

package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	b := Get()

	assert.Equal(t, GetVersion(), b.Version)
	assert.NotEmpty(t, b.Commit)
	assert.Equal(t, runtime.Version(), b.GoVersion)
	assert.Contains(t, String(), "version="+b.Version)
	assert.Contains(t, String(), "commit="+b.Commit)
}

func TestVCSRevision(t *testing.T) {
	tests := []struct {
		name string
		read func() (*debug.BuildInfo, bool)
		want string
	}{
		{
			name: "no build info",
			read: func() (*debug.BuildInfo, bool) { return nil, false },
			want: "unknown",
		},
		{
			name: "revision present",
			read: func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{Settings: []debug.BuildSetting{
					{Key: "vcs", Value: "git"},
					{Key: "vcs.revision", Value: "4f2a9c1"},
				}}, true
			},
			want: "4f2a9c1",
		},
		{
			name: "empty revision",
			read: func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision"}}}, true
			},
			want: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vcsRevision(tt.read))
		})
	}
}

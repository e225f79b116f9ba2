package version_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/satishbabariya/fluentsql/internal/version"
)

func TestGet(t *testing.T) {
	info := version.Get()
	assert.Equal(t, version.Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.True(t, info.Valid())
	assert.Contains(t, info.String(), "fluentsql version "+version.Version)
	assert.Contains(t, info.FullString(), "Build Date: "+version.BuildDate)
}

func TestValid(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"0.1.0", true},
		{"v1.2.3-rc.1", true},
		{"dev", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, version.Info{Version: tt.version}.Valid())
		})
	}
}

package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "Version should follow semver format, got: %s", Version)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	s := String()
	assert.Contains(t, s, "vexus")
	assert.Contains(t, s, Version)
	assert.Contains(t, s, "commit: "+Commit)
	assert.Contains(t, s, runtime.Version())
}

func TestShort(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_JSON(t *testing.T) {
	// Given: build info
	info := GetInfo()

	// When: encoded as JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: all fields are present
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch", "snapshot_format"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, float64(SnapshotFormat), decoded["snapshot_format"])
}

// ABOUTME: Tests for operator profile loading and saving
// ABOUTME: Covers defaults for missing files and TOML roundtrip

package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "operator", p.DisplayName)
	assert.False(t, p.DarkMode)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.toml")

	require.NoError(t, Save(path, &Profile{DisplayName: "alex", DarkMode: true}))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alex", p.DisplayName)
	assert.True(t, p.DarkMode)
}

func TestLoad_MalformedFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	require.NoError(t, os.WriteFile(path, []byte("display_name = [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultPath_HonorsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-test/agent-console/profile.toml", path)
}

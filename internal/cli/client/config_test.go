package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigPath(t *testing.T) string {
	t.Helper()
	configDir := filepath.Join(t.TempDir(), "citadoc")
	configPath := filepath.Join(configDir, "config.json")

	oldDir, oldPath := getConfigDirFunc, getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return configDir, nil }
	getConfigPathFunc = func() (string, error) { return configPath, nil }
	t.Cleanup(func() {
		getConfigDirFunc = oldDir
		getConfigPathFunc = oldPath
	})
	return configPath
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.NotEmpty(t, dir)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "citadoc"))
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.True(t, strings.HasSuffix(path, "config.json"))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	withConfigPath(t)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_ValidFile(t *testing.T) {
	configPath := withConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	data, _ := json.Marshal(GlobalConfig{APIURL: "http://docs.internal:8080"})
	require.NoError(t, os.WriteFile(configPath, data, 0600))

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "http://docs.internal:8080", config.APIURL)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := withConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0600))

	_, err := LoadGlobalConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_CreatesDirectoryWithPrivateFile(t *testing.T) {
	configPath := withConfigPath(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "https://docs.example.com"}))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com", config.APIURL)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	err := SaveGlobalConfig(nil)
	assert.Error(t, err)
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := withConfigPath(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://localhost:9000"}))

	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))

	// Deleting again is not an error.
	assert.NoError(t, DeleteGlobalConfig())
}

func TestIsValidAPIURL(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"http://localhost:8080", true},
		{"https://docs.example.com/api", true},
		{"localhost:8080", false},
		{"ftp://docs.example.com", false},
		{"http://", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAPIURL(tt.raw))
		})
	}
}

func TestResolveAPIURL_Cascade(t *testing.T) {
	withConfigPath(t)
	t.Setenv(envAPIURL, "")

	source, url, err := ResolveAPIURL("")
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, source)
	assert.Equal(t, defaultAPIURL, url)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://from-config:8080"}))
	source, url, err = ResolveAPIURL("")
	require.NoError(t, err)
	assert.Equal(t, SourceGlobalConfig, source)
	assert.Equal(t, "http://from-config:8080", url)

	t.Setenv(envAPIURL, "http://from-env:8080")
	source, url, err = ResolveAPIURL("")
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, source)
	assert.Equal(t, "http://from-env:8080", url)

	source, url, err = ResolveAPIURL("http://from-flag:8080")
	require.NoError(t, err)
	assert.Equal(t, SourceFlag, source)
	assert.Equal(t, "http://from-flag:8080", url)
}

package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, BinaryName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.ServerNames())
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestInstall_PreservesOtherEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "claude_desktop_config.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{
  "theme": "dark",
  "mcpServers": {"other": {"command": "/usr/bin/other"}}
}`), 0o600))

	binary := fakeBinary(t, dir)
	entry, err := Install(path, Options{BinaryPath: binary, Provider: "anthropic", Model: "claude-3-5-haiku-latest"})
	require.NoError(t, err)
	assert.Equal(t, binary, entry.Command)
	assert.Equal(t, "anthropic", entry.Env["DIAPREDICT_AI_PROVIDER"])
	assert.Equal(t, "claude-3-5-haiku-latest", entry.Env["DIAPREDICT_AI_MODEL"])
	assert.Empty(t, entry.Args)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "dark", raw["theme"])

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{ServerKey, "other"}, cfg.ServerNames())
}

func TestInstall_KeepsUnknownFieldsOfOtherServers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "mcpServers": {
    "other": {"command": "/usr/bin/other", "type": "stdio", "cwd": "/srv", "disabled": true, "args": ["-v"]}
  }
}`), 0o600))

	_, err := Install(path, Options{BinaryPath: fakeBinary(t, dir)})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw struct {
		MCPServers map[string]map[string]interface{} `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))

	other := raw.MCPServers["other"]
	assert.Equal(t, "/usr/bin/other", other["command"])
	assert.Equal(t, "stdio", other["type"])
	assert.Equal(t, "/srv", other["cwd"])
	assert.Equal(t, true, other["disabled"])
	assert.Equal(t, []interface{}{"-v"}, other["args"])

	removed, err := Uninstall(path)
	require.NoError(t, err)
	require.True(t, removed)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "/srv", raw.MCPServers["other"]["cwd"])
	assert.Equal(t, true, raw.MCPServers["other"]["disabled"])
}

func TestInstall_ConfigFileIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "client.json")

	entry, err := Install(path, Options{BinaryPath: fakeBinary(t, dir), ConfigFile: "config.yaml"})
	require.NoError(t, err)
	require.Len(t, entry.Args, 2)
	assert.Equal(t, "--config", entry.Args[0])
	assert.True(t, filepath.IsAbs(entry.Args[1]))
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.json")

	status, err := Check(path)
	require.NoError(t, err)
	assert.False(t, status.Registered)
	assert.Equal(t, []string{"diapredict is not registered"}, status.Issues)

	_, err = Install(path, Options{BinaryPath: fakeBinary(t, dir)})
	require.NoError(t, err)

	status, err = Check(path)
	require.NoError(t, err)
	assert.True(t, status.Registered)
	assert.Empty(t, status.Issues)

	_, err = Install(path, Options{BinaryPath: filepath.Join(dir, "missing"), ConfigFile: filepath.Join(dir, "gone.yaml")})
	require.NoError(t, err)

	status, err = Check(path)
	require.NoError(t, err)
	assert.Len(t, status.Issues, 2)
}

func TestUninstall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.json")

	removed, err := Uninstall(path)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = Install(path, Options{BinaryPath: fakeBinary(t, dir)})
	require.NoError(t, err)

	removed, err = Uninstall(path)
	require.NoError(t, err)
	assert.True(t, removed)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotContains(t, cfg.ServerNames(), ServerKey)
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{BinaryEnv, ModeEnv, DataDirEnv, "LEASH_HOST", "LEASH_LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "codex", cfg.Tool.Binary)
	assert.Equal(t, "default", cfg.Tool.DefaultMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Empty(t, cfg.Daemon.Host)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
tool:
  binary: my-codex
  default_mode: read-only
log:
  level: debug
data_dir: /var/lib/leash
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "my-codex", cfg.Tool.Binary)
	assert.Equal(t, "read-only", cfg.Tool.DefaultMode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/lib/leash", cfg.DataDir)
	// Unspecified fields keep defaults.
	assert.Equal(t, "auto", cfg.Log.Format)
}

func TestLoadMissingFileFails(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
tool:
  binary: from-file
  default_mode: read-only
`)

	t.Setenv(BinaryEnv, "from-env")
	t.Setenv(ModeEnv, "yolo")
	t.Setenv("LEASH_HOST", "unix:///tmp/leashd.sock")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Tool.Binary)
	assert.Equal(t, "yolo", cfg.Tool.DefaultMode)
	assert.Equal(t, "unix:///tmp/leashd.sock", cfg.Daemon.Host)
}

func TestValidateRejectsBadValues(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "tool:\n  default_mode: rampage\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "log:\n  level: loud\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "log:\n  format: xml\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestResolveDataDir(t *testing.T) {
	clearEnv(t)

	dir := filepath.Join(t.TempDir(), "nested", "leash")
	cfg := &Config{DataDir: dir}

	got, err := cfg.ResolveDataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDefaultDataDirRespectsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	dir, err := DefaultDataDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/data/leash", dir)
}

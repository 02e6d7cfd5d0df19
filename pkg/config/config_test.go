package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "luxfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
command:
  cmd: profileset
  params: ["0", "fast"]
miners:
  ranges:
    - 10.0.0.1-10.0.0.9
fleet:
  port: 4029
  batch: 50
  batch_delay: 500ms
  stop_if: "errors > 25%"
rexec:
  timeout: 5s
  retries: 2
  retries_delay: 250ms
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "profileset", cfg.Cmd)
	assert.Equal(t, []string{"0", "fast"}, cfg.Params)
	assert.Equal(t, []string{"10.0.0.1-10.0.0.9"}, cfg.Ranges)
	assert.Equal(t, 4029, cfg.Port)
	assert.Equal(t, 50, cfg.Batch)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchDelay)
	assert.Equal(t, "errors > 25%", cfg.StopIf)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "command:\n  cmd: version\nminers:\n  ranges: [127.0.0.1]\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4028, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfig(t, "rexec:\n  timeout: banana\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateHappyPath(t *testing.T) {
	cfg := Defaults()
	cfg.Cmd = "version"
	cfg.Ranges = []string{"127.0.0.1"}
	assert.NoError(t, Validate(cfg))
}

func TestValidateMissingPieces(t *testing.T) {
	cfg := Defaults()
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command.cmd")
	assert.Contains(t, err.Error(), "no devices selected")
}

func TestValidateCommandTypo(t *testing.T) {
	cfg := Defaults()
	cfg.Cmd = "verison"
	cfg.Ranges = []string{"127.0.0.1"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version", "the typo should suggest the real command")
}

func TestValidateMixedParamStyles(t *testing.T) {
	cfg := Defaults()
	cfg.Cmd = "atmset"
	cfg.Ranges = []string{"127.0.0.1"}
	cfg.Params = []string{"enabled=true", "board0"}
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed parameter styles")

	cfg.Params = []string{"enabled=true", "mode=auto"}
	assert.NoError(t, Validate(cfg))

	cfg.Params = []string{"board0", "fast"}
	assert.NoError(t, Validate(cfg))
}

func TestSaveConfigRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Cmd = "profileset"
	cfg.Params = []string{"0", "fast"}
	cfg.Ranges = []string{"10.0.0.1-10.0.0.9"}
	cfg.Batch = 25
	cfg.Timeout = 5 * time.Second

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Cmd, loaded.Cmd)
	assert.Equal(t, cfg.Params, loaded.Params)
	assert.Equal(t, cfg.Ranges, loaded.Ranges)
	assert.Equal(t, cfg.Batch, loaded.Batch)
	assert.Equal(t, cfg.Timeout, loaded.Timeout)
}

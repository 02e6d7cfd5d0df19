package ips

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/luxops/luxfleet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "miners.csv", `hostname
# rack 1
10.0.0.1
10.0.0.2:9999
10.0.1.1-10.0.1.3
`)

	got, err := LoadCSV(path, 4028)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{
		{Host: "10.0.0.1", Port: 4028},
		{Host: "10.0.0.2", Port: 9999},
		{Host: "10.0.1.1", Port: 4028},
		{Host: "10.0.1.2", Port: 4028},
		{Host: "10.0.1.3", Port: 4028},
	}, got)
}

func TestLoadCSVMultipleCells(t *testing.T) {
	path := writeFile(t, "miners.csv", "10.0.0.1,10.0.0.2\n")
	got, err := LoadCSV(path, 4028)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV("does-not-exist.csv", 4028)
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "miners.yaml", `
miners:
  luxos_port: 9999
  addresses:
    - 10.0.0.1
    - 10.0.0.2:1234
    - 10.0.1.1-10.0.1.2
`)

	got, err := LoadYAML(path, 4028)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{
		{Host: "10.0.0.1", Port: 9999},
		{Host: "10.0.0.2", Port: 1234},
		{Host: "10.0.1.1", Port: 9999},
		{Host: "10.0.1.2", Port: 9999},
	}, got)
}

func TestLoadYAMLFallsBackToDefaultPort(t *testing.T) {
	path := writeFile(t, "miners.yaml", `
miners:
  addresses:
    - 10.0.0.1
`)
	got, err := LoadYAML(path, 4028)
	require.NoError(t, err)
	assert.Equal(t, 4028, got[0].Port)
}

func TestLoadFileSniffsFormat(t *testing.T) {
	yamlPath := writeFile(t, "miners.yml", "miners:\n  addresses: [10.0.0.1]\n")
	got, err := LoadFile(yamlPath, 4028)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	csvPath := writeFile(t, "miners.csv", "10.0.0.1\n10.0.0.2\n")
	got, err = LoadFile(csvPath, 4028)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

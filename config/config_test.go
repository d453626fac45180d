package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
listenAddr: ":9090"
publicBucket:
  name: my-public-bucket
  region: us-east-1
privateBucket:
  name: my-private-bucket
  region: us-east-1
azureContainer:
  container: artifacts
  accountName: myaccount
cloudMirrorHost: mirror.example.com
regions:
  - cidr: 10.0.0.0/8
    region: us-east-1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "my-public-bucket", cfg.PublicBucket.Name)
	assert.Equal(t, "artifacts", cfg.AzureContainer.Container)
	assert.Equal(t, "mirror.example.com", cfg.CloudMirrorHost)
	require.Len(t, cfg.Regions, 1)
	assert.Equal(t, "10.0.0.0/8", cfg.Regions[0].CIDR)
	// default preserved when not overridden by the file
	assert.Equal(t, float64(50), cfg.RateLimit.RequestsPerSecond)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestFileSource_HashChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":8080\"\n"), 0o600))

	src := NewFileSource(path)
	h1, err := src.Hash(nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9090\"\n"), 0o600))
	h2, err := src.Hash(nil)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, "file:"+path, src.Name())
}

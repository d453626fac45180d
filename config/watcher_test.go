package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigWatcher_DetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":8080\"\n"), 0o600))

	src := NewFileSource(path)
	events := make(chan ConfigChangeEvent, 1)
	w := NewConfigWatcher(src, func(e ConfigChangeEvent) { events <- e }, WithWatchDebounce(50*time.Millisecond))

	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9090\"\n"), 0o600))

	select {
	case e := <-events:
		require.NotNil(t, e.Config)
		require.Equal(t, ":9090", e.Config.ListenAddr)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config change event")
	}
}

func TestConfigSource_InterfaceSatisfiedByFileSource(t *testing.T) {
	var _ ConfigSource = (*FileSource)(nil)
	_, err := (&FileSource{}).Load(context.Background())
	require.Error(t, err)
}

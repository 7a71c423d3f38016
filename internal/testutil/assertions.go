package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/moveboot/internal/envdir"
)

// LoadManifest reads the manifest of an environment directory.
func LoadManifest(t *testing.T, dir string) *envdir.Manifest {
	t.Helper()
	d, err := envdir.New(dir).Sync()
	require.NoError(t, err)
	return d.Manifest()
}

// RequireFile asserts that rel exists under dir and returns its content.
func RequireFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err, "expected %s to exist", rel)
	return string(data)
}

// RequireNoFile asserts that rel does not exist under dir.
func RequireNoFile(t *testing.T, dir, rel string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, rel))
	require.True(t, os.IsNotExist(err), "expected %s to be absent", rel)
}

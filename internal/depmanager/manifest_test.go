package depmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadManifestParsesPackageAndDependencies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Cargo.toml")
	content := `
[package]
name = "a"
version = "0.1.0"

[dependencies]
b = "2.0.0"
c = { version = "^1" }
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	name, version, local, err := ReadManifest(path)
	require.NoError(t, err)
	require.Equal(t, "a", name)
	require.Equal(t, "0.1.0", version)

	reqs := local[localKey("a", "0.1.0")]
	require.Len(t, reqs, 2)

	byName := make(map[string]Requirement, len(reqs))
	for _, r := range reqs {
		byName[r.DepName] = r
	}
	require.Contains(t, byName, "b")
	require.Contains(t, byName, "c")
}

func TestReadManifestMissingFile(t *testing.T) {
	_, _, _, err := ReadManifest("/nonexistent/Cargo.toml")
	require.Error(t, err)
}

package rufregistry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONSnapshotMetadataClientReadsCrateVersions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	content := `{
		"crates": {
			"b": [
				{"version": "1.8.0", "rufs": [{"feature": "z"}]},
				{"version": "2.0.0", "rufs": [{"cond": "unix", "feature": "y"}]}
			]
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	client := &JSONSnapshotMetadataClient{Path: path}
	versions, err := client.VersionsWithRufs(context.Background(), "b")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "1.8.0", versions[0].Version.String())
	require.Equal(t, "z", versions[0].Rufs[0].Feature)
	require.Equal(t, "unix", versions[1].Rufs[0].Cond)
}

func TestJSONSnapshotMetadataClientUnknownCrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"crates":{}}`), 0o644))

	client := &JSONSnapshotMetadataClient{Path: path}
	versions, err := client.VersionsWithRufs(context.Background(), "missing")
	require.NoError(t, err)
	require.Empty(t, versions)
}

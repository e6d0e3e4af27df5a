package depmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleLock = `
version = 3

[[package]]
name = "a"
version = "0.1.0"
dependencies = ["b", "c 1.0.0"]

[[package]]
name = "b"
version = "1.2.3"
source = "registry+https://github.com/rust-lang/crates.io-index"
dependencies = ["c 1.0.0"]

[[package]]
name = "c"
version = "1.0.0"
source = "registry+https://github.com/rust-lang/crates.io-index"
`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cargo.lock")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLockfileBuildsSingleRootedDAG(t *testing.T) {
	g, err := ReadLockfile(writeSample(t, sampleLock), "a")
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	root := g.Nodes[g.Root]
	require.Equal(t, "a", root.Name)
	require.True(t, root.Local, "package without a source is a workspace member")
	require.Empty(t, g.Parents(g.Root))

	// "b" was referenced by bare name and must still resolve.
	require.Len(t, g.Children(g.Root), 2)
}

func TestReadLockfileMissingRoot(t *testing.T) {
	_, err := ReadLockfile(writeSample(t, sampleLock), "nope")
	require.Error(t, err)
}

func TestResolveDependencyRefAmbiguousBareName(t *testing.T) {
	pkgs := []rawLockPackage{
		{Name: "dup", Version: "1.0.0"},
		{Name: "dup", Version: "2.0.0"},
	}
	_, err := resolveDependencyRef("dup", pkgs)
	require.Error(t, err)

	got, err := resolveDependencyRef("dup 2.0.0", pkgs)
	require.NoError(t, err)
	require.Equal(t, "dup 2.0.0", got)
}

func TestWriteLockfileRoundTrip(t *testing.T) {
	src := writeSample(t, sampleLock)
	g, err := ReadLockfile(src, "a")
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "Cargo.lock")
	require.NoError(t, WriteLockfile(dst, g))

	g2, err := ReadLockfile(dst, "a")
	require.NoError(t, err)
	require.Len(t, g2.Nodes, len(g.Nodes))
	require.Equal(t, g.Nodes[g.Root].Name, g2.Nodes[g2.Root].Name)
	for id := range g.Nodes {
		require.Equal(t, len(g.Children(NodeID(id))), len(g2.Children(NodeID(id))))
		require.Equal(t, g.Nodes[id].Source, g2.Nodes[id].Source)
	}
}

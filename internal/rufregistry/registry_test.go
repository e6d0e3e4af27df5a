package rufregistry

import (
	"context"
	"testing"

	"github.com/Masterminds/semver"
	"github.com/stretchr/testify/require"

	"github.com/golang-dep-labs/ruf-audit/internal/depmanager"
)

type fakeMetadata struct {
	versions []depmanager.RegistryVersion
	calls    int
}

func (f *fakeMetadata) VersionsWithRufs(ctx context.Context, crateName string) ([]depmanager.RegistryVersion, error) {
	f.calls++
	return f.versions, nil
}

type fakeSparse struct {
	reqs  []depmanager.Requirement
	calls int
}

func (f *fakeSparse) DependencyRequirements(ctx context.Context, crateName, version string) ([]depmanager.Requirement, error) {
	f.calls++
	return f.reqs, nil
}

func TestDependencyRequirementsCachesAfterFirstFetch(t *testing.T) {
	dir := t.TempDir()
	c, err := semver.NewConstraint("^1.0.0")
	require.NoError(t, err)

	sparse := &fakeSparse{reqs: []depmanager.Requirement{{DepName: "bar", Raw: "^1.0.0", Range: c}}}
	reg, err := New(dir, &fakeMetadata{}, sparse)
	require.NoError(t, err)
	defer reg.Close()

	v, err := semver.NewVersion("1.2.3")
	require.NoError(t, err)

	got1, err := reg.DependencyRequirements(context.Background(), "foo", v)
	require.NoError(t, err)
	require.Len(t, got1, 1)
	require.Equal(t, 1, sparse.calls)

	got2, err := reg.DependencyRequirements(context.Background(), "foo", v)
	require.NoError(t, err)
	require.Len(t, got2, 1)
	require.Equal(t, 1, sparse.calls, "second call should be served from the bolt cache, not the sparse index")
}

func TestVersionsWithRufsDelegatesToMetadataClient(t *testing.T) {
	dir := t.TempDir()
	meta := &fakeMetadata{versions: []depmanager.RegistryVersion{{}}}
	reg, err := New(dir, meta, &fakeSparse{})
	require.NoError(t, err)
	defer reg.Close()

	vs, err := reg.VersionsWithRufs(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, 1, meta.calls)
}

func TestSparseIndexPathSharding(t *testing.T) {
	require.Equal(t, "1/a", sparseIndexPath("a"))
	require.Equal(t, "2/ab", sparseIndexPath("ab"))
	require.Equal(t, "3/a/abc", sparseIndexPath("abc"))
	require.Equal(t, "se/rd/serde", sparseIndexPath("serde"))
}

package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/Masterminds/semver"
	"github.com/stretchr/testify/require"

	"github.com/golang-dep-labs/ruf-audit/internal/auditerr"
	"github.com/golang-dep-labs/ruf-audit/internal/depmanager"
	"github.com/golang-dep-labs/ruf-audit/internal/output"
	"github.com/golang-dep-labs/ruf-audit/internal/rufstatus"
	"github.com/golang-dep-labs/ruf-audit/internal/wire"
)

func mustC(t *testing.T, s string) *semver.Constraints {
	t.Helper()
	c, err := semver.NewConstraint(s)
	require.NoError(t, err)
	return c
}

// rewritePM emulates cargo re-resolving the whole tree on an update: any
// UpdatePrecise call rewrites the lockfile to the `after` package set,
// transitive re-pins included.
type rewritePM struct {
	t        *testing.T
	lockPath string
	after    []lockPkg
	updated  bool
}

func (r *rewritePM) UpdatePrecise(ctx context.Context, name, current, target string) error {
	r.updated = true
	writeLockfile(r.t, r.lockPath, r.after)
	return nil
}

func (r *rewritePM) GenerateMinimalVersions(ctx context.Context) error {
	return nil
}

// Scenario: a -> b@1.0.0 -> c@1.0.0, where c@1.0.0 declares a removed RUF
// and no older c satisfies b's requirement. b@0.9.0 has a looser
// requirement on c, under which c@0.9.5 (no RUFs) resolves. The engine must
// relax b rather than touch c directly.
func TestScenarioUpFix(t *testing.T) {
	dir := t.TempDir()
	lockPath := dir + "/Cargo.lock"
	pkgs := []lockPkg{
		{name: "a", version: "0.1.0", deps: []string{"b 1.0.0"}},
		{name: "b", version: "1.0.0", source: "registry", deps: []string{"c 1.0.0"}},
		{name: "c", version: "1.0.0", source: "registry"},
	}
	writeLockfile(t, lockPath, pkgs)

	g, err := depmanager.ReadLockfile(lockPath, "a")
	require.NoError(t, err)

	reg := &fakeRegistry{
		versions: map[string][]depmanager.RegistryVersion{
			"b": {
				{Version: mustV(t, "0.9.0")},
				{Version: mustV(t, "1.0.0")},
			},
			"c": {
				{Version: mustV(t, "0.9.5")},
				{Version: mustV(t, "1.0.0"), Rufs: wire.CondRufs{{Feature: "r"}}},
			},
		},
		reqs: map[string][]depmanager.Requirement{
			"b@1.0.0": {{DepName: "c", Raw: "^1", Range: mustC(t, "^1")}},
			"b@0.9.0": {{DepName: "c", Raw: ">=0.9.0, <1.0.0", Range: mustC(t, ">=0.9.0, <1.0.0")}},
		},
	}
	local := depmanager.LocalCrateTable{
		"a@0.1.0": {{DepName: "b", Raw: ">=0.9.0, <2.0.0", Range: mustC(t, ">=0.9.0, <2.0.0")}},
	}

	pm := &rewritePM{t: t, lockPath: lockPath, after: []lockPkg{
		{name: "a", version: "0.1.0", deps: []string{"b 0.9.0"}},
		{name: "b", version: "0.9.0", source: "registry", deps: []string{"c 0.9.5"}},
		{name: "c", version: "0.9.5", source: "registry"},
	}}
	mgr := depmanager.New(g, local, reg, pm, lockPath, "a")

	// "r" is absent from the table: Unknown, hence never usable.
	cfg := newConfig(t, 55, map[string][rufstatus.MaxCompilerVersion]rufstatus.Status{})

	ext := &fakeExtractor{mgr: mgr, table: map[string]map[string][]string{
		"c": {"1.0.0": {"r"}, "0.9.5": {}},
	}}

	var out bytes.Buffer
	e := &Engine{Config: cfg, Manager: mgr, Extractor: ext, Log: output.New(&out, &out, output.Quiet)}
	code, err := e.Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, auditerr.ExitSuccess, code)
	require.True(t, pm.updated)

	byName := make(map[string]string)
	for _, n := range mgr.Graph().Nodes {
		byName[n.Name] = n.Version.String()
	}
	require.Equal(t, "0.9.0", byName["b"])
	require.Equal(t, "0.9.5", byName["c"])
}

func TestUpFixAtRootFailsImmediately(t *testing.T) {
	dir := t.TempDir()
	lockPath := dir + "/Cargo.lock"
	pkgs := []lockPkg{{name: "a", version: "0.1.0"}}
	writeLockfile(t, lockPath, pkgs)

	g, err := depmanager.ReadLockfile(lockPath, "a")
	require.NoError(t, err)
	mgr := depmanager.New(g, depmanager.LocalCrateTable{}, &fakeRegistry{}, &fakePM{t: t, lockPath: lockPath, pkgs: pkgs}, lockPath, "a")

	var out bytes.Buffer
	e := &Engine{
		Config:  newConfig(t, 55, nil),
		Manager: mgr,
		Log:     output.New(&out, &out, output.Quiet),
	}

	err = e.upFix(context.Background(), mgr.Root())
	var fn *auditerr.Functionality
	require.ErrorAs(t, err, &fn)
	require.Contains(t, fn.Reason, "reaching root")
}

// Scenario: dep-tree-fix is exhausted (the sole version of q declares a RUF
// unusable at the selected compiler), so the engine falls back to
// compiler-fix and reports the newest compatible compiler.
func TestScenarioCompilerFix(t *testing.T) {
	dir := t.TempDir()
	lockPath := dir + "/Cargo.lock"
	pkgs := []lockPkg{
		{name: "a", version: "0.1.0", deps: []string{"q 1.0.0"}},
		{name: "q", version: "1.0.0", source: "registry"},
	}
	writeLockfile(t, lockPath, pkgs)

	g, err := depmanager.ReadLockfile(lockPath, "a")
	require.NoError(t, err)

	reg := &fakeRegistry{
		versions: map[string][]depmanager.RegistryVersion{
			"q": {{Version: mustV(t, "1.0.0"), Rufs: wire.CondRufs{{Feature: "w"}}}},
		},
	}
	mgr := depmanager.New(g, depmanager.LocalCrateTable{}, reg, &fakePM{t: t, lockPath: lockPath, pkgs: pkgs}, lockPath, "a")

	// "w" is usable on minors 52-54 only; the selected compiler is 55.
	cfg := newConfig(t, 55, map[string][rufstatus.MaxCompilerVersion]rufstatus.Status{
		"w": versionedRows(52, 55, rufstatus.Active),
	})

	ext := &fakeExtractor{mgr: mgr, table: map[string]map[string][]string{
		"q": {"1.0.0": {"w"}},
	}}

	var out bytes.Buffer
	e := &Engine{Config: cfg, Manager: mgr, Extractor: ext, Log: output.New(&out, &out, output.Quiet)}
	code, err := e.Audit(context.Background())
	require.NoError(t, err)
	require.Equal(t, auditerr.ExitSuccess, code)
	require.Contains(t, out.String(), "compiler 54")
}
